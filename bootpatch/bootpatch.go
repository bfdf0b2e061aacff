// Package bootpatch allows running the bootpatch CLI from Go code
// programmatically, e.g. from build tooling which produces boot images.
package bootpatch

import (
	"context"
	"io"

	"github.com/gokrazy/bootpatch/internal/bootpatch"
)

// ErrUsage is returned by Execute when the command line has the wrong number
// of arguments. The usage line has already been printed to Stdout.
var ErrUsage = bootpatch.ErrUsage

type Context struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Args   []string
}

func (c Context) Execute(ctx context.Context) error {
	root := bootpatch.RootCmd()
	if r := c.Stdin; r != nil {
		root.SetIn(r)
	}
	if w := c.Stdout; w != nil {
		root.SetOut(w)
	}
	if w := c.Stderr; w != nil {
		root.SetErr(w)
	}
	if args := c.Args; args != nil {
		root.SetArgs(args)
	}
	root.SetContext(ctx)
	return root.Execute()
}
