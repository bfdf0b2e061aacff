// Binary bootpatch embeds a secondary kernel into an Android boot image.
//
// Usage:
//
//	bootpatch <kernel_file> <primary_kernel_address> <boot.img> <output>
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/gokrazy/bootpatch/bootpatch"
)

func main() {
	// Progress lines go to stdout, errors to stderr.
	log.SetFlags(0)
	log.SetOutput(os.Stdout)
	if err := (bootpatch.Context{}).Execute(context.Background()); err != nil {
		if !errors.Is(err, bootpatch.ErrUsage) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(1)
	}
}
