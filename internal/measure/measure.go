// Package measure reports how long a step took.
package measure

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Interactively prints status to w and returns a function which marks the
// step as done. On a terminal the status line is overwritten in place,
// otherwise a single line is printed once the step is done.
func Interactively(w io.Writer, status string) (done func(fragment string)) {
	start := time.Now()
	if !isTerminal(w) {
		return func(fragment string) {
			fmt.Fprintf(w, "%s: done in %.2fs%s\n", status, time.Since(start).Seconds(), fragment)
		}
	}
	status = "[" + status + "]"
	fmt.Fprint(w, status)
	return func(fragment string) {
		fmt.Fprintf(w, "\r[done] in %.2fs%s"+strings.Repeat(" ", len(status))+"\n",
			time.Since(start).Seconds(),
			fragment)
	}
}
