package bootpatch

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gokrazy/bootpatch/internal/assemble"
	"github.com/gokrazy/bootpatch/internal/bootimg"
	"github.com/gokrazy/bootpatch/internal/measure"
	"github.com/gokrazy/internal/humanize"
	"github.com/spf13/pflag"
)

type patchImplConfig struct {
	chunkSize int
	atomic    bool
}

func (r *patchImplConfig) registerFlags(fs *pflag.FlagSet) {
	fs.IntVarP(&r.chunkSize, "chunk_size", "", assemble.DefaultChunkSize, "size in bytes of the buffer used for copying and padding (one read or write per chunk). Must be at least the boot image page size")
	fs.BoolVarP(&r.atomic, "atomic", "", false, "write to a temporary file and replace the output only once it is complete (not supported on Windows)")
}

// openSized opens path for reading and returns its size.
func openSized(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if st.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%s: is a directory", path)
	}
	return f, st.Size(), nil
}

func (r *patchImplConfig) run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	kernelPath, addrArg, bootPath, outputPath := args[0], args[1], args[2], args[3]

	addr, err := ParseAddress(addrArg)
	if err != nil {
		return err
	}

	// Inputs are closed here until ownership passes to the assembler.
	var open []io.Closer
	defer func() {
		for _, c := range open {
			c.Close()
		}
	}()

	kernel, kernelSize, err := openSized(kernelPath)
	if err != nil {
		return err
	}
	open = append(open, kernel)
	if _, err := bootimg.KernelSize(kernelSize); err != nil {
		return err
	}

	boot, bootSize, err := openSized(bootPath)
	if err != nil {
		return err
	}
	open = append(open, boot)

	raw, err := bootimg.ReadRaw(boot)
	if err != nil {
		return fmt.Errorf("%s: %w", bootPath, err)
	}
	hdr, err := bootimg.Transform(raw, addr, kernelSize)
	if err != nil {
		return fmt.Errorf("%s: %w", bootPath, err)
	}

	cfg, err := assemble.NewConfig(hdr,
		assemble.Source{Name: bootPath, Size: bootSize, Reader: boot},
		assemble.Source{Name: kernelPath, Size: kernelSize, Reader: kernel},
		r.chunkSize)
	if err != nil {
		return err
	}
	open = nil

	var opts []assemble.Option
	if r.atomic {
		opts = append(opts, assemble.Atomic())
	}
	done := measure.Interactively(stdout, "writing "+outputPath)
	res, err := assemble.WriteFile(outputPath, cfg, opts...)
	if err != nil {
		return err
	}
	done(", " + humanize.Bytes(uint64(res.Total)))
	return nil
}
