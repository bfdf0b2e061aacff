package assemble

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
)

// OutputMode is the permission of newly created output files.
const OutputMode = 0755

type writeOptions struct {
	atomic bool
}

// Option configures WriteFile.
type Option func(*writeOptions)

// Atomic makes WriteFile write to a temporary file which replaces path only
// once the image is complete. Without it, a failed run leaves a partially
// written path behind.
func Atomic() Option {
	return func(o *writeOptions) { o.atomic = true }
}

// output is the destination file of one WriteFile call.
type output interface {
	io.Writer
	// commit makes the written contents visible at the destination path.
	commit() error
	// abort releases the file after a failed write.
	abort() error
}

type truncatedFile struct {
	*os.File
}

func (f truncatedFile) commit() error { return f.Close() }
func (f truncatedFile) abort() error  { return f.Close() }

func createTruncated(path string) (output, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, OutputMode)
	if err != nil {
		return nil, err
	}
	return truncatedFile{f}, nil
}

// WriteFile creates (or truncates) path and writes the image described by
// cfg into it. Both sources are closed when WriteFile returns.
func WriteFile(path string, cfg *Config, opts ...Option) (*Result, error) {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}

	create := createTruncated
	if o.atomic {
		create = createAtomic
	}
	out, err := create(path)
	if err != nil {
		if cerr := cfg.closeSources(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
		return nil, err
	}

	bufw := bufio.NewWriterSize(out, cfg.chunkSize)
	res, err := Assemble(bufw, cfg)
	if err == nil {
		err = bufw.Flush()
	}
	if err != nil {
		if aerr := out.abort(); aerr != nil {
			err = multierror.Append(err, aerr)
		}
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := out.commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// closeSources closes both sources without reading them.
func (c *Config) closeSources() error {
	var result *multierror.Error
	for _, src := range []Source{c.boot, c.kernel} {
		if src.Reader == nil {
			continue
		}
		if err := src.Reader.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
