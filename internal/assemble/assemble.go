// Package assemble writes a boot image which carries a secondary kernel: the
// mutated header, the original image's payload and the new kernel, each
// payload padded to the image's page size.
package assemble

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/gokrazy/bootpatch/internal/bootimg"
	"github.com/gokrazy/internal/humanize"
	"github.com/hashicorp/go-multierror"
)

// DefaultChunkSize is the size of the buffer used for copying and padding.
const DefaultChunkSize = 4096

// ErrConfiguration is returned for an assembly configuration which cannot
// produce a correctly aligned image.
var ErrConfiguration = errors.New("invalid configuration")

// Source is an input file which the assembler consumes and closes. Size is
// the size of the whole file as reported by stat.
type Source struct {
	Name   string
	Size   int64
	Reader io.ReadCloser
}

// Config is constructed once by NewConfig and consumed by a single Assemble
// or WriteFile call.
type Config struct {
	header    bootimg.Header
	encoded   []byte
	boot      Source
	kernel    Source
	chunkSize int
}

// NewConfig validates its arguments and returns the configuration for one
// run. boot.Reader must be positioned right after the header. hdr is copied.
func NewConfig(hdr *bootimg.Header, boot, kernel Source, chunkSize int) (*Config, error) {
	if hdr.PageSize == 0 {
		return nil, fmt.Errorf("%w: page size is 0", bootimg.ErrInvalidFormat)
	}
	if chunkSize <= 0 || int64(chunkSize) < int64(hdr.PageSize) {
		return nil, fmt.Errorf("%w: chunk size %d is smaller than the page size %d", ErrConfiguration, chunkSize, hdr.PageSize)
	}
	if boot.Size < bootimg.HeaderSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, smaller than its header", bootimg.ErrInvalidFormat, boot.Name, boot.Size)
	}
	encoded, err := hdr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &Config{
		header:    *hdr,
		encoded:   encoded,
		boot:      boot,
		kernel:    kernel,
		chunkSize: chunkSize,
	}, nil
}

// ChunkSize returns the copy buffer size.
func (c *Config) ChunkSize() int { return c.chunkSize }

// Layout returns the section sizes of the image which c describes.
func (c *Config) Layout() Result {
	pageSize := c.header.PageSize
	r := Result{
		Header:         int64(len(c.encoded)),
		Payload:        c.boot.Size - bootimg.HeaderSize,
		PayloadPadding: bootimg.PaddingSize(c.boot.Size, pageSize),
		Kernel:         c.kernel.Size,
		KernelPadding:  bootimg.PaddingSize(c.kernel.Size, pageSize),
	}
	r.Total = r.Header + r.Payload + r.PayloadPadding + r.Kernel + r.KernelPadding
	return r
}

// Result describes the sections of an assembled image, in bytes.
type Result struct {
	Header         int64
	Payload        int64
	PayloadPadding int64
	Kernel         int64
	KernelPadding  int64
	Total          int64
}

// Assemble writes the image described by cfg to w and closes both sources,
// each as soon as it has been copied. Padding after the original payload is
// computed from the size of the whole original image, which includes the
// header.
func Assemble(w io.Writer, cfg *Config) (_ *Result, err error) {
	boot, kernel := cfg.boot.Reader, cfg.kernel.Reader
	defer func() {
		// Close whatever an early return left open.
		for _, rc := range []io.ReadCloser{boot, kernel} {
			if rc == nil {
				continue
			}
			if cerr := rc.Close(); cerr != nil {
				err = multierror.Append(err, cerr)
			}
		}
	}()

	layout := cfg.Layout()
	res := &Result{}
	buf := make([]byte, cfg.chunkSize)

	n, err := w.Write(cfg.encoded)
	res.Header = int64(n)
	if err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	res.Payload, err = copySection(w, boot, layout.Payload, buf)
	if err != nil {
		return nil, fmt.Errorf("copying %s: %w", cfg.boot.Name, err)
	}
	rc := boot
	boot = nil
	if err := rc.Close(); err != nil {
		return nil, err
	}

	if layout.PayloadPadding > 0 {
		log.Printf("Aligning boot.img (adding %d extra bytes)", layout.PayloadPadding)
	}
	res.PayloadPadding, err = writePadding(w, layout.PayloadPadding, buf)
	if err != nil {
		return nil, fmt.Errorf("padding %s: %w", cfg.boot.Name, err)
	}

	res.Kernel, err = copySection(w, kernel, layout.Kernel, buf)
	if err != nil {
		return nil, fmt.Errorf("copying %s: %w", cfg.kernel.Name, err)
	}
	rc = kernel
	kernel = nil
	if err := rc.Close(); err != nil {
		return nil, err
	}

	if layout.KernelPadding > 0 {
		log.Printf("Aligning kernel image (adding %d extra bytes)", layout.KernelPadding)
	}
	res.KernelPadding, err = writePadding(w, layout.KernelPadding, buf)
	if err != nil {
		return nil, fmt.Errorf("padding %s: %w", cfg.kernel.Name, err)
	}

	res.Total = res.Header + res.Payload + res.PayloadPadding + res.Kernel + res.KernelPadding
	log.Printf("wrote %s (payload %s, kernel %s)",
		humanize.Bytes(uint64(res.Total)),
		humanize.Bytes(uint64(res.Payload)),
		humanize.Bytes(uint64(res.Kernel)))
	return res, nil
}

// copySection copies exactly want bytes from r to w. A source which changed
// size since it was stat'ed is an error.
func copySection(w io.Writer, r io.Reader, want int64, buf []byte) (int64, error) {
	n, err := io.CopyBuffer(onlyWriter{w}, onlyReader{r}, buf)
	if err != nil {
		return n, err
	}
	if n != want {
		return n, fmt.Errorf("copied %d bytes, expected %d (file changed while reading?)", n, want)
	}
	return n, nil
}

// writePadding writes count zero bytes, at most len(zero) per Write call.
func writePadding(w io.Writer, count int64, zero []byte) (int64, error) {
	clear(zero)
	var written int64
	for written < count {
		chunk := zero
		if rest := count - written; rest < int64(len(chunk)) {
			chunk = chunk[:rest]
		}
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// onlyReader and onlyWriter hide io.WriterTo and io.ReaderFrom, so that
// io.CopyBuffer moves data in chunks of the configured size.
type onlyReader struct {
	io.Reader
}

type onlyWriter struct {
	io.Writer
}
