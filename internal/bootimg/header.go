// Package bootimg implements the legacy Android boot image header, extended
// by the two trailing fields which record a secondary kernel.
//
// The on-disk layout follows mkbootimg/bootimg.h from the Android Open Source
// Project (header version 1), plus secondary_kernel_size and
// secondary_kernel_addr. All integers are little-endian, with no padding
// between fields.
package bootimg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	Magic         = "ANDROID!"
	MagicSize     = 8
	NameSize      = 16
	ArgsSize      = 512
	IDWords       = 8
	ExtraArgsSize = 1024

	// LegacyHeaderSize is the size of the version 1 header as written by
	// mkbootimg.
	LegacyHeaderSize = 1648

	// HeaderSize is LegacyHeaderSize plus the two appended secondary kernel
	// fields.
	HeaderSize = LegacyHeaderSize + 8

	// MaxKernelSize is the largest kernel which secondary_kernel_size can
	// describe.
	MaxKernelSize = math.MaxUint32
)

// Field offsets within the header.
const (
	offKernelSize          = 8
	offKernelAddr          = 12
	offRamdiskSize         = 16
	offRamdiskAddr         = 20
	offSecondSize          = 24
	offSecondAddr          = 28
	offTagsAddr            = 32
	offPageSize            = 36
	offHeaderVersion       = 40
	offOSVersion           = 44
	offName                = 48
	offCmdline             = offName + NameSize
	offID                  = offCmdline + ArgsSize
	offExtraCmdline        = offID + 4*IDWords
	offRecoveryDTBOSize    = offExtraCmdline + ExtraArgsSize
	offRecoveryDTBOOffset  = offRecoveryDTBOSize + 4
	offHeaderSize          = offRecoveryDTBOOffset + 8
	offSecondaryKernelSize = offHeaderSize + 4
	offSecondaryKernelAddr = offSecondaryKernelSize + 4
)

var (
	// ErrInvalidFormat is returned for input which is not a boot image this
	// package understands.
	ErrInvalidFormat = errors.New("invalid boot image")

	// ErrSizeLimitExceeded is returned when a kernel does not fit into the
	// 32 bit size field.
	ErrSizeLimitExceeded = errors.New("size limit exceeded")
)

// Header is a decoded boot image header.
type Header struct {
	Magic [MagicSize]byte

	KernelSize uint32
	KernelAddr uint32

	RamdiskSize uint32
	RamdiskAddr uint32

	SecondSize uint32
	SecondAddr uint32

	TagsAddr      uint32
	PageSize      uint32
	HeaderVersion uint32
	OSVersion     uint32

	Name         [NameSize]byte
	Cmdline      [ArgsSize]byte
	ID           [IDWords]uint32
	ExtraCmdline [ExtraArgsSize]byte

	RecoveryDTBOSize   uint32
	RecoveryDTBOOffset uint64
	HeaderSize         uint32

	SecondaryKernelSize uint32
	SecondaryKernelAddr uint32
}

// Decode decodes the first HeaderSize bytes of b. It does not validate the
// result, see Validate.
func Decode(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("%w: header truncated: got %d bytes, want %d", ErrInvalidFormat, len(b), HeaderSize)
	}
	le := binary.LittleEndian
	h := &Header{
		KernelSize:          le.Uint32(b[offKernelSize:]),
		KernelAddr:          le.Uint32(b[offKernelAddr:]),
		RamdiskSize:         le.Uint32(b[offRamdiskSize:]),
		RamdiskAddr:         le.Uint32(b[offRamdiskAddr:]),
		SecondSize:          le.Uint32(b[offSecondSize:]),
		SecondAddr:          le.Uint32(b[offSecondAddr:]),
		TagsAddr:            le.Uint32(b[offTagsAddr:]),
		PageSize:            le.Uint32(b[offPageSize:]),
		HeaderVersion:       le.Uint32(b[offHeaderVersion:]),
		OSVersion:           le.Uint32(b[offOSVersion:]),
		RecoveryDTBOSize:    le.Uint32(b[offRecoveryDTBOSize:]),
		RecoveryDTBOOffset:  le.Uint64(b[offRecoveryDTBOOffset:]),
		HeaderSize:          le.Uint32(b[offHeaderSize:]),
		SecondaryKernelSize: le.Uint32(b[offSecondaryKernelSize:]),
		SecondaryKernelAddr: le.Uint32(b[offSecondaryKernelAddr:]),
	}
	copy(h.Magic[:], b[:MagicSize])
	copy(h.Name[:], b[offName:])
	copy(h.Cmdline[:], b[offCmdline:])
	for i := range h.ID {
		h.ID[i] = le.Uint32(b[offID+4*i:])
	}
	copy(h.ExtraCmdline[:], b[offExtraCmdline:])
	return h, nil
}

// Validate checks the invariants the rest of the program relies on. The magic
// is checked first.
func (h *Header) Validate() error {
	if string(h.Magic[:]) != Magic {
		return fmt.Errorf("%w: Invalid bootimage header magic", ErrInvalidFormat)
	}
	if h.PageSize == 0 {
		return fmt.Errorf("%w: Invalid bootimage header (page size is 0)", ErrInvalidFormat)
	}
	return nil
}

// ReadRaw reads the HeaderSize bytes of the header from r, which must be
// positioned at the start of a boot image.
func ReadRaw(r io.Reader) ([]byte, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: file is shorter than the %d byte header", ErrInvalidFormat, HeaderSize)
		}
		return nil, err
	}
	return buf, nil
}

// ReadHeader reads HeaderSize bytes from r, which must be positioned at the
// start of a boot image, and returns the validated header.
func ReadHeader(r io.Reader) (*Header, error) {
	buf, err := ReadRaw(r)
	if err != nil {
		return nil, err
	}
	h, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// AppendBinary appends the encoded header to b.
func (h *Header) AppendBinary(b []byte) ([]byte, error) {
	out := make([]byte, HeaderSize)
	le := binary.LittleEndian
	copy(out, h.Magic[:])
	le.PutUint32(out[offKernelSize:], h.KernelSize)
	le.PutUint32(out[offKernelAddr:], h.KernelAddr)
	le.PutUint32(out[offRamdiskSize:], h.RamdiskSize)
	le.PutUint32(out[offRamdiskAddr:], h.RamdiskAddr)
	le.PutUint32(out[offSecondSize:], h.SecondSize)
	le.PutUint32(out[offSecondAddr:], h.SecondAddr)
	le.PutUint32(out[offTagsAddr:], h.TagsAddr)
	le.PutUint32(out[offPageSize:], h.PageSize)
	le.PutUint32(out[offHeaderVersion:], h.HeaderVersion)
	le.PutUint32(out[offOSVersion:], h.OSVersion)
	copy(out[offName:], h.Name[:])
	copy(out[offCmdline:], h.Cmdline[:])
	for i, word := range h.ID {
		le.PutUint32(out[offID+4*i:], word)
	}
	copy(out[offExtraCmdline:], h.ExtraCmdline[:])
	le.PutUint32(out[offRecoveryDTBOSize:], h.RecoveryDTBOSize)
	le.PutUint64(out[offRecoveryDTBOOffset:], h.RecoveryDTBOOffset)
	le.PutUint32(out[offHeaderSize:], h.HeaderSize)
	le.PutUint32(out[offSecondaryKernelSize:], h.SecondaryKernelSize)
	le.PutUint32(out[offSecondaryKernelAddr:], h.SecondaryKernelAddr)
	return append(b, out...), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (h *Header) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, HeaderSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Like Decode, it
// does not validate.
func (h *Header) UnmarshalBinary(b []byte) error {
	dec, err := Decode(b)
	if err != nil {
		return err
	}
	*h = *dec
	return nil
}

// WithSecondaryKernel returns a copy of h in which the current kernel is
// demoted to the secondary slot and addr becomes the primary load address.
// header_size grows by the 8 bytes of the two secondary fields.
func (h Header) WithSecondaryKernel(addr, size uint32) Header {
	h.SecondaryKernelAddr = h.KernelAddr
	h.KernelAddr = addr
	h.SecondaryKernelSize = size
	h.HeaderSize += 8
	return h
}

// KernelSize converts a file size to the value stored in
// secondary_kernel_size.
func KernelSize(n int64) (uint32, error) {
	if n < 0 || n > MaxKernelSize {
		return 0, fmt.Errorf("%w: Kernel file is too big (%d > %d)", ErrSizeLimitExceeded, n, uint64(MaxKernelSize))
	}
	return uint32(n), nil
}

// Transform decodes and validates the header in b and records a secondary
// kernel of kernelSize bytes, with addr as the new primary load address.
func Transform(b []byte, addr uint32, kernelSize int64) (*Header, error) {
	h, err := Decode(b)
	if err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	size, err := KernelSize(kernelSize)
	if err != nil {
		return nil, err
	}
	mutated := h.WithSecondaryKernel(addr, size)
	return &mutated, nil
}

// PaddingSize returns the number of zero bytes which align a section of n
// bytes to pageSize. A section which is already aligned gets no padding.
func PaddingSize(n int64, pageSize uint32) int64 {
	page := int64(pageSize)
	if rem := n % page; rem != 0 {
		return page - rem
	}
	return 0
}

// BoardName returns the product name without trailing NUL bytes.
func (h *Header) BoardName() string {
	return cstring(h.Name[:])
}

// CommandLine returns cmdline followed by extra_cmdline, the way the
// bootloader concatenates them.
func (h *Header) CommandLine() string {
	return cstring(h.Cmdline[:]) + cstring(h.ExtraCmdline[:])
}

func cstring(b []byte) string {
	if idx := bytes.IndexByte(b, 0); idx > -1 {
		b = b[:idx]
	}
	return string(b)
}
