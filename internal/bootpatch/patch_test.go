package bootpatch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gokrazy/bootpatch/internal/assemble"
	"github.com/gokrazy/bootpatch/internal/bootimg"
	"github.com/google/go-cmp/cmp"
)

type fixture struct {
	dir    string
	kernel string
	boot   string
	output string
}

func writeBootImage(t *testing.T, path string, modify func(h *bootimg.Header), total int) *bootimg.Header {
	t.Helper()
	h := &bootimg.Header{
		KernelSize: 4096,
		KernelAddr: 0x80008000,
		PageSize:   2048,
		HeaderSize: bootimg.LegacyHeaderSize,
		OSVersion:  bootimg.OSVersion{Major: 8, Minor: 1, Year: 2018, Month: 6}.Encode(),
	}
	copy(h.Magic[:], bootimg.Magic)
	copy(h.Name[:], "grouper")
	copy(h.Cmdline[:], "console=ttyS0")
	if modify != nil {
		modify(h)
	}
	b, err := h.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	for len(b) < total {
		b = append(b, byte(len(b)))
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		t.Fatal(err)
	}
	return h
}

func newFixture(t *testing.T, modify func(h *bootimg.Header)) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:    dir,
		kernel: filepath.Join(dir, "zImage"),
		boot:   filepath.Join(dir, "boot.img"),
		output: filepath.Join(dir, "out.img"),
	}
	if err := os.WriteFile(f.kernel, []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}
	writeBootImage(t, f.boot, modify, 2050)
	return f
}

func execute(t *testing.T, args ...string) (stdout string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := RootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	root.SetContext(context.Background())
	err = root.Execute()
	return out.String(), err
}

func assertNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("%s unexpectedly created (stat: %v)", path, err)
	}
}

func TestPatch(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := execute(t, f.kernel, "0x10008000", f.boot, f.output); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(f.output)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(b), 3*2048; got != want {
		t.Fatalf("output length: got %d, want %d", got, want)
	}
	orig, err := os.ReadFile(f.boot)
	if err != nil {
		t.Fatal(err)
	}

	got, err := bootimg.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	want, err := bootimg.Decode(orig)
	if err != nil {
		t.Fatal(err)
	}
	want.SecondaryKernelAddr = want.KernelAddr
	want.KernelAddr = 0x10008000
	want.SecondaryKernelSize = 10
	want.HeaderSize += 8
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output header: unexpected diff (-want +got):\n%s", diff)
	}

	if !bytes.Equal(b[bootimg.HeaderSize:2050], orig[bootimg.HeaderSize:]) {
		t.Errorf("boot image payload not copied verbatim")
	}
	if !bytes.Equal(b[2050:4096], make([]byte, 2046)) {
		t.Errorf("boot image padding is not zero")
	}
	if got, want := string(b[4096:4106]), "0123456789"; got != want {
		t.Errorf("kernel: got %q, want %q", got, want)
	}
	if !bytes.Equal(b[4106:], make([]byte, 2038)) {
		t.Errorf("kernel padding is not zero")
	}
}

func TestPatchArgumentsTakenLiterally(t *testing.T) {
	f := newFixture(t, nil)
	// A kernel named like a subcommand, passed as a path.
	kernel := filepath.Join(f.dir, "inspect")
	if err := os.Rename(f.kernel, kernel); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--chunk_size=2048", "--", kernel, "0x10008000", f.boot, f.output); err != nil {
		t.Fatal(err)
	}
	h, err := readHeaderFile(f.output)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := h.SecondaryKernelSize, uint32(10); got != want {
		t.Errorf("secondary_kernel_size: got %d, want %d", got, want)
	}
}

func TestPatchAtomic(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := execute(t, "--atomic", f.kernel, "4096", f.boot, f.output); err != nil {
		if errors.Is(err, assemble.ErrConfiguration) {
			t.Skipf("atomic output not supported: %v", err)
		}
		t.Fatal(err)
	}
	h, err := readHeaderFile(f.output)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := h.KernelAddr, uint32(4096); got != want {
		t.Errorf("kernel_addr: got %#x, want %#x", got, want)
	}
}

func readHeaderFile(path string) (*bootimg.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return bootimg.ReadHeader(f)
}

func TestPatchErrors(t *testing.T) {
	for _, tt := range []struct {
		name    string
		modify  func(h *bootimg.Header)
		args    func(f fixture) []string
		wantErr error
	}{
		{
			name:    "NoArgs",
			args:    func(f fixture) []string { return []string{} },
			wantErr: ErrUsage,
		},
		{
			name:    "TooFewArgs",
			args:    func(f fixture) []string { return []string{f.kernel, "0", f.boot} },
			wantErr: ErrUsage,
		},
		{
			name:    "AddressOutOfRange",
			args:    func(f fixture) []string { return []string{f.kernel, "4294967296", f.boot, f.output} },
			wantErr: ErrArgument,
		},
		{
			name:    "AddressTrailingGarbage",
			args:    func(f fixture) []string { return []string{f.kernel, "123x", f.boot, f.output} },
			wantErr: ErrArgument,
		},
		{
			name:    "NegativeAddress",
			args:    func(f fixture) []string { return []string{f.kernel, "-1", f.boot, f.output} },
			wantErr: ErrArgument,
		},
		{
			name:    "NegativeHexAddress",
			args:    func(f fixture) []string { return []string{f.kernel, "-0x10", f.boot, f.output} },
			wantErr: ErrArgument,
		},
		{
			name:    "FlagAfterPositional",
			args:    func(f fixture) []string { return []string{f.kernel, "0", f.boot, f.output, "--atomic"} },
			wantErr: ErrUsage,
		},
		{
			name:    "CompletionIsNotACommand",
			args:    func(f fixture) []string { return []string{"completion", "0", f.boot, f.output} },
			wantErr: os.ErrNotExist,
		},
		{
			name:    "MissingKernel",
			args:    func(f fixture) []string { return []string{filepath.Join(f.dir, "nope"), "0", f.boot, f.output} },
			wantErr: os.ErrNotExist,
		},
		{
			name:    "MissingBootImage",
			args:    func(f fixture) []string { return []string{f.kernel, "0", filepath.Join(f.dir, "nope"), f.output} },
			wantErr: os.ErrNotExist,
		},
		{
			name:    "BadMagic",
			modify:  func(h *bootimg.Header) { copy(h.Magic[:], "ANDROIX!") },
			args:    func(f fixture) []string { return []string{f.kernel, "0", f.boot, f.output} },
			wantErr: bootimg.ErrInvalidFormat,
		},
		{
			name:    "ZeroPageSize",
			modify:  func(h *bootimg.Header) { h.PageSize = 0 },
			args:    func(f fixture) []string { return []string{f.kernel, "0", f.boot, f.output} },
			wantErr: bootimg.ErrInvalidFormat,
		},
		{
			name:    "ChunkSmallerThanPage",
			args:    func(f fixture) []string { return []string{"--chunk_size=1024", f.kernel, "0", f.boot, f.output} },
			wantErr: assemble.ErrConfiguration,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.modify)
			_, err := execute(t, tt.args(f)...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			assertNotExist(t, f.output)
		})
	}
}

func TestPatchKeepsExistingOutputOnBadMagic(t *testing.T) {
	f := newFixture(t, func(h *bootimg.Header) { h.Magic = [8]byte{} })
	if err := os.WriteFile(f.output, []byte("keep me"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, f.kernel, "0", f.boot, f.output); !errors.Is(err, bootimg.ErrInvalidFormat) {
		t.Fatalf("got %v, want ErrInvalidFormat", err)
	}
	b, err := os.ReadFile(f.output)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), "keep me"; got != want {
		t.Errorf("output modified: got %q, want %q", got, want)
	}
}

func TestUsage(t *testing.T) {
	stdout, err := execute(t, "only-one-arg")
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("got %v, want ErrUsage", err)
	}
	if want := "Usage: bootpatch <kernel_file> <primary_kernel_address> <boot.img> <output>\n"; stdout != want {
		t.Errorf("unexpected usage output: got %q, want %q", stdout, want)
	}
}

func TestVersion(t *testing.T) {
	stdout, err := execute(t, "--version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(stdout) == "" {
		t.Errorf("--version printed nothing")
	}
}

func TestInspect(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := execute(t, f.kernel, "0x10008000", f.boot, f.output); err != nil {
		t.Fatal(err)
	}

	t.Run("Original", func(t *testing.T) {
		stdout, err := execute(t, "inspect", f.boot)
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{`"grouper"`, `"console=ttyS0"`, "8.1.0", "2018-06", "0x80008000"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("inspect output does not contain %q:\n%s", want, stdout)
			}
		}
		if strings.Contains(stdout, "secondary_kernel") {
			t.Errorf("inspect shows secondary kernel for an unpatched image:\n%s", stdout)
		}
	})

	t.Run("Patched", func(t *testing.T) {
		stdout, err := execute(t, "inspect", f.output)
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{"secondary_kernel", "0x10008000", "0x80008000", "1656"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("inspect output does not contain %q:\n%s", want, stdout)
			}
		}
	})

	t.Run("BadMagic", func(t *testing.T) {
		if _, err := execute(t, "inspect", f.kernel); !errors.Is(err, bootimg.ErrInvalidFormat) {
			t.Errorf("got %v, want ErrInvalidFormat", err)
		}
	})
}
