package bootpatch

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/gokrazy/bootpatch/internal/bootimg"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func inspectCmd() *cobra.Command {
	var inspectImpl inspectImplConfig
	return &cobra.Command{
		Use:   "inspect <boot.img>",
		Short: "Print the header of a boot image",
		Long: `Print the header of a boot image, including the secondary kernel fields if
the header records them.

Examples:
  % bootpatch inspect boot-dual.img
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectImpl.run(cmd.Context(), args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

type inspectImplConfig struct{}

func hex32(v uint32) string { return fmt.Sprintf("0x%08x", v) }

func (r *inspectImplConfig) run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	path := args[0]
	f, _, err := openSized(path)
	if err != nil {
		return err
	}
	defer f.Close()
	h, err := bootimg.ReadHeader(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	writeHeaderTable(stdout, h)
	return nil
}

func writeHeaderTable(w io.Writer, h *bootimg.Header) {
	osVersion := bootimg.DecodeOSVersion(h.OSVersion)
	rows := [][]string{
		{"kernel", strconv.FormatUint(uint64(h.KernelSize), 10), hex32(h.KernelAddr)},
		{"ramdisk", strconv.FormatUint(uint64(h.RamdiskSize), 10), hex32(h.RamdiskAddr)},
		{"second", strconv.FormatUint(uint64(h.SecondSize), 10), hex32(h.SecondAddr)},
		{"tags", "", hex32(h.TagsAddr)},
		{"recovery_dtbo", strconv.FormatUint(uint64(h.RecoveryDTBOSize), 10), fmt.Sprintf("0x%x", h.RecoveryDTBOOffset)},
	}
	// Only headers written by bootpatch are large enough to hold the
	// secondary kernel fields.
	if h.HeaderSize >= bootimg.HeaderSize {
		rows = append(rows, []string{"secondary_kernel", strconv.FormatUint(uint64(h.SecondaryKernelSize), 10), hex32(h.SecondaryKernelAddr)})
	}

	fmt.Fprintf(w, "board:          %q\n", h.BoardName())
	fmt.Fprintf(w, "cmdline:        %q\n", h.CommandLine())
	fmt.Fprintf(w, "page size:      %d\n", h.PageSize)
	fmt.Fprintf(w, "header version: %d\n", h.HeaderVersion)
	fmt.Fprintf(w, "header size:    %d\n", h.HeaderSize)
	if h.OSVersion != 0 {
		fmt.Fprintf(w, "os version:     %s (patch level %s)\n", osVersion, osVersion.PatchLevel())
	}
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"section", "size", "address"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()
}
