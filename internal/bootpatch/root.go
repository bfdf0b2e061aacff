package bootpatch

import (
	"errors"
	"fmt"

	"github.com/gokrazy/bootpatch/internal/version"
	"github.com/spf13/cobra"
)

var (
	// ErrUsage is returned when the command line has the wrong number of
	// arguments. The usage line has already been printed to stdout.
	ErrUsage = errors.New("usage error")

	// ErrArgument is returned for malformed arguments.
	ErrArgument = errors.New("invalid argument")
)

const usage = "<kernel_file> <primary_kernel_address> <boot.img> <output>"

func RootCmd() *cobra.Command {
	var patchImpl patchImplConfig
	rootCmd := &cobra.Command{
		Use:   "bootpatch " + usage,
		Short: "embed a secondary kernel into an Android boot image",
		Long: `bootpatch writes a copy of an Android boot image which carries a second
kernel, so that the bootloader can choose between both kernels at boot time.

The new kernel is appended to the image. In the header, the new kernel's load
address replaces the original kernel_addr, and the original kernel is recorded
in the secondary_kernel_size and secondary_kernel_addr fields.

The input must be a valid boot image (header version 1 or older) whose
sections are aligned to its page size; bootpatch does not check this.

Flags must come before the positional arguments; everything from the first
positional argument on is taken literally, so negative numbers are rejected
as invalid addresses. A kernel file whose name starts with - must be passed
after --. A kernel file named like a subcommand (inspect, help) must be
passed as a path, e.g. ./inspect.

Examples:
  # Append zImage as a new kernel loaded at 0x10008000:
  % bootpatch zImage 0x10008000 boot.img boot-dual.img
`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			versionVal, err := cmd.Flags().GetBool("version")
			if err != nil {
				return fmt.Errorf("BUG: version flag declared as non-bool")
			}
			if versionVal {
				fmt.Fprintln(cmd.OutOrStdout(), version.Read())
				return nil
			}
			if len(args) != 4 {
				fmt.Fprintf(cmd.OutOrStdout(), "Usage: %s %s\n", cmd.Root().Name(), usage)
				return ErrUsage
			}
			return patchImpl.run(cmd.Context(), args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	// Positional arguments are file names and addresses, never flags.
	rootCmd.Flags().SetInterspersed(false)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().Bool("version", false, "print bootpatch version")
	patchImpl.registerFlags(rootCmd.Flags())
	rootCmd.AddCommand(inspectCmd())
	return rootCmd
}
