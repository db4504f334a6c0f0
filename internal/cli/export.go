package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	sourcenaverrors "github.com/coral-mesh/sourcenav/internal/errors"
	"github.com/coral-mesh/sourcenav/pkg/navigation"
	"github.com/coral-mesh/sourcenav/pkg/psym"
	"github.com/coral-mesh/sourcenav/pkg/symengine/dwarfengine"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		searchPath string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "export <binary>",
		Short: "Write the portable symbol file of a binary",
		Long: `Read the DWARF debug information of a binary and write it as a portable
symbol file (.psym). The binary can then be stripped; the portable backend
resolves methods from the symbol file and the binary's function table.

The symbol file is written next to the binary unless --out is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("search-path") {
				searchPath = a.cfg.Resolve.SearchPath
			}
			binaryPath, debugDir, err := navigation.ResolvePaths(args[0], searchPath)
			if err != nil {
				return err
			}
			if out == "" {
				out = navigation.CompanionPaths(binaryPath, "", psym.Ext)[0]
			}

			n, err := export(binaryPath, debugDir, out, a)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d methods to %s\n", n, out)
			return err
		},
	}

	cmd.Flags().StringVar(&searchPath, "search-path", "", "Directory probed for a separate debug file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (default <binary>.psym next to the binary)")
	return cmd
}

func export(binaryPath, searchPath, out string, a *app) (n int, err error) {
	//nolint:gosec // G304: output path is chosen by the user.
	f, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("failed to create symbol file: %w", err)
	}
	defer sourcenaverrors.CloseWith(&err, f, "symbol file")

	n, err = dwarfengine.Export(binaryPath, searchPath, f, a.logger)
	if err != nil {
		_ = os.Remove(out)
		return 0, err
	}
	return n, nil
}
