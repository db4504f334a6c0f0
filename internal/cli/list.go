package cli

import (
	"github.com/spf13/cobra"

	"github.com/coral-mesh/sourcenav/internal/cli/helpers"
	sourcenaverrors "github.com/coral-mesh/sourcenav/internal/errors"
)

func newListCmd(a *app) *cobra.Command {
	var (
		flags    helpers.ResolveFlags
		output   string
		typeName string
	)
	outputs := []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON, helpers.FormatCSV}

	cmd := &cobra.Command{
		Use:   "list <binary>",
		Short: "List the types and methods with navigation data",
		Long: `List every cached type and method of a binary with its source location.

The native backend lists every function the debug information declares, the
portable backend only methods that have sequence points.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(output, outputs); err != nil {
				return err
			}
			flags.Apply(cmd.Flags(), &a.cfg.Resolve)

			r, err := a.openResolver(args[0])
			if err != nil {
				return err
			}
			defer sourcenaverrors.DeferClose(a.logger, r, "Failed to close resolver")

			types := r.Types()
			if typeName != "" {
				types = []string{typeName}
			}

			rows := []resolution{}
			for _, t := range types {
				for _, m := range r.Methods(t) {
					rows = append(rows, newResolution(t, m, r.Backend(), r.GetNavigationData(t, m)))
				}
			}

			formatter, err := helpers.NewFormatter(helpers.OutputFormat(output))
			if err != nil {
				return err
			}
			return formatter.Format(rows, cmd.OutOrStdout())
		},
	}

	helpers.AddResolveFlags(cmd.Flags(), &flags)
	helpers.AddOutputFlag(cmd, &output, helpers.FormatTable, outputs)
	cmd.Flags().StringVarP(&typeName, "type", "t", "", "Only list the methods of this type")
	return cmd
}
