package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/sourcenav/internal/cli/helpers"
	sourcenaverrors "github.com/coral-mesh/sourcenav/internal/errors"
	"github.com/coral-mesh/sourcenav/pkg/navigation"
	"github.com/coral-mesh/sourcenav/pkg/resolver"
)

// resolution is the result of one lookup.
type resolution struct {
	Type     string `json:"type" header:"TYPE"`
	Method   string `json:"method" header:"METHOD"`
	Found    bool   `json:"found"`
	Location string `json:"-" header:"LOCATION"`
	Backend  string `json:"backend"`
	*navigation.Data
}

func newResolution(typeName, methodName string, backend resolver.Format, data *navigation.Data) resolution {
	r := resolution{
		Type:     typeName,
		Method:   methodName,
		Found:    data != nil,
		Location: "-",
		Backend:  string(backend),
		Data:     data,
	}
	if data != nil {
		r.Location = data.String()
	}
	return r
}

// openResolver opens binaryPath with the configured resolve settings.
func (a *app) openResolver(binaryPath string) (*resolver.Resolver, error) {
	format, err := resolver.ParseFormat(a.cfg.Resolve.Format)
	if err != nil {
		return nil, err
	}
	return resolver.Open(binaryPath, a.cfg.Resolve.SearchPath,
		resolver.WithLogger(a.logger),
		resolver.WithFormat(format),
		resolver.WithCRC(a.cfg.Resolve.VerifyCRC))
}

func newResolveCmd(a *app) *cobra.Command {
	var (
		flags  helpers.ResolveFlags
		output string
	)
	outputs := []helpers.OutputFormat{helpers.FormatText, helpers.FormatJSON}

	cmd := &cobra.Command{
		Use:   "resolve <binary> <type> <method>",
		Short: "Print the source location of a method",
		Long: `Print the source file and line range of a method.

Nested types may be written with '+' or '.' as the separator. A method
without navigation data is reported as not found; that is not an error.`,
		Example: `  sourcenav resolve ./bin/Sample.Tests Sample.Tests.MathTests Add_ReturnsSum
  sourcenav resolve app.test example.com/app.(*Server) TestStart -o json`,
		Args: cobra.ExactArgs(3),
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

			data := r.GetNavigationData(args[1], args[2])
			result := newResolution(args[1], args[2], r.Backend(), data)

			if output == string(helpers.FormatText) && data == nil {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s.%s: no navigation data\n", args[1], args[2])
				return err
			}

			formatter, err := helpers.NewFormatter(helpers.OutputFormat(output))
			if err != nil {
				return err
			}
			return formatter.Format(result, cmd.OutOrStdout())
		},
	}

	helpers.AddResolveFlags(cmd.Flags(), &flags)
	helpers.AddOutputFlag(cmd, &output, helpers.FormatText, outputs)
	return cmd
}
