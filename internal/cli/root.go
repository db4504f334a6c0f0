// Package cli implements the sourcenav command line.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/sourcenav/internal/config"
	"github.com/coral-mesh/sourcenav/internal/logging"
	"github.com/coral-mesh/sourcenav/pkg/version"
)

// app is the state shared by every command of one invocation.
type app struct {
	configPath string
	logLevel   string
	logPretty  bool

	cfg    *config.Config
	logger zerolog.Logger
}

// NewRootCmd builds the sourcenav command tree.
func NewRootCmd() *cobra.Command {
	a := &app{logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "sourcenav",
		Short: "Map test methods in compiled binaries back to their source",
		Long: `sourcenav resolves the source file and line range of a method in a compiled
test binary, for test runners and editors that offer "navigate to source".

Two kinds of debug information are understood:
- native: DWARF embedded in ELF, Mach-O or PE binaries, or in a separate
  debug file next to them
- portable: a .psym symbol file shipped next to the binary, read together
  with the binary's own function table

The format is detected per binary unless --format forces one.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default ~/.sourcenav/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error, disabled)")
	flags.BoolVar(&a.logPretty, "log-pretty", true, "Human readable log output")

	rootCmd.AddCommand(newResolveCmd(a))
	rootCmd.AddCommand(newListCmd(a))
	rootCmd.AddCommand(newExportCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// setup loads the configuration, applies the global flags and builds the
// logger.
func (a *app) setup(cmd *cobra.Command) error {
	loader := config.NewLoader()

	var err error
	if a.configPath != "" {
		a.cfg, err = loader.LoadFile(a.configPath)
	} else {
		a.cfg, err = loader.Load()
	}
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		if _, err := logging.ParseLevel(a.logLevel); err != nil {
			return err
		}
		a.cfg.Logging.Level = a.logLevel
	}
	if flags.Changed("log-pretty") {
		a.cfg.Logging.Pretty = a.logPretty
	}

	a.logger = logging.New(logging.Config{
		Level:  a.cfg.Logging.Level,
		Pretty: a.cfg.Logging.Pretty,
		Output: cmd.ErrOrStderr(),
	})
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), version.String())
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
