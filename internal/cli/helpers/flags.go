// Package helpers holds flag and output helpers shared by the sourcenav
// commands.
package helpers

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coral-mesh/sourcenav/internal/config"
	"github.com/coral-mesh/sourcenav/pkg/resolver"
)

// AddOutputFlag adds a standard --output/-o flag to a command.
func AddOutputFlag(cmd *cobra.Command, outputVar *string, defaultFormat OutputFormat, supportedFormats []OutputFormat) {
	names := formatNames(supportedFormats)

	description := fmt.Sprintf("Output format (%s)", strings.Join(names, ", "))
	cmd.Flags().StringVarP(outputVar, "output", "o", string(defaultFormat), description)

	_ = cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return names, cobra.ShellCompDirectiveNoFileComp
	})
}

// ValidateFormat checks if the format is in the supported list.
func ValidateFormat(format string, supported []OutputFormat) error {
	for _, s := range supported {
		if format == string(s) {
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q, must be one of: %s",
		format, strings.Join(formatNames(supported), ", "))
}

func formatNames(formats []OutputFormat) []string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return names
}

// ResolveFlags are the flags that control how a binary is opened.
type ResolveFlags struct {
	SearchPath string
	Format     string
	VerifyCRC  bool
}

// AddResolveFlags registers --search-path, --format and --verify-crc on fs.
func AddResolveFlags(fs *pflag.FlagSet, flags *ResolveFlags) {
	fs.StringVar(&flags.SearchPath, "search-path", "", "Directory probed for debug companions (defaults to the working directory)")

	formats := make([]string, len(resolver.Formats))
	for i, f := range resolver.Formats {
		formats[i] = string(f)
	}
	fs.StringVar(&flags.Format, "format", string(resolver.FormatAuto),
		fmt.Sprintf("Debug information format (%s)", strings.Join(formats, ", ")))
	fs.BoolVar(&flags.VerifyCRC, "verify-crc", true, "Verify portable symbol file checksums")
}

// Apply overrides cfg with the flags the user set explicitly on fs.
func (f *ResolveFlags) Apply(fs *pflag.FlagSet, cfg *config.ResolveConfig) {
	if fs.Changed("search-path") {
		cfg.SearchPath = f.SearchPath
	}
	if fs.Changed("format") {
		cfg.Format = f.Format
	}
	if fs.Changed("verify-crc") {
		cfg.VerifyCRC = f.VerifyCRC
	}
}
