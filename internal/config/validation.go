package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/coral-mesh/sourcenav/internal/logging"
	"github.com/coral-mesh/sourcenav/pkg/resolver"
)

// Validate checks every enumerated value of cfg and reports all problems at
// once.
func Validate(cfg *Config) error {
	var result *multierror.Error

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		result = multierror.Append(result, fmt.Errorf("logging.level: %w", err))
	}
	if _, err := resolver.ParseFormat(cfg.Resolve.Format); err != nil {
		result = multierror.Append(result, fmt.Errorf("resolve.format: %w", err))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
