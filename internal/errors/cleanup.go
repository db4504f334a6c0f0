// Package errors provides small error handling helpers for sourcenav.
package errors

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// DeferClose closes closer and logs a failure instead of dropping it.
// Use this in defer statements.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}

// CloseWith closes closer and joins a close failure into *errp, so a function
// returning a named error reports it when nothing else failed.
func CloseWith(errp *error, closer io.Closer, what string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil && *errp == nil {
		*errp = fmt.Errorf("failed to close %s: %w", what, err)
	}
}
