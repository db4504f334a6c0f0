// Package testutil provides testing helpers shared by the sourcenav packages.
package testutil

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
)

// NewTestLogger returns a logger that discards output.
// Use NewTestLoggerWithOutput to route records to t.Log.
func NewTestLogger(t testing.TB) zerolog.Logger {
	t.Helper()
	return zerolog.New(io.Discard)
}

// NewTestLoggerWithOutput returns a debug level logger that writes through
// t.Log, so records show up next to the failing test.
func NewTestLoggerWithOutput(t testing.TB) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

// CaptureLogger returns a logger writing JSON records into the returned
// recorder, for tests that assert on diagnostics.
func CaptureLogger() (zerolog.Logger, *LogRecorder) {
	rec := &LogRecorder{}
	return zerolog.New(rec), rec
}

// LogRecorder collects raw log records.
type LogRecorder struct {
	Lines []string
}

var _ io.Writer = (*LogRecorder)(nil)

func (r *LogRecorder) Write(p []byte) (int, error) {
	r.Lines = append(r.Lines, string(p))
	return len(p), nil
}
