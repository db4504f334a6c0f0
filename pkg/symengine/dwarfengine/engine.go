// Package dwarfengine is the symengine adapter for binaries carrying DWARF
// debug information (ELF, Mach-O and PE).
//
// Subprograms are grouped by the type that declares them: Go methods by their
// receiver, package level Go functions by their package, and C++ members by
// their enclosing class or namespace. Each group is exposed as a compiland.
// Addresses are reported as a 1-based index into the binary's code sections
// plus an offset within that section.
package dwarfengine

import (
	"github.com/rs/zerolog"

	"github.com/coral-mesh/sourcenav/pkg/symengine"
)

// Engine opens DWARF sessions.
type Engine struct {
	logger zerolog.Logger
}

var _ symengine.Engine = (*Engine)(nil)

// New creates a DWARF engine.
func New(logger zerolog.Logger) *Engine {
	return &Engine{
		logger: logger.With().Str("component", "dwarf-engine").Logger(),
	}
}

// OpenSession opens binaryPath and indexes its DWARF. A stripped binary is
// served from a separate debug file found next to it or in searchPath.
// A corrupt entry stops indexing but keeps what was read before it.
func (e *Engine) OpenSession(binaryPath, searchPath string) (symengine.Session, error) {
	obj, err := openObject(binaryPath, searchPath)
	if err != nil {
		return nil, err
	}

	idx, err := buildIndex(obj.dwarf)
	if err != nil {
		e.logger.Warn().Err(err).
			Str("debug_file", obj.debugPath).
			Int("functions", idx.functions).
			Msg("DWARF read stopped early, serving partial index")
	}

	e.logger.Debug().
		Str("binary", binaryPath).
		Str("debug_file", obj.debugPath).
		Str("format", obj.format).
		Int("units", len(idx.units)).
		Int("types", len(idx.typeOrder)).
		Int("functions", idx.functions).
		Msg("Indexed DWARF debug information")

	return newSession(obj, idx, e.logger), nil
}
