package dwarfengine

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/sourcenav/pkg/binmeta"
	"github.com/coral-mesh/sourcenav/pkg/psym"
)

// Export writes the portable symbol file of binaryPath to w and returns the
// number of methods written. Methods are keyed by the token the binary's
// function table reports for them; methods the table does not declare are left
// out. The file records the fingerprint of that table. A binary without a
// function table is exported keyed by entry address with a zero fingerprint.
func Export(binaryPath, searchPath string, w io.Writer, logger zerolog.Logger) (int, error) {
	logger = logger.With().Str("component", "psym-export").Logger()

	obj, err := openObject(binaryPath, searchPath)
	if err != nil {
		return 0, err
	}
	idx, err := buildIndex(obj.dwarf)
	if err != nil {
		logger.Warn().Err(err).Msg("DWARF read stopped early, exporting partial index")
	}
	s := newSession(obj, idx, logger)
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close symbol session")
		}
	}()

	var fingerprint uint64
	md, err := binmeta.Load(binaryPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Binary has no function table, symbol file will not be fingerprinted")
	} else {
		fingerprint = md.Fingerprint()
	}

	var methods []psym.Method
	seen := make(map[uint64]bool)
	for _, typeName := range idx.typeOrder {
		for _, fn := range idx.types[typeName] {
			section, offset, ok := obj.section(fn.lowpc)
			if !ok {
				continue
			}

			points, err := s.LineNumbersForRange(section, offset, fn.highpc-fn.lowpc)
			if err != nil {
				logger.Warn().Err(err).
					Str("type", typeName).
					Str("method", fn.method).
					Msg("Failed to read line numbers, skipping method")
				continue
			}

			token := fn.lowpc
			if md != nil {
				var declared bool
				if token, declared = md.LookupToken(typeName, fn.method); !declared {
					logger.Debug().
						Str("type", typeName).
						Str("method", fn.method).
						Msg("Method not in function table, skipping")
					continue
				}
			}

			if seen[token] {
				continue
			}
			seen[token] = true

			m := psym.Method{Token: token, Name: typeName + "." + fn.method}
			for _, p := range points {
				if m.Document == "" && !p.Hidden() {
					m.Document = p.SourceFile
				}
				var rel uint32
				if p.AddressOffset > offset {
					rel = p.AddressOffset - offset
				}
				m.Points = append(m.Points, psym.Point{StartLine: p.StartLine, EndLine: p.EndLine, Offset: rel})
			}
			methods = append(methods, m)
		}
	}

	if err := psym.Write(w, fingerprint, methods); err != nil {
		return 0, fmt.Errorf("failed to export %s: %w", binaryPath, err)
	}

	logger.Debug().Str("binary", binaryPath).Int("methods", len(methods)).Msg("Exported portable symbols")
	return len(methods), nil
}
