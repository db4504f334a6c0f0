// Package portable implements the navigation reader for binaries shipped with a
// portable symbol file (see package psym).
//
// Everything is resolved up front: CacheSymbols enumerates the types and
// methods the binary declares, looks every method token up in the symbol file
// and stores the resulting source extent. Lookups afterwards never touch the
// file.
package portable

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/sourcenav/pkg/binmeta"
	"github.com/coral-mesh/sourcenav/pkg/navigation"
	"github.com/coral-mesh/sourcenav/pkg/psym"
)

// Metadata is the binary's own description of its declared types.
type Metadata interface {
	Types() []binmeta.Type
	Fingerprint() uint64
}

// MetadataLoader loads the Metadata of a binary.
type MetadataLoader func(binaryPath string) (Metadata, error)

func loadBinaryMetadata(binaryPath string) (Metadata, error) {
	return binmeta.Load(binaryPath)
}

// Option configures a Reader.
type Option func(*Reader)

// WithMetadataLoader replaces the loader of the binary's metadata.
func WithMetadataLoader(loader MetadataLoader) Option {
	return func(r *Reader) {
		r.loadMetadata = loader
	}
}

// WithCRC verifies the checksums of the symbol file when it is opened.
func WithCRC() Option {
	return func(r *Reader) {
		r.verifyCRC = true
	}
}

// Reader resolves navigation data from a portable symbol file.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	logger       zerolog.Logger
	loadMetadata MetadataLoader
	verifyCRC    bool

	table  *psym.Table
	cache  *navigation.Cache[navigation.Data]
	closed bool
}

var _ navigation.Reader = (*Reader)(nil)

// NewReader creates a portable reader.
func NewReader(logger zerolog.Logger, opts ...Option) *Reader {
	r := &Reader{
		logger:       logger.With().Str("component", "portable-symbol-reader").Logger(),
		loadMetadata: loadBinaryMetadata,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CacheSymbols opens the symbol file of binaryPath and caches the source
// extent of every declared method. Failing to open the symbol file or to load
// the binary's metadata is fatal and closes the reader.
func (r *Reader) CacheSymbols(binaryPath, searchPath string) error {
	if r.closed {
		return navigation.ErrClosed
	}

	if err := r.open(binaryPath, searchPath); err != nil {
		if closeErr := r.Close(); closeErr != nil {
			r.logger.Warn().Err(closeErr).Msg("Failed to dispose reader after open failure")
		}
		return fmt.Errorf("%w: %w", navigation.ErrOpenFailed, err)
	}
	return nil
}

func (r *Reader) open(binaryPath, searchPath string) error {
	binaryPath, searchPath, err := navigation.ResolvePaths(binaryPath, searchPath)
	if err != nil {
		return err
	}

	if r.table != nil {
		if err := r.table.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to close previous symbol file")
		}
		r.table = nil
	}

	symPath, err := psym.Locate(binaryPath, searchPath)
	if err != nil {
		return err
	}

	var opts []psym.Option
	if r.verifyCRC {
		opts = append(opts, psym.WithCRC())
	}
	table, err := psym.Open(symPath, opts...)
	if err != nil {
		return fmt.Errorf("%s: %w", symPath, err)
	}
	r.table = table

	md, err := r.loadMetadata(binaryPath)
	if err != nil {
		return fmt.Errorf("failed to load metadata of %s: %w", binaryPath, err)
	}

	if want := table.Fingerprint(); want != 0 && want != md.Fingerprint() {
		r.logger.Warn().
			Str("binary", binaryPath).
			Str("symbols", symPath).
			Msg("Symbol file was built from a different binary, navigation may be stale")
	}

	r.cache = navigation.NewCache[navigation.Data](nil)
	r.populate(md.Types())

	r.logger.Debug().
		Str("binary", binaryPath).
		Str("symbols", symPath).
		Int("types", len(r.cache.Types())).
		Int("methods", r.cache.Len()).
		Msg("Cached portable symbols")

	return nil
}

func (r *Reader) populate(types []binmeta.Type) {
	for _, t := range types {
		for _, m := range t.Methods {
			info, err := r.table.Lookup(m.Token)
			if err != nil {
				r.logger.Error().Err(err).
					Str("type", t.Name).
					Str("method", m.Name).
					Msg("Failed to read sequence points, skipping method")
				continue
			}
			if info == nil || len(info.Points) == 0 {
				r.logger.Info().
					Str("type", t.Name).
					Str("method", m.Name).
					Msg("Method has no sequence points")
				continue
			}

			data := navigation.Reduce(info.Points)
			if data.IsEmpty() {
				continue
			}
			if err := r.cache.AddMethod(t.Name, m.Name, data); err != nil {
				r.logger.Warn().Err(err).
					Str("type", t.Name).
					Str("method", m.Name).
					Msg("Failed to release replaced method entry")
			}
		}
	}
}

// GetNavigationData returns the cached source extent of typeName.methodName,
// or nil when the method was not cached.
func (r *Reader) GetNavigationData(typeName, methodName string) (*navigation.Data, error) {
	switch {
	case r.closed:
		return nil, navigation.ErrClosed
	case r.cache == nil:
		return nil, navigation.ErrNotOpened
	}

	data, ok := r.cache.Method(typeName, methodName)
	if !ok {
		r.logger.Debug().Str("type", typeName).Str("method", methodName).Msg("Method not found in symbol file")
		return nil, nil
	}
	return &data, nil
}

// Types returns the cached type names.
func (r *Reader) Types() []string {
	if r.cache == nil {
		return nil
	}
	return r.cache.Types()
}

// Methods returns the cached method names of a type.
func (r *Reader) Methods(typeName string) []string {
	if r.cache == nil {
		return nil
	}
	return r.cache.Methods(typeName)
}

// Close closes the symbol file and drops the cache. It is safe to call more
// than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.cache = nil

	if r.table == nil {
		return nil
	}
	err := r.table.Close()
	r.table = nil
	if err != nil {
		return fmt.Errorf("failed to close symbol file: %w", err)
	}
	return nil
}
