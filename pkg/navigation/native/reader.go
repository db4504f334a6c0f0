// Package native implements the navigation reader backed by a native symbol
// engine (see package symengine).
//
// The whole binary is walked once when symbols are cached: every compiland
// becomes a type entry and every function inside it a method entry. Lookups are
// then served from the cache, with an on-demand query for methods the walk did
// not see and a search by native qualified name for types it did not see.
package native

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/sourcenav/internal/symname"
	"github.com/coral-mesh/sourcenav/pkg/navigation"
	"github.com/coral-mesh/sourcenav/pkg/symengine"
)

// Stats counts the engine queries issued by a Reader.
type Stats struct {
	// CompilandScans counts compiland enumerations of the global scope.
	CompilandScans int
	// MethodScans counts function enumerations of a single compiland.
	MethodScans int
	// MethodQueries counts on-demand method lookups after a cache miss.
	MethodQueries int
	// FallbackSearches counts searches by native qualified name.
	FallbackSearches int
}

// Reader resolves navigation data through a symengine.Engine.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	engine symengine.Engine
	logger zerolog.Logger

	session symengine.Session
	cache   *navigation.Cache[symengine.Handle]
	stats   Stats
	closed  bool
}

var _ navigation.Reader = (*Reader)(nil)

// NewReader creates a reader over engine.
func NewReader(engine symengine.Engine, logger zerolog.Logger) *Reader {
	return &Reader{
		engine: engine,
		logger: logger.With().Str("component", "native-symbol-reader").Logger(),
	}
}

// CacheSymbols opens a session for binaryPath and caches every type and
// method symbol of the binary. Failure to open the session is fatal and
// closes the reader; failures while walking a single type are logged and
// skipped.
func (r *Reader) CacheSymbols(binaryPath, searchPath string) error {
	if r.closed {
		return navigation.ErrClosed
	}

	binaryPath, searchPath, err := navigation.ResolvePaths(binaryPath, searchPath)
	if err != nil {
		_ = r.Close()
		return fmt.Errorf("%w: %w", navigation.ErrOpenFailed, err)
	}

	if r.session != nil {
		if err := r.releaseSession(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to release previous session")
		}
	}

	session, err := r.engine.OpenSession(binaryPath, searchPath)
	if err != nil {
		if closeErr := r.Close(); closeErr != nil {
			r.logger.Warn().Err(closeErr).Msg("Failed to dispose reader after open failure")
		}
		return fmt.Errorf("%w: %s: %w", navigation.ErrOpenFailed, binaryPath, err)
	}

	r.session = session
	r.cache = navigation.NewCache(session.Release)
	r.populate()

	r.logger.Debug().
		Str("binary", binaryPath).
		Int("types", len(r.cache.Types())).
		Int("methods", r.cache.Len()).
		Msg("Cached native symbols")

	return nil
}

// populate walks every compiland of the global scope. It never fails: a
// compiland that cannot be enumerated is logged and skipped.
func (r *Reader) populate() {
	r.stats.CompilandScans++
	compilands, err := r.session.FindChildren(r.session.GlobalScope(), symengine.TagCompiland, "")
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to enumerate compilands")
		return
	}

	for _, compiland := range compilands {
		if err := r.cacheCompiland(compiland); err != nil {
			r.logger.Error().Err(err).Msg("Failed to cache symbols for type, skipping")
		}
	}
}

func (r *Reader) cacheCompiland(compiland symengine.Handle) error {
	typeName, err := r.session.Name(compiland)
	if err != nil || typeName == "" {
		r.release(compiland)
		if err != nil {
			return fmt.Errorf("failed to read compiland name: %w", err)
		}
		return nil
	}

	r.stats.MethodScans++
	functions, err := r.session.FindChildren(compiland, symengine.TagFunction, "")
	if err != nil {
		r.release(compiland)
		return fmt.Errorf("failed to enumerate methods of %s: %w", typeName, err)
	}

	if err := r.cache.AddType(typeName, compiland); err != nil {
		r.logger.Warn().Err(err).Str("type", typeName).Msg("Failed to release replaced type symbol")
	}

	for _, fn := range functions {
		methodName, err := r.session.Name(fn)
		if err != nil || methodName == "" {
			r.release(fn)
			continue
		}
		if err := r.cache.AddMethod(typeName, methodName, fn); err != nil {
			r.logger.Warn().Err(err).
				Str("type", typeName).
				Str("method", methodName).
				Msg("Failed to release replaced method symbol")
		}
	}

	return nil
}

// GetNavigationData returns the source extent of typeName.methodName, or nil
// when the method is unknown or has no line information.
func (r *Reader) GetNavigationData(typeName, methodName string) (*navigation.Data, error) {
	switch {
	case r.closed:
		return nil, navigation.ErrClosed
	case r.session == nil:
		return nil, navigation.ErrNotOpened
	}

	typeName = navigation.NormalizeTypeName(typeName)

	method, ok := r.findMethod(typeName, methodName)
	if !ok {
		r.logger.Debug().Str("type", typeName).Str("method", methodName).Msg("Method symbol not found")
		return nil, nil
	}

	return r.navigationData(typeName, methodName, method), nil
}

// findMethod resolves a method handle: cache first, then an on-demand query in
// the cached type, then a search by native name when the type is unknown.
func (r *Reader) findMethod(typeName, methodName string) (symengine.Handle, bool) {
	if h, ok := r.cache.Method(typeName, methodName); ok {
		return h, true
	}

	typeHandle, ok := r.cache.Type(typeName)
	if !ok {
		// Test adapters built as native code are only reachable by their
		// fully qualified native name.
		r.stats.FallbackSearches++
		return r.queryAndCache(r.session.GlobalScope(), typeName, methodName, symname.NativeName(typeName, methodName))
	}

	r.stats.MethodQueries++
	return r.queryAndCache(typeHandle, typeName, methodName, methodName)
}

func (r *Reader) queryAndCache(parent symengine.Handle, typeName, methodName, query string) (symengine.Handle, bool) {
	handles, err := r.session.FindChildren(parent, symengine.TagFunction, query)
	if err != nil {
		r.logger.Debug().Err(err).Str("query", query).Msg("Function search failed")
		return symengine.InvalidHandle, false
	}
	if len(handles) == 0 {
		return symengine.InvalidHandle, false
	}

	for _, extra := range handles[1:] {
		r.release(extra)
	}
	if err := r.cache.AddMethod(typeName, methodName, handles[0]); err != nil {
		r.logger.Warn().Err(err).Str("method", methodName).Msg("Failed to release replaced method symbol")
	}
	return handles[0], true
}

func (r *Reader) navigationData(typeName, methodName string, method symengine.Handle) *navigation.Data {
	rng, err := r.session.AddressRange(method)
	if err != nil {
		r.logger.Debug().Err(err).Str("type", typeName).Str("method", methodName).Msg("Method has no address range")
		return nil
	}

	points, err := r.session.LineNumbersForRange(rng.Section, rng.Offset, rng.Length)
	if err != nil {
		r.logger.Debug().Err(err).Str("type", typeName).Str("method", methodName).Msg("Failed to read line numbers")
		return nil
	}

	data := navigation.Reduce(points)
	if data.IsEmpty() {
		return nil
	}
	return &data
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

// Stats returns the engine query counters.
func (r *Reader) Stats() Stats {
	return r.stats
}

// Close releases every cached method and type handle and then the session.
// It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.releaseSession()
}

func (r *Reader) releaseSession() error {
	var result *multierror.Error

	if r.cache != nil {
		if err := r.cache.Release(); err != nil {
			result = multierror.Append(result, err)
		}
		r.cache = nil
	}

	if r.session != nil {
		if err := r.session.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close symbol session: %w", err))
		}
		r.session = nil
	}

	return result.ErrorOrNil()
}

func (r *Reader) release(h symengine.Handle) {
	if err := r.session.Release(h); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to release symbol handle")
	}
}
