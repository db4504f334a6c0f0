// Package resolver is the entry point for navigate-to-source lookups. It picks
// the reader matching the debug information a binary ships with and answers
// lookups uniformly over it.
package resolver

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/sourcenav/pkg/navigation"
	"github.com/coral-mesh/sourcenav/pkg/navigation/native"
	"github.com/coral-mesh/sourcenav/pkg/navigation/portable"
	"github.com/coral-mesh/sourcenav/pkg/psym"
	"github.com/coral-mesh/sourcenav/pkg/symengine"
	"github.com/coral-mesh/sourcenav/pkg/symengine/dwarfengine"
)

// Format names a debug information format.
type Format string

const (
	// FormatAuto selects the format by inspecting the binary's companions.
	FormatAuto     Format = "auto"
	FormatNative   Format = "native"
	FormatPortable Format = "portable"
)

// Formats lists the accepted format names.
var Formats = []Format{FormatAuto, FormatNative, FormatPortable}

// ParseFormat validates a format name. The empty string means FormatAuto.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatAuto, nil
	}
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown debug information format %q (expected auto, native or portable)", s)
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger         zerolog.Logger
	format         Format
	engine         symengine.Engine
	verifyCRC      bool
	metadataLoader portable.MetadataLoader
}

// WithLogger sets the logger of the resolver and its reader.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFormat forces a backend instead of detecting it.
func WithFormat(format Format) Option {
	return func(o *options) {
		o.format = format
	}
}

// WithEngine replaces the DWARF engine of the native backend.
func WithEngine(engine symengine.Engine) Option {
	return func(o *options) {
		o.engine = engine
	}
}

// WithCRC verifies portable symbol file checksums on open.
func WithCRC(verify bool) Option {
	return func(o *options) {
		o.verifyCRC = verify
	}
}

// WithMetadataLoader replaces the metadata loader of the portable backend.
func WithMetadataLoader(loader portable.MetadataLoader) Option {
	return func(o *options) {
		o.metadataLoader = loader
	}
}

// Resolver answers navigation lookups for one binary.
//
// A Resolver is not safe for concurrent use.
type Resolver struct {
	reader  navigation.Reader
	backend Format
	logger  zerolog.Logger
	closed  bool
}

// New wraps a reader the caller already selected and primed.
func New(reader navigation.Reader, opts ...Option) *Resolver {
	o := applyOptions(opts)

	backend := o.format
	switch reader.(type) {
	case *native.Reader:
		backend = FormatNative
	case *portable.Reader:
		backend = FormatPortable
	}

	return &Resolver{
		reader:  reader,
		backend: backend,
		logger:  o.logger.With().Str("component", "navigation-resolver").Logger(),
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: zerolog.Nop(), format: FormatAuto}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Detect reports the format of the debug information shipped with
// binaryPath: portable when a portable symbol file sits next to it or in
// searchPath, native otherwise.
func Detect(binaryPath, searchPath string) Format {
	path, err := psym.Locate(binaryPath, searchPath)
	if err == nil && psym.SniffFile(path) {
		return FormatPortable
	}
	return FormatNative
}

// Open selects a reader for binaryPath and caches its symbols. Errors wrap
// navigation.ErrOpenFailed when the debug information could not be opened.
func Open(binaryPath, searchPath string, opts ...Option) (*Resolver, error) {
	o := applyOptions(opts)
	logger := o.logger.With().Str("component", "navigation-resolver").Logger()

	binaryPath, searchPath, err := navigation.ResolvePaths(binaryPath, searchPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", navigation.ErrOpenFailed, err)
	}

	format := o.format
	if format == "" || format == FormatAuto {
		format = Detect(binaryPath, searchPath)
		logger.Debug().Str("binary", binaryPath).Str("format", string(format)).Msg("Detected debug information format")
	}

	var reader navigation.Reader
	switch format {
	case FormatNative:
		engine := o.engine
		if engine == nil {
			engine = dwarfengine.New(o.logger)
		}
		reader = native.NewReader(engine, o.logger)

	case FormatPortable:
		var popts []portable.Option
		if o.verifyCRC {
			popts = append(popts, portable.WithCRC())
		}
		if o.metadataLoader != nil {
			popts = append(popts, portable.WithMetadataLoader(o.metadataLoader))
		}
		reader = portable.NewReader(o.logger, popts...)

	default:
		return nil, fmt.Errorf("unknown debug information format %q", format)
	}

	if err := reader.CacheSymbols(binaryPath, searchPath); err != nil {
		return nil, err
	}

	return &Resolver{reader: reader, backend: format, logger: logger}, nil
}

// Backend returns the format of the active reader.
func (r *Resolver) Backend() Format {
	return r.backend
}

// GetNavigationData returns the source extent of typeName.methodName, or nil
// when none is available. Reader errors are logged, never returned.
func (r *Resolver) GetNavigationData(typeName, methodName string) *navigation.Data {
	if r.closed {
		r.logger.Warn().Str("type", typeName).Str("method", methodName).Msg("Lookup on closed resolver")
		return nil
	}

	data, err := r.reader.GetNavigationData(typeName, methodName)
	if err != nil {
		r.logger.Warn().Err(err).Str("type", typeName).Str("method", methodName).Msg("Navigation lookup failed")
		return nil
	}
	if data.IsEmpty() {
		return nil
	}
	return data
}

type lister interface {
	Types() []string
	Methods(typeName string) []string
}

// Types returns the type names the reader cached, when it can list them.
func (r *Resolver) Types() []string {
	if l, ok := r.reader.(lister); ok && !r.closed {
		return l.Types()
	}
	return nil
}

// Methods returns the cached method names of typeName, when the reader can
// list them.
func (r *Resolver) Methods(typeName string) []string {
	if l, ok := r.reader.(lister); ok && !r.closed {
		return l.Methods(typeName)
	}
	return nil
}

// Close closes the reader. It is safe to call more than once.
func (r *Resolver) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.reader.Close()
}
