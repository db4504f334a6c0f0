// Package symengine defines the narrow, handle based interface through which
// the native symbol reader talks to a debug information engine.
//
// The interface mirrors the shape of out-of-process symbol engines: every
// symbol is reached through an opaque Handle issued by a Session, and every
// handle must be given back with Release. Closing the Session invalidates all
// handles it issued. Adapters keep their handles in an Arena so a Session can
// free everything in one batch.
package symengine

import (
	"errors"

	"github.com/coral-mesh/sourcenav/pkg/navigation"
)

// Handle is an opaque reference to a symbol within one Session.
type Handle uint32

// InvalidHandle is never issued by an Arena.
const InvalidHandle Handle = 0

// SymTag classifies symbols.
type SymTag int

const (
	TagNull SymTag = iota
	// TagExe is the global scope of the binary.
	TagExe
	// TagCompiland groups the functions of one declaring type.
	TagCompiland
	// TagFunction is a function or method with code.
	TagFunction
)

func (t SymTag) String() string {
	switch t {
	case TagExe:
		return "exe"
	case TagCompiland:
		return "compiland"
	case TagFunction:
		return "function"
	default:
		return "null"
	}
}

var (
	// ErrInvalidHandle is returned for handles that were never issued, were
	// already released or belong to a closed session.
	ErrInvalidHandle = errors.New("invalid symbol handle")

	// ErrNoDebugInfo is returned by OpenSession when the binary carries no
	// debug information the engine understands.
	ErrNoDebugInfo = errors.New("no debug information")
)

// AddressRange locates a symbol's code as section:offset plus length.
type AddressRange struct {
	Section uint32
	Offset  uint32
	Length  uint64
}

// Engine opens sessions over a binary's debug information.
type Engine interface {
	// OpenSession loads the debug information of binaryPath. searchPath is an
	// extra directory probed for separate debug files.
	OpenSession(binaryPath, searchPath string) (Session, error)
}

// Session is an open view over one binary's debug information.
type Session interface {
	// GlobalScope returns the handle of the binary's global scope. It is owned
	// by the session and must not be released.
	GlobalScope() Handle

	// FindChildren returns fresh handles for the children of parent carrying
	// tag. A non-empty name restricts the result to exact name matches.
	FindChildren(parent Handle, tag SymTag, name string) ([]Handle, error)

	// Name returns the symbol's name.
	Name(h Handle) (string, error)

	// AddressRange returns the code range of a function symbol.
	AddressRange(h Handle) (AddressRange, error)

	// LineNumbersForRange returns the line records covering
	// [section:offset, section:offset+length).
	LineNumbersForRange(section, offset uint32, length uint64) ([]navigation.SequencePoint, error)

	// Release gives a handle back to the session.
	Release(h Handle) error

	// Close releases every outstanding handle and the underlying resources.
	Close() error
}
