// Package navigation defines the types shared by the symbol readers that map a
// test method back to its source location.
//
// A reader is opened for one binary, primes a cache of type and method
// symbols, answers GetNavigationData lookups and is finally closed. Closing is
// explicit and idempotent; nothing in this package relies on finalizers.
package navigation

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// HiddenLine marks a sequence point that maps to no user visible source line.
// Any record whose start or end line reaches this value is ignored.
const HiddenLine = 0xFEEFEE

var (
	// ErrOpenFailed is returned when the debug information of a binary cannot
	// be opened at all. It aborts resolution for the whole binary.
	ErrOpenFailed = errors.New("failed to open debug information")

	// ErrClosed is returned when a reader is used after Close.
	ErrClosed = errors.New("symbol reader is closed")

	// ErrNotOpened is returned when a reader is queried before CacheSymbols.
	ErrNotOpened = errors.New("symbol reader is not opened")
)

// Data is the source extent of a method.
type Data struct {
	FileName string `json:"fileName"`
	MinLine  int    `json:"minLine"`
	MaxLine  int    `json:"maxLine"`
}

// IsEmpty reports whether d carries no usable line range. Reduce returns such a
// value when every record was filtered out.
func (d *Data) IsEmpty() bool {
	return d == nil || d.MinLine > d.MaxLine || d.MinLine <= 0
}

func (d Data) String() string {
	if d.MinLine == d.MaxLine {
		return fmt.Sprintf("%s:%d", d.FileName, d.MinLine)
	}
	return fmt.Sprintf("%s:%d-%d", d.FileName, d.MinLine, d.MaxLine)
}

// SequencePoint maps one instruction range to a source line range.
type SequencePoint struct {
	StartLine      uint32
	EndLine        uint32
	SourceFile     string
	AddressSection uint32
	AddressOffset  uint32
}

// Hidden reports whether the point carries the hidden line marker.
func (p SequencePoint) Hidden() bool {
	return p.StartLine >= HiddenLine || p.EndLine >= HiddenLine
}

// Reduce folds the line records of one method into a file name and the
// smallest and largest line they cover. Hidden records never contribute.
// When no record survives, the result has MinLine > MaxLine and IsEmpty
// reports true.
func Reduce(points []SequencePoint) Data {
	data := Data{MinLine: math.MaxInt32, MaxLine: math.MinInt32}

	for _, p := range points {
		if p.Hidden() {
			continue
		}

		data.FileName = p.SourceFile
		if int(p.StartLine) < data.MinLine {
			data.MinLine = int(p.StartLine)
		}
		if int(p.EndLine) > data.MaxLine {
			data.MaxLine = int(p.EndLine)
		}
	}

	return data
}

// NormalizeTypeName rewrites the nested type separator '+' to '.', so both
// spellings of a nested type address the same cache entry.
func NormalizeTypeName(name string) string {
	return strings.ReplaceAll(name, "+", ".")
}

// Reader resolves navigation data for the methods of one binary.
//
// Readers are not safe for concurrent use. GetNavigationData returns (nil, nil)
// when the type or method is unknown or has no line information.
type Reader interface {
	CacheSymbols(binaryPath, searchPath string) error
	GetNavigationData(typeName, methodName string) (*Data, error)
	Close() error
}
