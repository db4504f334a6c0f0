// Package symenginetest provides an in-memory symengine.Engine with call
// counters and fault injection for tests.
package symenginetest

import (
	"errors"
	"fmt"

	"github.com/coral-mesh/sourcenav/pkg/navigation"
	"github.com/coral-mesh/sourcenav/pkg/symengine"
)

// Function is a function symbol.
type Function struct {
	Name string
	// Native is the fully qualified native name used by global searches.
	Native string
	Range  symengine.AddressRange
	Points []navigation.SequencePoint
	// Lazy functions are skipped by unfiltered enumeration and only found by
	// an exact name query.
	Lazy bool
}

// Compiland groups the functions of one type.
type Compiland struct {
	Name      string
	Functions []Function
	// FailEnumeration makes function enumeration of this compiland fail.
	FailEnumeration bool
}

// Engine serves fixed symbol data.
type Engine struct {
	Compilands []Compiland
	// Globals are only reachable through a global search by native name.
	Globals []Function
	OpenErr error

	Sessions []*Session
}

var _ symengine.Engine = (*Engine)(nil)

// OpenSession implements symengine.Engine.
func (e *Engine) OpenSession(binaryPath, searchPath string) (symengine.Session, error) {
	if e.OpenErr != nil {
		return nil, e.OpenErr
	}
	s := &Session{
		engine:     e,
		arena:      symengine.NewArena[symbol](),
		BinaryPath: binaryPath,
		SearchPath: searchPath,
	}
	s.global = s.arena.Acquire(symbol{tag: symengine.TagExe})
	e.Sessions = append(e.Sessions, s)
	return s, nil
}

// Last returns the most recently opened session.
func (e *Engine) Last() *Session {
	if len(e.Sessions) == 0 {
		return nil
	}
	return e.Sessions[len(e.Sessions)-1]
}

type symbol struct {
	tag       symengine.SymTag
	compiland *Compiland
	fn        *Function
}

// Session records every call made against it.
type Session struct {
	engine *Engine
	arena  *symengine.Arena[symbol]
	global symengine.Handle

	BinaryPath string
	SearchPath string

	FindChildrenCalls int
	LineQueries       int
	Releases          int
	InvalidReleases   int
	CloseCalls        int
}

var _ symengine.Session = (*Session)(nil)

var errClosed = errors.New("session closed")

// GlobalScope implements symengine.Session.
func (s *Session) GlobalScope() symengine.Handle { return s.global }

// FindChildren implements symengine.Session.
func (s *Session) FindChildren(parent symengine.Handle, tag symengine.SymTag, name string) ([]symengine.Handle, error) {
	s.FindChildrenCalls++
	if s.CloseCalls > 0 {
		return nil, errClosed
	}

	sym, err := s.arena.Get(parent)
	if err != nil {
		return nil, err
	}

	var out []symengine.Handle
	switch {
	case sym.tag == symengine.TagExe && tag == symengine.TagCompiland:
		for i := range s.engine.Compilands {
			c := &s.engine.Compilands[i]
			if name == "" || c.Name == name {
				out = append(out, s.arena.Acquire(symbol{tag: symengine.TagCompiland, compiland: c}))
			}
		}

	case sym.tag == symengine.TagExe && tag == symengine.TagFunction:
		for i := range s.engine.Compilands {
			out = s.appendFunctions(out, s.engine.Compilands[i].Functions, name, true)
		}
		out = s.appendFunctions(out, s.engine.Globals, name, true)

	case sym.tag == symengine.TagCompiland && tag == symengine.TagFunction:
		if sym.compiland.FailEnumeration {
			return nil, fmt.Errorf("enumerating %s: corrupt symbol record", sym.compiland.Name)
		}
		out = s.appendFunctions(out, sym.compiland.Functions, name, false)
	}

	return out, nil
}

func (s *Session) appendFunctions(out []symengine.Handle, fns []Function, name string, byNative bool) []symengine.Handle {
	for i := range fns {
		fn := &fns[i]
		match := name == "" && !fn.Lazy
		if name != "" {
			if byNative {
				match = fn.Native == name
			} else {
				match = fn.Name == name
			}
		}
		if match {
			out = append(out, s.arena.Acquire(symbol{tag: symengine.TagFunction, fn: fn}))
		}
	}
	return out
}

// Name implements symengine.Session.
func (s *Session) Name(h symengine.Handle) (string, error) {
	sym, err := s.arena.Get(h)
	if err != nil {
		return "", err
	}
	switch sym.tag {
	case symengine.TagCompiland:
		return sym.compiland.Name, nil
	case symengine.TagFunction:
		return sym.fn.Name, nil
	default:
		return "", nil
	}
}

// AddressRange implements symengine.Session.
func (s *Session) AddressRange(h symengine.Handle) (symengine.AddressRange, error) {
	sym, err := s.arena.Get(h)
	if err != nil {
		return symengine.AddressRange{}, err
	}
	if sym.tag != symengine.TagFunction {
		return symengine.AddressRange{}, fmt.Errorf("symbol %d is a %s", h, sym.tag)
	}
	return sym.fn.Range, nil
}

// LineNumbersForRange implements symengine.Session.
func (s *Session) LineNumbersForRange(section, offset uint32, length uint64) ([]navigation.SequencePoint, error) {
	s.LineQueries++
	if s.CloseCalls > 0 {
		return nil, errClosed
	}

	all := make([]Function, 0)
	for _, c := range s.engine.Compilands {
		all = append(all, c.Functions...)
	}
	all = append(all, s.engine.Globals...)

	for _, fn := range all {
		if fn.Range.Section == section && fn.Range.Offset == offset && fn.Range.Length == length {
			return fn.Points, nil
		}
	}
	return nil, nil
}

// Release implements symengine.Session.
func (s *Session) Release(h symengine.Handle) error {
	s.Releases++
	if h == s.global {
		s.InvalidReleases++
		return fmt.Errorf("%w: global scope is owned by the session", symengine.ErrInvalidHandle)
	}
	if err := s.arena.Release(h); err != nil {
		s.InvalidReleases++
		return err
	}
	return nil
}

// Close implements symengine.Session.
func (s *Session) Close() error {
	s.CloseCalls++
	if s.CloseCalls > 1 {
		return errClosed
	}
	s.arena.ReleaseAll()
	return nil
}

// Live returns the number of outstanding handles besides the global scope.
func (s *Session) Live() int {
	n := s.arena.Live()
	if s.CloseCalls == 0 {
		n--
	}
	return n
}
