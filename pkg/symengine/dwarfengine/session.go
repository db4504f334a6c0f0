package dwarfengine

import (
	"debug/dwarf"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/sourcenav/internal/safe"
	"github.com/coral-mesh/sourcenav/pkg/navigation"
	"github.com/coral-mesh/sourcenav/pkg/symengine"
)

var errSessionClosed = errors.New("session closed")

type symbol struct {
	tag      symengine.SymTag
	typeName string
	fn       *function
}

// row is one line table row.
type row struct {
	addr   uint64
	file   string
	line   int
	endSeq bool
}

// session serves symbols out of an index. Handles are issued from an arena
// and all of them are dropped by Close.
type session struct {
	logger zerolog.Logger
	obj    *object
	idx    *index
	arena  *symengine.Arena[symbol]
	global symengine.Handle
	rows   map[int][]row
	closed bool
}

var _ symengine.Session = (*session)(nil)

func newSession(obj *object, idx *index, logger zerolog.Logger) *session {
	s := &session{
		logger: logger,
		obj:    obj,
		idx:    idx,
		arena:  symengine.NewArena[symbol](),
		rows:   make(map[int][]row),
	}
	s.global = s.arena.Acquire(symbol{tag: symengine.TagExe})
	return s
}

func (s *session) GlobalScope() symengine.Handle {
	return s.global
}

func (s *session) FindChildren(parent symengine.Handle, tag symengine.SymTag, name string) ([]symengine.Handle, error) {
	if s.closed {
		return nil, errSessionClosed
	}
	sym, err := s.arena.Get(parent)
	if err != nil {
		return nil, err
	}

	var out []symengine.Handle
	switch {
	case sym.tag == symengine.TagExe && tag == symengine.TagCompiland:
		for _, typeName := range s.idx.typeOrder {
			if name == "" || name == typeName {
				out = append(out, s.arena.Acquire(symbol{tag: symengine.TagCompiland, typeName: typeName}))
			}
		}

	case sym.tag == symengine.TagExe && tag == symengine.TagFunction:
		if name == "" {
			return nil, fmt.Errorf("unfiltered function search of the global scope is not supported")
		}
		for _, fn := range s.idx.byNative[name] {
			out = append(out, s.arena.Acquire(symbol{tag: symengine.TagFunction, fn: fn}))
		}

	case sym.tag == symengine.TagCompiland && tag == symengine.TagFunction:
		for _, fn := range s.idx.types[sym.typeName] {
			if name == "" || name == fn.method {
				out = append(out, s.arena.Acquire(symbol{tag: symengine.TagFunction, fn: fn}))
			}
		}

	default:
		return nil, fmt.Errorf("no %s children under a %s symbol", tag, sym.tag)
	}
	return out, nil
}

func (s *session) Name(h symengine.Handle) (string, error) {
	sym, err := s.arena.Get(h)
	if err != nil {
		return "", err
	}
	switch sym.tag {
	case symengine.TagExe:
		return filepath.Base(s.obj.path), nil
	case symengine.TagCompiland:
		return sym.typeName, nil
	default:
		return sym.fn.method, nil
	}
}

func (s *session) AddressRange(h symengine.Handle) (symengine.AddressRange, error) {
	sym, err := s.arena.Get(h)
	if err != nil {
		return symengine.AddressRange{}, err
	}
	if sym.tag != symengine.TagFunction {
		return symengine.AddressRange{}, fmt.Errorf("%s symbol has no address range", sym.tag)
	}

	section, offset, ok := s.obj.section(sym.fn.lowpc)
	if !ok {
		return symengine.AddressRange{}, fmt.Errorf("address %#x is outside every code section", sym.fn.lowpc)
	}
	return symengine.AddressRange{
		Section: section,
		Offset:  offset,
		Length:  sym.fn.highpc - sym.fn.lowpc,
	}, nil
}

func (s *session) LineNumbersForRange(section, offset uint32, length uint64) ([]navigation.SequencePoint, error) {
	if s.closed {
		return nil, errSessionClosed
	}
	start, err := s.obj.address(section, offset)
	if err != nil {
		return nil, err
	}
	end := start + length
	sectionAddr := start - uint64(offset)

	var points []navigation.SequencePoint
	for i, u := range s.idx.units {
		if !u.covers(start, end) {
			continue
		}
		rows, err := s.lineRows(i)
		if err != nil {
			return nil, err
		}

		for _, r := range rowsInRange(rows, start, end) {
			line, _ := safe.IntToUint32(r.line)
			if line == 0 {
				line = navigation.HiddenLine
			}
			off, _ := safe.Uint64ToUint32(r.addr - sectionAddr)
			points = append(points, navigation.SequencePoint{
				StartLine:      line,
				EndLine:        line,
				SourceFile:     r.file,
				AddressSection: section,
				AddressOffset:  off,
			})
		}
	}
	return points, nil
}

// rowsInRange returns the rows describing code in [start, end). When no row
// begins exactly at start, the row covering start is included as well.
func rowsInRange(rows []row, start, end uint64) []row {
	i := sort.Search(len(rows), func(i int) bool { return rows[i].addr >= start })
	first := i
	if (i == len(rows) || rows[i].addr > start) && i > 0 && !rows[i-1].endSeq {
		first = i - 1
	}

	var out []row
	for j := first; j < len(rows) && rows[j].addr < end; j++ {
		if !rows[j].endSeq {
			out = append(out, rows[j])
		}
	}
	return out
}

// lineRows decodes and caches the line table of unit i, sorted by address.
func (s *session) lineRows(i int) ([]row, error) {
	if rows, ok := s.rows[i]; ok {
		return rows, nil
	}

	lr, err := s.obj.dwarf.LineReader(s.idx.units[i].entry)
	if err != nil {
		return nil, fmt.Errorf("failed to read line table: %w", err)
	}

	var rows []row
	if lr != nil {
		var entry dwarf.LineEntry
		for {
			if err := lr.Next(&entry); err != nil {
				if err == io.EOF {
					break
				}
				s.logger.Debug().Err(err).Int("unit", i).Msg("Line table truncated")
				break
			}
			file := ""
			if entry.File != nil {
				file = entry.File.Name
			}
			rows = append(rows, row{addr: entry.Address, file: file, line: entry.Line, endSeq: entry.EndSequence})
		}
	}

	sort.SliceStable(rows, func(a, b int) bool { return rows[a].addr < rows[b].addr })
	s.rows[i] = rows
	return rows, nil
}

func (s *session) Release(h symengine.Handle) error {
	if h == s.global {
		return fmt.Errorf("%w: global scope is owned by the session", symengine.ErrInvalidHandle)
	}
	return s.arena.Release(h)
}

func (s *session) Close() error {
	if s.closed {
		return errSessionClosed
	}
	s.closed = true

	if leaked := s.arena.ReleaseAll() - 1; leaked > 0 {
		s.logger.Debug().Int("handles", leaked).Msg("Released outstanding symbol handles")
	}
	s.rows = nil

	var result *multierror.Error
	if err := s.obj.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close binary: %w", err))
	}
	return result.ErrorOrNil()
}
