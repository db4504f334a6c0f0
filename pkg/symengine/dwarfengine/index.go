package dwarfengine

import (
	"debug/dwarf"
	"sort"
	"strings"

	"github.com/coral-mesh/sourcenav/internal/symname"
)

const langGo = 0x16

// function is a subprogram with code.
type function struct {
	typeName string
	method   string
	native   string
	lowpc    uint64
	highpc   uint64
	unit     int
}

// unit is a compile unit and the address ranges it covers.
type unit struct {
	entry  *dwarf.Entry
	ranges [][2]uint64
}

func (u *unit) covers(lo, hi uint64) bool {
	for _, r := range u.ranges {
		if lo < r[1] && hi > r[0] {
			return true
		}
	}
	return false
}

// index groups the subprograms of a binary by declaring type. DWARF has no
// unit per type, so every type acts as one compiland.
type index struct {
	units     []*unit
	types     map[string][]*function
	typeOrder []string
	byNative  map[string][]*function
	functions int
}

// pending is a definition whose name lives on another entry
// (DW_AT_specification or DW_AT_abstract_origin).
type pending struct {
	fn     *function
	origin dwarf.Offset
	goUnit bool
}

// buildIndex walks every entry of d. A read error stops the walk; everything
// indexed up to that point is kept and the error is returned alongside.
func buildIndex(d *dwarf.Data) (*index, error) {
	idx := &index{
		types:    make(map[string][]*function),
		byNative: make(map[string][]*function),
	}

	var (
		decls   = make(map[dwarf.Offset]string)
		defs    []pending
		stack   []string
		current *unit
		goUnit  bool
		walkErr error
	)

	r := d.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			walkErr = err
			break
		}
		if e == nil {
			break
		}
		if e.Tag == 0 {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		name, _ := e.Val(dwarf.AttrName).(string)

		switch e.Tag {
		case dwarf.TagCompileUnit, dwarf.TagPartialUnit:
			stack = stack[:0]
			lang, _ := e.Val(dwarf.AttrLanguage).(int64)
			goUnit = lang == langGo
			current = &unit{entry: e}
			if ranges, err := d.Ranges(e); err == nil {
				current.ranges = ranges
			}
			idx.units = append(idx.units, current)
			name = ""

		case dwarf.TagNamespace, dwarf.TagClassType, dwarf.TagStructType, dwarf.TagUnionType:
			// Named scopes qualify the subprograms declared inside them.

		case dwarf.TagSubprogram:
			qualified := qualify(stack, name)
			if name != "" {
				decls[e.Offset] = qualified
			}

			// Compiler generated wrappers are marked as trampolines.
			trampoline := e.Val(dwarf.AttrTrampoline) != nil
			lowpc, highpc, ok := pcRange(d, e)
			if ok && current != nil && !trampoline {
				fn := &function{lowpc: lowpc, highpc: highpc, unit: len(idx.units) - 1}
				if !current.covers(lowpc, highpc) {
					current.ranges = append(current.ranges, [2]uint64{lowpc, highpc})
				}

				origin, hasOrigin := e.Val(dwarf.AttrSpecification).(dwarf.Offset)
				if !hasOrigin {
					origin, hasOrigin = e.Val(dwarf.AttrAbstractOrigin).(dwarf.Offset)
				}
				switch {
				case name != "":
					idx.add(fn, qualified, goUnit)
				case hasOrigin:
					defs = append(defs, pending{fn: fn, origin: origin, goUnit: goUnit})
				}
			}
			name = ""

		default:
			name = ""
		}

		if e.Children {
			stack = append(stack, name)
		}
	}

	for _, def := range defs {
		if qualified, ok := decls[def.origin]; ok {
			idx.add(def.fn, qualified, def.goUnit)
		}
	}

	idx.sort()
	return idx, walkErr
}

// qualify joins the named enclosing scopes and name with "::".
func qualify(stack []string, name string) string {
	if name == "" {
		return ""
	}
	var parts []string
	for _, s := range stack {
		if s != "" {
			parts = append(parts, s)
		}
	}
	parts = append(parts, name)
	return strings.Join(parts, symname.NativeSeparator)
}

func (idx *index) add(fn *function, qualified string, goUnit bool) {
	var ok bool
	if goUnit {
		fn.typeName, fn.method, ok = symname.SplitGo(qualified)
	} else {
		fn.typeName, fn.method, ok = symname.SplitNative(qualified)
	}
	if !ok {
		return
	}
	fn.native = symname.NativeName(fn.typeName, fn.method)

	if _, seen := idx.types[fn.typeName]; !seen {
		idx.typeOrder = append(idx.typeOrder, fn.typeName)
	}
	idx.types[fn.typeName] = append(idx.types[fn.typeName], fn)
	idx.byNative[fn.native] = append(idx.byNative[fn.native], fn)
	idx.functions++
}

func (idx *index) sort() {
	sort.Strings(idx.typeOrder)
	for _, fns := range idx.types {
		sort.SliceStable(fns, func(i, j int) bool { return fns[i].lowpc < fns[j].lowpc })
	}
}

// pcRange returns the code range of a subprogram. DW_AT_high_pc is an
// address in DWARF 2/3 and an offset from DW_AT_low_pc since DWARF 4.
func pcRange(d *dwarf.Data, e *dwarf.Entry) (uint64, uint64, bool) {
	if lowpc, ok := e.Val(dwarf.AttrLowpc).(uint64); ok {
		field := e.AttrField(dwarf.AttrHighpc)
		if field == nil {
			return 0, 0, false
		}
		switch field.Class {
		case dwarf.ClassAddress:
			if highpc, ok := field.Val.(uint64); ok && highpc > lowpc {
				return lowpc, highpc, true
			}
		case dwarf.ClassConstant:
			if size, ok := field.Val.(int64); ok && size > 0 {
				return lowpc, lowpc + uint64(size), true
			}
		}
		return 0, 0, false
	}

	if e.AttrField(dwarf.AttrRanges) == nil {
		return 0, 0, false
	}
	ranges, err := d.Ranges(e)
	if err != nil || len(ranges) == 0 {
		return 0, 0, false
	}
	lo, hi := ranges[0][0], ranges[0][1]
	for _, r := range ranges[1:] {
		lo = min(lo, r[0])
		hi = max(hi, r[1])
	}
	return lo, hi, hi > lo
}
