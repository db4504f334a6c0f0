// Package binmeta reads the metadata a Go binary carries about itself: the
// pclntab function table. It lists the declared types of the binary together
// with their declared methods, identified by a token (the method's entry PC)
// that portable symbol files are keyed by.
package binmeta

import (
	"debug/elf"
	"debug/gosym"
	"debug/macho"
	"debug/pe"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/zeebo/xxh3"

	"github.com/coral-mesh/sourcenav/internal/symname"
)

const autogenerated = "<autogenerated>"

// Method is a declared method.
type Method struct {
	Name  string
	Token uint64
	End   uint64
}

// Type is a declared type and its declared methods. Package level functions
// are listed under a type named after the package.
type Type struct {
	Name    string
	Methods []Method
}

// Metadata is the loaded function table of one binary.
type Metadata struct {
	table       *gosym.Table
	fingerprint uint64
	tokens      map[methodKey]uint64
}

type methodKey struct {
	typeName, method string
}

// Load reads the function table of the binary at path. The file is closed
// before Load returns.
func Load(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open binary: %w", err)
	}
	defer f.Close()

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return nil, fmt.Errorf("failed to read binary header: %w", err)
	}

	var (
		textStart       uint64
		symtab, pclntab []byte
	)
	switch {
	case string(magic[:]) == elf.ELFMAG:
		textStart, symtab, pclntab, err = pclnELF(f)
	case magic[0] == 'M' && magic[1] == 'Z':
		textStart, symtab, pclntab, err = pclnPE(f)
	default:
		textStart, symtab, pclntab, err = pclnMachO(f)
	}
	if err != nil {
		return nil, err
	}
	if len(pclntab) == 0 {
		return nil, fmt.Errorf("binary %s has no Go function table", path)
	}

	table, err := gosym.NewTable(symtab, gosym.NewLineTable(pclntab, textStart))
	if err != nil {
		return nil, fmt.Errorf("failed to parse function table: %w", err)
	}

	return &Metadata{
		table:       table,
		fingerprint: xxh3.Hash(pclntab),
	}, nil
}

func pclnELF(r io.ReaderAt) (uint64, []byte, []byte, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to parse ELF file: %w", err)
	}

	var textStart uint64
	if sec := f.Section(".text"); sec != nil {
		textStart = sec.Addr
	}
	symtab, err := sectionData(f.Section(".gosymtab"))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("could not get .gosymtab section: %w", err)
	}
	pclntab, err := sectionData(f.Section(".gopclntab"))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("could not get .gopclntab section: %w", err)
	}
	return textStart, symtab, pclntab, nil
}

func sectionData(sec *elf.Section) ([]byte, error) {
	if sec == nil || sec.Type == elf.SHT_NOBITS {
		return nil, nil
	}
	return sec.Data()
}

func pclnMachO(r io.ReaderAt) (uint64, []byte, []byte, error) {
	f, err := macho.NewFile(r)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("unrecognized binary format: %w", err)
	}

	var textStart uint64
	if sec := f.Section("__text"); sec != nil {
		textStart = sec.Addr
	}

	var symtab, pclntab []byte
	if sec := f.Section("__gosymtab"); sec != nil {
		if symtab, err = sec.Data(); err != nil {
			return 0, nil, nil, fmt.Errorf("could not get __gosymtab section: %w", err)
		}
	}
	if sec := f.Section("__gopclntab"); sec != nil {
		if pclntab, err = sec.Data(); err != nil {
			return 0, nil, nil, fmt.Errorf("could not get __gopclntab section: %w", err)
		}
	}
	return textStart, symtab, pclntab, nil
}

func pclnPE(r io.ReaderAt) (uint64, []byte, []byte, error) {
	f, err := pe.NewFile(r)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to parse PE file: %w", err)
	}

	var imageBase uint64
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		imageBase = uint64(oh.ImageBase)
	case *pe.OptionalHeader64:
		imageBase = oh.ImageBase
	default:
		return 0, nil, nil, fmt.Errorf("pe file format not recognized")
	}

	var textStart uint64
	if sec := f.Section(".text"); sec != nil {
		textStart = imageBase + uint64(sec.VirtualAddress)
	}

	pclntab, err := loadPETable(f, "runtime.pclntab", "runtime.epclntab")
	if err != nil {
		return 0, nil, nil, err
	}
	// Go 1.3 and later leave the symtab empty; a missing one is not fatal.
	symtab, _ := loadPETable(f, "runtime.symtab", "runtime.esymtab")
	return textStart, symtab, pclntab, nil
}

func findPESymbol(f *pe.File, name string) (*pe.Symbol, error) {
	for _, s := range f.Symbols {
		if s.Name != name {
			continue
		}
		if s.SectionNumber <= 0 || len(f.Sections) < int(s.SectionNumber) {
			return nil, fmt.Errorf("symbol %s: invalid section number %d", name, s.SectionNumber)
		}
		return s, nil
	}
	return nil, fmt.Errorf("no %s symbol found", name)
}

func loadPETable(f *pe.File, sname, ename string) ([]byte, error) {
	ssym, err := findPESymbol(f, sname)
	if err != nil {
		return nil, err
	}
	esym, err := findPESymbol(f, ename)
	if err != nil {
		return nil, err
	}
	if ssym.SectionNumber != esym.SectionNumber {
		return nil, fmt.Errorf("%s and %s symbols must be in the same section", sname, ename)
	}
	data, err := f.Sections[ssym.SectionNumber-1].Data()
	if err != nil {
		return nil, err
	}
	if ssym.Value > esym.Value || int(esym.Value) > len(data) {
		return nil, fmt.Errorf("%s: invalid table bounds", sname)
	}
	return data[ssym.Value:esym.Value], nil
}

// Fingerprint identifies the function table the metadata was loaded from.
// Portable symbol files record it to detect stale companions.
func (m *Metadata) Fingerprint() uint64 {
	return m.fingerprint
}

// Types returns the declared types of the binary sorted by name, each with
// its declared methods. Compiler generated wrappers, closures and
// initializers are not listed.
func (m *Metadata) Types() []Type {
	byName := make(map[string]*Type)

	for i := range m.table.Funcs {
		fn := &m.table.Funcs[i]

		typeName, method, ok := m.declared(fn)
		if !ok {
			continue
		}

		t, ok := byName[typeName]
		if !ok {
			t = &Type{Name: typeName}
			byName[typeName] = t
		}
		t.Methods = append(t.Methods, Method{Name: method, Token: fn.Entry, End: fn.End})
	}

	types := make([]Type, 0, len(byName))
	for _, t := range byName {
		types = append(types, *t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types
}

// LookupToken returns the token of typeName.methodName. The first call indexes
// the declared methods.
func (m *Metadata) LookupToken(typeName, methodName string) (uint64, bool) {
	if m.tokens == nil {
		m.tokens = make(map[methodKey]uint64)
		for i := range m.table.Funcs {
			fn := &m.table.Funcs[i]
			if t, method, ok := m.declared(fn); ok {
				m.tokens[methodKey{t, method}] = fn.Entry
			}
		}
	}
	token, ok := m.tokens[methodKey{typeName, methodName}]
	return token, ok
}

// declared splits the name of fn when it was written in source. Promoted and
// pointer wrapper methods are attributed to <autogenerated>.
func (m *Metadata) declared(fn *gosym.Func) (string, string, bool) {
	typeName, method, ok := symname.SplitGo(fn.Name)
	if !ok {
		return "", "", false
	}
	if file, _, _ := m.table.PCToLine(fn.Entry); file == autogenerated || file == "" {
		return "", "", false
	}
	return typeName, method, true
}
