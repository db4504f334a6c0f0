package dwarfengine

import (
	"debug/dwarf"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hashicorp/go-multierror"

	"github.com/coral-mesh/sourcenav/internal/safe"
	"github.com/coral-mesh/sourcenav/pkg/navigation"
	"github.com/coral-mesh/sourcenav/pkg/symengine"
)

const (
	machoPureInstructions = 0x80000000
	machoSomeInstructions = 0x400
	peCode                = 0x20
)

// codeSection is an executable section. Addresses are reported relative to
// it, with 1-based indices in file order.
type codeSection struct {
	name string
	addr uint64
	size uint64
}

// object is an opened binary and, when its DWARF lives elsewhere, the file
// the DWARF was read from.
type object struct {
	path      string
	debugPath string
	format    string
	sections  []codeSection
	dwarf     *dwarf.Data
	closers   []io.Closer
}

// openObject opens the binary at path and locates its DWARF. searchPath is
// probed for a separate debug file when the binary has been stripped.
func openObject(path, searchPath string) (*object, error) {
	obj := &object{path: path, debugPath: path}

	bin, err := openBinary(path)
	if err != nil {
		return nil, err
	}
	obj.format = bin.format
	obj.sections = bin.sections
	obj.closers = append(obj.closers, bin.closer)

	if bin.dwarfErr == nil {
		obj.dwarf = bin.dwarf
		return obj, nil
	}

	for _, candidate := range debugCandidates(path, searchPath) {
		dbg, err := openBinary(candidate)
		if err != nil {
			continue
		}
		if dbg.dwarfErr != nil {
			_ = dbg.closer.Close()
			continue
		}
		obj.dwarf = dbg.dwarf
		obj.debugPath = candidate
		obj.closers = append(obj.closers, dbg.closer)
		return obj, nil
	}

	_ = obj.Close()
	return nil, fmt.Errorf("%w in %s: %w", symengine.ErrNoDebugInfo, path, bin.dwarfErr)
}

// debugCandidates lists the places a separate debug file is looked for.
func debugCandidates(path, searchPath string) []string {
	base := filepath.Base(path)
	candidates := navigation.CompanionPaths(path, searchPath, ".debug")
	candidates = append(candidates,
		path+".debug",
		filepath.Join(filepath.Dir(path), ".debug", base+".debug"),
		filepath.Join(path+".dSYM", "Contents", "Resources", "DWARF", base),
	)
	return candidates
}

// Close closes the binary and its debug file.
func (o *object) Close() error {
	var result *multierror.Error
	for _, c := range o.closers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	o.closers = nil
	return result.ErrorOrNil()
}

// section maps an address to a 1-based section index and an offset.
func (o *object) section(addr uint64) (uint32, uint32, bool) {
	for i, s := range o.sections {
		if addr >= s.addr && addr < s.addr+s.size {
			off, _ := safe.Uint64ToUint32(addr - s.addr)
			return uint32(i + 1), off, true
		}
	}
	return 0, 0, false
}

// address maps a section index and offset back to an address.
func (o *object) address(section, offset uint32) (uint64, error) {
	if section == 0 || int(section) > len(o.sections) {
		return 0, fmt.Errorf("section %d out of range", section)
	}
	return o.sections[section-1].addr + uint64(offset), nil
}

type binary struct {
	format   string
	sections []codeSection
	dwarf    *dwarf.Data
	dwarfErr error
	closer   io.Closer
}

func openBinary(path string) (*binary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open binary: %w", err)
	}

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read binary header: %w", err)
	}

	var bin *binary
	switch {
	case string(magic[:]) == elf.ELFMAG:
		bin, err = openELF(f)
	case magic[0] == 'M' && magic[1] == 'Z':
		bin, err = openPE(f)
	case isFat(magic):
		bin, err = openFat(f)
	default:
		bin, err = openMachO(f)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	bin.closer = f
	return bin, nil
}

func openELF(r io.ReaderAt) (*binary, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF file: %w", err)
	}

	bin := &binary{format: "elf"}
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_EXECINSTR != 0 && s.Size > 0 {
			bin.sections = append(bin.sections, codeSection{name: s.Name, addr: s.Addr, size: s.Size})
		}
	}
	if f.Section(".debug_info") == nil && f.Section(".zdebug_info") == nil {
		bin.dwarfErr = errors.New("no .debug_info section")
		return bin, nil
	}
	bin.dwarf, bin.dwarfErr = f.DWARF()
	return bin, nil
}

func openMachO(r io.ReaderAt) (*binary, error) {
	f, err := macho.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("unrecognized binary format: %w", err)
	}
	return machoBinary(f), nil
}

func machoBinary(f *macho.File) *binary {
	bin := &binary{format: "macho"}
	for _, s := range f.Sections {
		if s.Flags&(machoPureInstructions|machoSomeInstructions) != 0 && s.Size > 0 {
			bin.sections = append(bin.sections, codeSection{name: s.Name, addr: s.Addr, size: s.Size})
		}
	}
	bin.dwarf, bin.dwarfErr = f.DWARF()
	return bin
}

func isFat(magic [4]byte) bool {
	return magic == [4]byte{0xca, 0xfe, 0xba, 0xbe} || magic == [4]byte{0xbe, 0xba, 0xfe, 0xca}
}

func openFat(r io.ReaderAt) (*binary, error) {
	fat, err := macho.NewFatFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse universal binary: %w", err)
	}
	if len(fat.Arches) == 0 {
		return nil, errors.New("universal binary has no architectures")
	}

	want := macho.CpuAmd64
	if runtime.GOARCH == "arm64" {
		want = macho.CpuArm64
	}
	arch := fat.Arches[0]
	for _, a := range fat.Arches {
		if a.Cpu == want {
			arch = a
			break
		}
	}
	return machoBinary(arch.File), nil
}

func openPE(r io.ReaderAt) (*binary, error) {
	f, err := pe.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PE file: %w", err)
	}

	var imageBase uint64
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		imageBase = uint64(oh.ImageBase)
	case *pe.OptionalHeader64:
		imageBase = oh.ImageBase
	}

	bin := &binary{format: "pe"}
	for _, s := range f.Sections {
		if s.Characteristics&peCode != 0 && s.VirtualSize > 0 {
			bin.sections = append(bin.sections, codeSection{
				name: s.Name,
				addr: imageBase + uint64(s.VirtualAddress),
				size: uint64(s.VirtualSize),
			})
		}
	}
	bin.dwarf, bin.dwarfErr = f.DWARF()
	return bin, nil
}
