package psym

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"

	"github.com/coral-mesh/sourcenav/pkg/navigation"
)

// ReaderAtCloser is the file abstraction a Table reads from. Its size is taken
// from a Size method (bytes.Reader, io.SectionReader) or from Stat (os.File).
type ReaderAtCloser interface {
	io.ReaderAt
	io.Closer
}

func fileSize(f ReaderAtCloser) (uint64, error) {
	switch v := f.(type) {
	case interface{ Size() int64 }:
		return uint64(v.Size()), nil
	case interface{ Stat() (os.FileInfo, error) }:
		info, err := v.Stat()
		if err != nil {
			return 0, fmt.Errorf("failed to stat symbol file: %w", err)
		}
		return uint64(info.Size()), nil
	}
	return 0, errors.New("cannot determine symbol file size")
}

// Option configures Open.
type Option func(*options)

type options struct {
	crc bool
}

// WithCRC verifies the checksum of every table when opening.
func WithCRC() Option {
	return func(o *options) {
		o.crc = true
	}
}

// Table is an open portable symbol file. The method table is held in memory;
// points and strings are read on demand.
type Table struct {
	file    ReaderAtCloser
	hdr     header
	methods []byte
}

// Open opens the symbol file at path.
func Open(path string, opts ...Option) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open symbol file: %w", err)
	}
	return OpenReader(f, opts...)
}

// OpenReader validates the header of f and loads its method table. f is closed
// when validation fails; otherwise the Table owns it.
func OpenReader(f ReaderAtCloser, opts ...Option) (*Table, error) {
	var opt options
	for _, o := range opts {
		o(&opt)
	}

	t := &Table{file: f}
	if err := t.load(opt); err != nil {
		_ = t.Close()
		return nil, err
	}
	return t, nil
}

func (t *Table) load(opt options) error {
	hdr, err := readHeader(t.file)
	if err != nil {
		return err
	}
	if hdr.magic != magic {
		return fmt.Errorf("invalid magic number %q", hdr.magic[:])
	}
	if hdr.version != version {
		return fmt.Errorf("unsupported version: expected %d, got %d", version, hdr.version)
	}
	size, err := fileSize(t.file)
	if err != nil {
		return err
	}
	if err := hdr.validate(size); err != nil {
		return err
	}
	t.hdr = hdr

	t.methods = make([]byte, int(hdr.methods.count)*methodEntrySize)
	if _, err := t.file.ReadAt(t.methods, int64(hdr.methods.offset)); err != nil {
		return fmt.Errorf("failed to read method table: %w", err)
	}

	var prev uint64
	for i := 0; i < t.Len(); i++ {
		e := t.entry(i)
		if i > 0 && e.token <= prev {
			return fmt.Errorf("method table not sorted at entry %d", i)
		}
		if uint64(e.firstPoint)+uint64(e.pointCount) > uint64(hdr.points.count) {
			return fmt.Errorf("method %#x points out of range", e.token)
		}
		prev = e.token
	}

	if opt.crc {
		if err := t.CheckCRC(); err != nil {
			return fmt.Errorf("CRC check failed: %w", err)
		}
	}
	return nil
}

// validate rejects a header whose tables do not lie inside a file of size
// bytes. Every later allocation is bounded by these tables.
func (h *header) validate(size uint64) error {
	tables := []struct {
		name      string
		th        tableHeader
		entrySize uint64
	}{
		{"methods", h.methods, methodEntrySize},
		{"points", h.points, pointEntrySize},
		{"strings", h.strings, 1},
	}
	for _, tt := range tables {
		end := uint64(tt.th.offset) + uint64(tt.th.count)*tt.entrySize
		if tt.th.offset < headerSize || end > size {
			return fmt.Errorf("%s table [%d, %d) outside file of %d bytes", tt.name, tt.th.offset, end, size)
		}
	}
	return nil
}

type methodEntry struct {
	token      uint64
	name       uint32
	document   uint32
	firstPoint uint32
	pointCount uint32
}

func (t *Table) entry(i int) methodEntry {
	b := t.methods[i*methodEntrySize : (i+1)*methodEntrySize]
	return methodEntry{
		token:      binary.LittleEndian.Uint64(b[0:]),
		name:       binary.LittleEndian.Uint32(b[8:]),
		document:   binary.LittleEndian.Uint32(b[12:]),
		firstPoint: binary.LittleEndian.Uint32(b[16:]),
		pointCount: binary.LittleEndian.Uint32(b[20:]),
	}
}

// Len returns the number of methods in the table.
func (t *Table) Len() int {
	return len(t.methods) / methodEntrySize
}

// Fingerprint returns the fingerprint of the binary the file was built from,
// or zero when unknown.
func (t *Table) Fingerprint() uint64 {
	return t.hdr.fingerprint
}

// Lookup returns the debug information of the method with token, or nil when
// the table has no such method.
func (t *Table) Lookup(token uint64) (*MethodInfo, error) {
	if t.file == nil {
		return nil, errors.New("symbol file is closed")
	}

	n := t.Len()
	i := sort.Search(n, func(i int) bool { return t.entry(i).token >= token })
	if i == n || t.entry(i).token != token {
		return nil, nil
	}
	e := t.entry(i)

	name, err := t.str(e.name)
	if err != nil {
		return nil, fmt.Errorf("method %#x: %w", token, err)
	}
	doc, err := t.str(e.document)
	if err != nil {
		return nil, fmt.Errorf("method %#x: %w", token, err)
	}

	buf := make([]byte, int(e.pointCount)*pointEntrySize)
	off := int64(t.hdr.points.offset) + int64(e.firstPoint)*pointEntrySize
	if _, err := t.file.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("method %#x: failed to read points: %w", token, err)
	}

	info := &MethodInfo{
		Token:    token,
		Name:     name,
		Document: doc,
		Points:   make([]navigation.SequencePoint, 0, e.pointCount),
	}
	for p := 0; p < int(e.pointCount); p++ {
		b := buf[p*pointEntrySize:]
		info.Points = append(info.Points, navigation.SequencePoint{
			StartLine:     binary.LittleEndian.Uint32(b[0:]),
			EndLine:       binary.LittleEndian.Uint32(b[4:]),
			AddressOffset: binary.LittleEndian.Uint32(b[8:]),
			SourceFile:    doc,
		})
	}
	return info, nil
}

func (t *Table) str(offset uint32) (string, error) {
	if offset == 0 {
		return "", nil
	}
	if uint64(offset)+4 > uint64(t.hdr.strings.count) {
		return "", fmt.Errorf("string offset %d out of range", offset)
	}

	var lenBuf [4]byte
	if _, err := t.file.ReadAt(lenBuf[:], int64(t.hdr.strings.offset)+int64(offset)); err != nil {
		return "", err
	}
	size := binary.LittleEndian.Uint32(lenBuf[:])
	if uint64(offset)+4+uint64(size) > uint64(t.hdr.strings.count) {
		return "", fmt.Errorf("string at %d overruns table", offset)
	}

	data := make([]byte, size)
	if _, err := t.file.ReadAt(data, int64(t.hdr.strings.offset)+int64(offset)+4); err != nil && err != io.EOF {
		return "", err
	}
	return string(data), nil
}

// CheckCRC verifies the checksums of all tables.
func (t *Table) CheckCRC() error {
	if crc32.Checksum(t.methods, castagnoli) != t.hdr.methods.crc {
		return errors.New("crc mismatch in methods")
	}
	if err := checkCRC(t.file, t.hdr.points.offset, int64(t.hdr.points.count)*pointEntrySize, t.hdr.points.crc, "points"); err != nil {
		return err
	}
	return checkCRC(t.file, t.hdr.strings.offset, int64(t.hdr.strings.count), t.hdr.strings.crc, "strings")
}

func checkCRC(f io.ReaderAt, offset uint32, size int64, expected uint32, name string) error {
	crc := crc32.New(castagnoli)
	n, err := io.Copy(crc, io.NewSectionReader(f, int64(offset), size))
	if err != nil {
		return err
	}
	if n != size {
		return errors.New("unexpected end of " + name)
	}
	if crc.Sum32() != expected {
		return errors.New("crc mismatch in " + name)
	}
	return nil
}

// Close releases the underlying file. It is safe to call more than once.
func (t *Table) Close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

// Locate returns the psym companion of binaryPath: the sibling file with the
// extension swapped, then the same name inside searchPath.
func Locate(binaryPath, searchPath string) (string, error) {
	return navigation.FindCompanion(binaryPath, searchPath, Ext)
}

// SniffFile reports whether the file at path is a portable symbol file.
func SniffFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	return Sniff(f)
}
