// Package psym implements the portable symbol file: a compact, self-contained
// companion to a binary that maps method tokens to source documents and
// sequence points.
//
// A psym file is little-endian and consists of a fixed 64 byte header followed
// by three tables:
//
//	header   magic ".psy", version, binary fingerprint, table offsets/counts/CRCs
//	methods  24 byte entries sorted by token
//	points   12 byte entries (start line, end line, code offset)
//	strings  length prefixed UTF-8, offset 0 is the empty string
//
// Every table is covered by a CRC32 (Castagnoli) that is verified when the
// file is opened WithCRC.
package psym

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/coral-mesh/sourcenav/pkg/navigation"
)

// Ext is the file extension of portable symbol files.
const Ext = ".psym"

const (
	version uint32 = 1

	headerSize      = 0x40
	methodEntrySize = 24
	pointEntrySize  = 12
)

var (
	magic      = [4]byte{'.', 'p', 's', 'y'}
	castagnoli = crc32.MakeTable(crc32.Castagnoli)
)

// Point is one sequence point of a method. Offset is relative to the method's
// first instruction.
type Point struct {
	StartLine uint32
	EndLine   uint32
	Offset    uint32
}

// Method is the debug information of one method.
type Method struct {
	// Token identifies the method in the binary's own metadata.
	Token    uint64
	Name     string
	Document string
	Points   []Point
}

// MethodInfo is the result of a Lookup.
type MethodInfo struct {
	Token    uint64
	Name     string
	Document string
	Points   []navigation.SequencePoint
}

type tableHeader struct {
	offset uint32
	count  uint32
	crc    uint32
}

type header struct {
	magic       [4]byte
	version     uint32
	fingerprint uint64
	methods     tableHeader
	points      tableHeader
	strings     tableHeader // count holds the size in bytes
}

func (h *header) marshal() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], h.magic[:])
	binary.LittleEndian.PutUint32(buf[0x04:], h.version)
	binary.LittleEndian.PutUint64(buf[0x08:], h.fingerprint)
	putTableHeader(buf[0x10:], h.methods)
	putTableHeader(buf[0x1c:], h.points)
	putTableHeader(buf[0x28:], h.strings)
	return buf
}

func putTableHeader(buf []byte, t tableHeader) {
	binary.LittleEndian.PutUint32(buf[0:], t.offset)
	binary.LittleEndian.PutUint32(buf[4:], t.count)
	binary.LittleEndian.PutUint32(buf[8:], t.crc)
}

func getTableHeader(buf []byte) tableHeader {
	return tableHeader{
		offset: binary.LittleEndian.Uint32(buf[0:]),
		count:  binary.LittleEndian.Uint32(buf[4:]),
		crc:    binary.LittleEndian.Uint32(buf[8:]),
	}
}

func readHeader(r io.ReaderAt) (header, error) {
	buf := make([]byte, headerSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return header{}, fmt.Errorf("failed to read header: %w", err)
	}

	var h header
	copy(h.magic[:], buf[0:4])
	h.version = binary.LittleEndian.Uint32(buf[0x04:])
	h.fingerprint = binary.LittleEndian.Uint64(buf[0x08:])
	h.methods = getTableHeader(buf[0x10:])
	h.points = getTableHeader(buf[0x1c:])
	h.strings = getTableHeader(buf[0x28:])
	return h, nil
}

// Sniff reports whether r starts with the psym magic.
func Sniff(r io.ReaderAt) bool {
	var buf [4]byte
	if _, err := r.ReadAt(buf[:], 0); err != nil {
		return false
	}
	return buf == magic
}
