package psym

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"sort"
)

type stringTable struct {
	buf     []byte
	offsets map[string]uint32
}

func newStringTable() *stringTable {
	// Offset 0 holds a zero length string.
	return &stringTable{buf: make([]byte, 4), offsets: map[string]uint32{"": 0}}
}

func (st *stringTable) add(s string) uint32 {
	if off, ok := st.offsets[s]; ok {
		return off
	}
	off := uint32(len(st.buf))
	st.buf = binary.LittleEndian.AppendUint32(st.buf, uint32(len(s)))
	st.buf = append(st.buf, s...)
	st.offsets[s] = off
	return off
}

// Write serializes methods into w. Methods are sorted by token; when tokens
// repeat, the first method wins.
func Write(w io.Writer, fingerprint uint64, methods []Method) error {
	sorted := make([]Method, len(methods))
	copy(sorted, methods)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Token < sorted[j].Token })

	strs := newStringTable()
	var (
		methodTable []byte
		pointTable  []byte
		methodCount uint32
		pointCount  uint32
	)

	for i, m := range sorted {
		if i > 0 && m.Token == sorted[i-1].Token {
			continue
		}

		var entry [methodEntrySize]byte
		binary.LittleEndian.PutUint64(entry[0:], m.Token)
		binary.LittleEndian.PutUint32(entry[8:], strs.add(m.Name))
		binary.LittleEndian.PutUint32(entry[12:], strs.add(m.Document))
		binary.LittleEndian.PutUint32(entry[16:], pointCount)
		binary.LittleEndian.PutUint32(entry[20:], uint32(len(m.Points)))
		methodTable = append(methodTable, entry[:]...)
		methodCount++

		for _, p := range m.Points {
			var pe [pointEntrySize]byte
			binary.LittleEndian.PutUint32(pe[0:], p.StartLine)
			binary.LittleEndian.PutUint32(pe[4:], p.EndLine)
			binary.LittleEndian.PutUint32(pe[8:], p.Offset)
			pointTable = append(pointTable, pe[:]...)
		}
		pointCount += uint32(len(m.Points))
	}

	total := uint64(headerSize) + uint64(len(methodTable)) + uint64(len(pointTable)) + uint64(len(strs.buf))
	if total > math.MaxUint32 {
		return fmt.Errorf("symbol file too large: %d bytes", total)
	}

	h := header{
		magic:       magic,
		version:     version,
		fingerprint: fingerprint,
		methods: tableHeader{
			offset: headerSize,
			count:  methodCount,
			crc:    crc32.Checksum(methodTable, castagnoli),
		},
	}
	h.points = tableHeader{
		offset: h.methods.offset + uint32(len(methodTable)),
		count:  pointCount,
		crc:    crc32.Checksum(pointTable, castagnoli),
	}
	h.strings = tableHeader{
		offset: h.points.offset + uint32(len(pointTable)),
		count:  uint32(len(strs.buf)),
		crc:    crc32.Checksum(strs.buf, castagnoli),
	}

	for _, chunk := range [][]byte{h.marshal(), methodTable, pointTable, strs.buf} {
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("failed to write symbol file: %w", err)
		}
	}
	return nil
}
