package psym

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/sourcenav/pkg/navigation"
)

type memFile struct {
	*bytes.Reader
	closed int
}

func (m *memFile) Close() error {
	m.closed++
	return nil
}

func sampleMethods() []Method {
	return []Method{
		{
			Token:    0x2000,
			Name:     "Sample.Tests.MathTests.Sub_ReturnsDifference",
			Document: "MathTests.cs",
			Points:   []Point{{StartLine: 17, EndLine: 17}, {StartLine: 18, EndLine: 20, Offset: 4}},
		},
		{
			Token:    0x1000,
			Name:     "Sample.Tests.MathTests.Add_ReturnsSum",
			Document: "MathTests.cs",
			Points: []Point{
				{StartLine: navigation.HiddenLine, EndLine: navigation.HiddenLine},
				{StartLine: 10, EndLine: 10, Offset: 2},
				{StartLine: 11, EndLine: 12, Offset: 8},
				{StartLine: 14, EndLine: 14, Offset: 16},
			},
		},
		{
			Token: 0x3000,
			Name:  "Sample.Tests.MathTests.NoDocument",
		},
	}
}

func writeTable(t *testing.T, methods []Method) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, 0xfeedbeef, methods))
	return buf.Bytes()
}

func openBytes(t *testing.T, data []byte, opts ...Option) *Table {
	t.Helper()
	table, err := OpenReader(&memFile{Reader: bytes.NewReader(data)}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })
	return table
}

func TestTable_Lookup(t *testing.T) {
	table := openBytes(t, writeTable(t, sampleMethods()), WithCRC())

	assert.Equal(t, 3, table.Len())
	assert.Equal(t, uint64(0xfeedbeef), table.Fingerprint())

	info, err := table.Lookup(0x1000)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Sample.Tests.MathTests.Add_ReturnsSum", info.Name)
	assert.Equal(t, "MathTests.cs", info.Document)
	require.Len(t, info.Points, 4)
	assert.True(t, info.Points[0].Hidden())
	assert.Equal(t, navigation.SequencePoint{StartLine: 11, EndLine: 12, SourceFile: "MathTests.cs", AddressOffset: 8}, info.Points[2])

	data := navigation.Reduce(info.Points)
	assert.Equal(t, navigation.Data{FileName: "MathTests.cs", MinLine: 10, MaxLine: 14}, data)

	info, err = table.Lookup(0x3000)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Empty(t, info.Document)
	assert.Empty(t, info.Points)

	info, err = table.Lookup(0x1234)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestWrite_DuplicateTokensKeepFirst(t *testing.T) {
	methods := []Method{
		{Token: 1, Name: "first", Points: []Point{{StartLine: 1, EndLine: 1}}},
		{Token: 1, Name: "second", Points: []Point{{StartLine: 2, EndLine: 2}}},
	}
	table := openBytes(t, writeTable(t, methods), WithCRC())

	assert.Equal(t, 1, table.Len())
	info, err := table.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, "first", info.Name)
}

func TestWrite_EmptyTable(t *testing.T) {
	table := openBytes(t, writeTable(t, nil), WithCRC())
	assert.Equal(t, 0, table.Len())

	info, err := table.Lookup(1)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestOpenReader_Rejects(t *testing.T) {
	valid := writeTable(t, sampleMethods())

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		opts   []Option
		errMsg string
	}{
		{
			name:   "bad magic",
			mutate: func(b []byte) []byte { b[0] = 'X'; return b },
			errMsg: "invalid magic",
		},
		{
			name:   "unknown version",
			mutate: func(b []byte) []byte { b[4] = 9; return b },
			errMsg: "unsupported version",
		},
		{
			name:   "truncated header",
			mutate: func(b []byte) []byte { return b[:10] },
			errMsg: "failed to read header",
		},
		{
			name: "oversized point table",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[0x20:], 0xFFFFFFF0)
				binary.LittleEndian.PutUint32(b[headerSize+20:], 0x7FFFFFFF)
				return b
			},
			errMsg: "points table",
		},
		{
			name:   "oversized method table",
			mutate: func(b []byte) []byte { binary.LittleEndian.PutUint32(b[0x14:], 0x10000000); return b },
			errMsg: "methods table",
		},
		{
			name:   "oversized string table",
			mutate: func(b []byte) []byte { binary.LittleEndian.PutUint32(b[0x2c:], 0xFFFFFFFF); return b },
			errMsg: "strings table",
		},
		{
			name:   "table inside header",
			mutate: func(b []byte) []byte { binary.LittleEndian.PutUint32(b[0x10:], 0); return b },
			errMsg: "methods table",
		},
		{
			name:   "truncated point table",
			mutate: func(b []byte) []byte { return b[:headerSize+3*methodEntrySize+4] },
			errMsg: "points table",
		},
		{
			name: "corrupt string table",
			mutate: func(b []byte) []byte {
				b[len(b)-1] ^= 0xff
				return b
			},
			opts:   []Option{WithCRC()},
			errMsg: "crc mismatch in strings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), valid...))
			f := &memFile{Reader: bytes.NewReader(data)}
			_, err := OpenReader(f, tt.opts...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Equal(t, 1, f.closed, "file must be closed on failure")
		})
	}
}

func TestTable_CloseIsIdempotent(t *testing.T) {
	f := &memFile{Reader: bytes.NewReader(writeTable(t, sampleMethods()))}
	table, err := OpenReader(f)
	require.NoError(t, err)

	require.NoError(t, table.Close())
	require.NoError(t, table.Close())
	assert.Equal(t, 1, f.closed)

	_, err = table.Lookup(0x1000)
	assert.Error(t, err)
}

func TestOpenLocateAndSniff(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "Sample.dll")
	require.NoError(t, os.WriteFile(binary, []byte("MZ"), 0o600))

	_, err := Locate(binary, "")
	require.Error(t, err)

	symPath := filepath.Join(dir, "Sample.psym")
	require.NoError(t, os.WriteFile(symPath, writeTable(t, sampleMethods()), 0o600))

	located, err := Locate(binary, "")
	require.NoError(t, err)
	assert.Equal(t, symPath, located)
	assert.True(t, SniffFile(located))
	assert.False(t, SniffFile(binary))
	assert.False(t, SniffFile(filepath.Join(dir, "missing.psym")))

	table, err := Open(located, WithCRC())
	require.NoError(t, err)
	defer table.Close()
	assert.Equal(t, 3, table.Len())
}
