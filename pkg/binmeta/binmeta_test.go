package binmeta

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct{ n int }

//go:noinline
func (f fixture) Probe() int { return f.n + 1 }

//go:noinline
func (f *fixture) Bump() { f.n++ }

func loadSelf(t *testing.T) *Metadata {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test binary symbols are not exported on windows")
	}

	exe, err := os.Executable()
	if err != nil {
		t.Skipf("test binary not available: %v", err)
	}
	md, err := Load(exe)
	require.NoError(t, err)
	return md
}

func TestLoad_DeclaredMethods(t *testing.T) {
	f := &fixture{}
	f.Bump()
	require.Equal(t, 2, f.Probe())

	md := loadSelf(t)
	assert.NotZero(t, md.Fingerprint())

	types := md.Types()
	require.NotEmpty(t, types)
	assert.True(t, sort.SliceIsSorted(types, func(i, j int) bool { return types[i].Name < types[j].Name }))

	const fixtureType = "github.com/coral-mesh/sourcenav/pkg/binmeta.fixture"
	var found *Type
	for i := range types {
		if types[i].Name == fixtureType {
			found = &types[i]
		}
	}
	require.NotNil(t, found, "fixture type must be declared")

	names := make(map[string]Method)
	for _, m := range found.Methods {
		names[m.Name] = m
	}
	require.Contains(t, names, "Probe")
	require.Contains(t, names, "Bump")
	assert.Less(t, names["Probe"].Token, names["Probe"].End)

	token, ok := md.LookupToken(fixtureType, "Probe")
	require.True(t, ok)
	assert.Equal(t, names["Probe"].Token, token)

	_, ok = md.LookupToken(fixtureType, "Missing")
	assert.False(t, ok)
}

func TestLoad_PackageFunctions(t *testing.T) {
	md := loadSelf(t)

	_, ok := md.LookupToken("github.com/coral-mesh/sourcenav/pkg/binmeta", "TestLoad_PackageFunctions")
	assert.True(t, ok)

	for _, typ := range md.Types() {
		for _, m := range typ.Methods {
			digits := strings.TrimPrefix(m.Name, "func")
			assert.False(t, digits != m.Name && digits != "" && strings.Trim(digits, "0123456789") == "",
				"closure %s.%s listed", typ.Name, m.Name)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open binary")

	short := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(short, []byte("ab"), 0o600))
	_, err = Load(short)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read binary header")

	text := filepath.Join(dir, "text")
	require.NoError(t, os.WriteFile(text, []byte("not a binary at all"), 0o600))
	_, err = Load(text)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized binary format")
}
