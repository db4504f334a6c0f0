package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/sourcenav/internal/config"
	"github.com/coral-mesh/sourcenav/internal/testutil"
	"github.com/coral-mesh/sourcenav/pkg/psym"
	"github.com/coral-mesh/sourcenav/pkg/symengine"
	"github.com/coral-mesh/sourcenav/pkg/symengine/dwarfengine"
)

type cliFixture struct{ n int }

//go:noinline
func (c cliFixture) Double() int {
	return c.n * 2
}

var cliFixtureType = reflect.TypeOf(cliFixture{}).PkgPath() + ".cliFixture"

// run executes the command line with a private configuration directory.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runIn(t, t.TempDir(), args...)
}

// runIn executes the command line with configDir as configuration directory.
func runIn(t *testing.T, configDir string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv(config.ConfigDirEnv, configDir)

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// selfBinary returns the running test binary, skipping when it carries no
// DWARF.
func selfBinary(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test binary DWARF is not read on windows")
	}
	require.Equal(t, 4, cliFixture{n: 2}.Double())

	exe, err := os.Executable()
	if err != nil {
		t.Skipf("test binary not available: %v", err)
	}

	s, err := dwarfengine.New(testutil.NewTestLogger(t)).OpenSession(exe, "")
	if errors.Is(err, symengine.ErrNoDebugInfo) {
		t.Skip("test binary was built without DWARF")
	}
	require.NoError(t, err)
	require.NoError(t, s.Close())
	return exe
}

func fixtureLine(t *testing.T) (string, int) {
	t.Helper()
	f := runtime.FuncForPC(reflect.ValueOf(cliFixture.Double).Pointer())
	require.NotNil(t, f)
	return f.FileLine(f.Entry())
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "sourcenav version")
	assert.Contains(t, stdout, "Go version: "+runtime.Version())
}

func TestConfigCommands(t *testing.T) {
	dir := t.TempDir()

	stdout, _, err := runIn(t, dir, "config", "init")
	require.NoError(t, err)
	path := filepath.Join(dir, config.ConfigFile)
	assert.Equal(t, "Wrote "+path+"\n", stdout)

	cfg, err := config.NewLoaderAt(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)

	_, _, err = runIn(t, dir, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = runIn(t, dir, "config", "init", "--force")
	require.NoError(t, err)

	t.Setenv("SOURCENAV_FORMAT", "portable")
	stdout, _, err = runIn(t, dir, "config", "view")
	require.NoError(t, err)
	assert.Contains(t, stdout, "format: portable")
	assert.Contains(t, stdout, "level: warn")
}

func TestResolveCommand_Native(t *testing.T) {
	exe := selfBinary(t)
	file, line := fixtureLine(t)

	stdout, _, err := run(t, "resolve", exe, cliFixtureType, "Double", "--format", "native")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, cliFixtureType+" Double "+file+":"), stdout)

	stdout, _, err = run(t, "resolve", exe, cliFixtureType, "Double", "--format", "native", "-o", "json")
	require.NoError(t, err)

	var got struct {
		Found    bool   `json:"found"`
		Backend  string `json:"backend"`
		FileName string `json:"fileName"`
		MinLine  int    `json:"minLine"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.True(t, got.Found)
	assert.Equal(t, "native", got.Backend)
	assert.Equal(t, file, got.FileName)
	assert.Equal(t, line, got.MinLine)
}

func TestResolveCommand_NotFound(t *testing.T) {
	exe := selfBinary(t)

	stdout, _, err := run(t, "resolve", exe, cliFixtureType, "Missing", "--format", "native")
	require.NoError(t, err)
	assert.Equal(t, cliFixtureType+".Missing: no navigation data\n", stdout)
}

func TestExportThenResolvePortable(t *testing.T) {
	exe := selfBinary(t)
	file, line := fixtureLine(t)

	dir := t.TempDir()
	out := filepath.Join(dir, strings.TrimSuffix(filepath.Base(exe), filepath.Ext(exe))+psym.Ext)

	stdout, _, err := run(t, "export", exe, "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Exported ")
	assert.FileExists(t, out)

	stdout, _, err = run(t, "resolve", exe, cliFixtureType, "Double",
		"--format", "portable", "--search-path", dir, "-o", "json")
	require.NoError(t, err)

	var got struct {
		Backend  string `json:"backend"`
		FileName string `json:"fileName"`
		MinLine  int    `json:"minLine"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "portable", got.Backend)
	assert.Equal(t, file, got.FileName)
	assert.Equal(t, line, got.MinLine)

	stdout, _, err = run(t, "list", exe, "--format", "portable", "--search-path", dir,
		"--type", cliFixtureType, "-o", "csv")
	require.NoError(t, err)
	assert.Contains(t, stdout, "TYPE,METHOD,LOCATION")
	assert.Contains(t, stdout, cliFixtureType+",Double,"+file)
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "unsupported output",
			args:    []string{"resolve", "bin", "T", "M", "-o", "csv"},
			wantErr: "unsupported format",
		},
		{
			name:    "unknown backend",
			args:    []string{"resolve", "bin", "T", "M", "--format", "pdb"},
			wantErr: "pdb",
		},
		{
			name:    "bad log level",
			args:    []string{"version", "--log-level", "loud"},
			wantErr: "loud",
		},
		{
			name:    "missing binary",
			args:    []string{"list", filepath.Join(os.TempDir(), "sourcenav-missing.test"), "--format", "native"},
			wantErr: "failed to open debug information",
		},
		{
			name:    "missing arguments",
			args:    []string{"resolve", "bin"},
			wantErr: "accepts 3 arg(s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
