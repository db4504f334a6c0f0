// Package version holds the build information stamped in by the linker.
package version

import (
	"fmt"
	"runtime"
)

// Set with -ldflags "-X github.com/coral-mesh/sourcenav/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GoVersion is the toolchain the binary was built with.
var GoVersion = runtime.Version()

// String renders the build information, one field per line.
func String() string {
	return fmt.Sprintf("sourcenav version %s\nGit commit: %s\nBuild date: %s\nGo version: %s\n",
		Version, GitCommit, BuildDate, GoVersion)
}
