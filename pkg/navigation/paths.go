package navigation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePaths makes binaryPath absolute against the working directory and
// defaults an empty searchPath to the working directory.
func ResolvePaths(binaryPath, searchPath string) (string, string, error) {
	if binaryPath == "" {
		return "", "", fmt.Errorf("binary path is empty")
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}

	if !filepath.IsAbs(binaryPath) {
		binaryPath = filepath.Join(wd, binaryPath)
	}
	if searchPath == "" {
		searchPath = wd
	}

	return filepath.Clean(binaryPath), searchPath, nil
}

// CompanionPaths lists the candidate locations of a debug companion file with
// extension ext, in probe order: next to the binary with its extension
// swapped, then inside searchPath.
func CompanionPaths(binaryPath, searchPath, ext string) []string {
	base := strings.TrimSuffix(filepath.Base(binaryPath), filepath.Ext(binaryPath)) + ext

	paths := []string{filepath.Join(filepath.Dir(binaryPath), base)}
	if searchPath != "" {
		candidate := filepath.Join(searchPath, base)
		if candidate != paths[0] {
			paths = append(paths, candidate)
		}
	}
	return paths
}

// FindCompanion returns the first existing companion file.
func FindCompanion(binaryPath, searchPath, ext string) (string, error) {
	paths := CompanionPaths(binaryPath, searchPath, ext)
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", fmt.Errorf("no %s file found for %s (tried %s)", ext, binaryPath, strings.Join(paths, ", "))
}
