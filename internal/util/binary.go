// Package util provides shared utility functions.
package util

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// FindBinary searches for an executable binary by name.
// Search order:
//  1. Explicit configured path (if non-empty)
//  2. name on PATH (via exec.LookPath)
//  3. Platform well-known install locations
//
// Returns the resolved path or an error if not found.
func FindBinary(name string, configuredPath string) (string, error) {
	if configuredPath != "" {
		if isExecutable(configuredPath) {
			return configuredPath, nil
		}
		return "", fmt.Errorf("configured path %s is not an executable", configuredPath)
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	for _, dir := range wellKnownDirs() {
		candidate := filepath.Join(dir, exeName(name))
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("binary %s not found", name)
}

// wellKnownDirs lists install locations checked after PATH.
func wellKnownDirs() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\ffmpeg\bin`,
			`C:\Program Files\ffmpeg\bin`,
		}
	case "darwin":
		return []string{
			"/opt/homebrew/bin",
			"/usr/local/bin",
		}
	default:
		return []string{
			"/usr/local/bin",
			"/usr/bin",
			"/snap/bin",
		}
	}
}

func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// isExecutable checks if a file exists and is executable by the current user.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0111 != 0
}
