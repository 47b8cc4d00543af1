// Package util provides shared utility functions.
package util

import (
	"fmt"
	"os"
	"os/exec"
)

// ResolveBinary returns configured if it is an executable file, otherwise
// falls back to FindBinary. A configured path that is not executable is an
// error rather than a silent fallback.
func ResolveBinary(configured, name, envVar string) (string, error) {
	if configured == "" {
		return FindBinary(name, envVar)
	}
	if !isExecutable(configured) {
		return "", fmt.Errorf("configured binary %s is not an executable file", configured)
	}
	return configured, nil
}

// FindBinary searches for an executable binary by name.
// Search order:
//  1. Environment variable (if envVar is non-empty and set)
//  2. ./name (current directory, useful for development)
//  3. name on PATH (via exec.LookPath)
//
// Each path is verified to exist and be executable before being returned.
func FindBinary(name string, envVar string) (string, error) {
	if envVar != "" {
		if envPath := os.Getenv(envVar); envPath != "" {
			if isExecutable(envPath) {
				return envPath, nil
			}
		}
	}

	localPath := "./" + name
	if isExecutable(localPath) {
		return localPath, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

// isExecutable checks if a file exists and has any executable bit set.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
