// Package project locates Vagrant project roots and enumerates their machines.
package project

import (
	"fmt"
	"os"
	"path/filepath"
)

// MarkerFile is the project-root indicator. The directory containing it is
// the working directory for every scoped command.
const MarkerFile = "Vagrantfile"

// RootNotFoundError reports that no ancestor of the start directory contains
// the marker file and no usable fallback was configured.
type RootNotFoundError struct {
	StartDir string
}

func (e *RootNotFoundError) Error() string {
	return fmt.Sprintf("no %s found in %s or any parent directory", MarkerFile, e.StartDir)
}

// FindRoot walks upward from startDir and returns the first directory
// (including startDir itself) containing the marker file. When the walk
// exhausts the tree, a non-empty fallback is returned as-is, unverified.
// Otherwise a *RootNotFoundError carrying startDir is returned.
//
// The probe is read-only and uncached: the working directory can change
// between invocations, so every dispatch re-runs the search.
func FindRoot(startDir, fallback string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve start directory %q: %w", startDir, err)
	}

	for {
		marker := filepath.Join(dir, MarkerFile)
		if info, err := os.Stat(marker); err == nil && !info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if fallback != "" {
		return fallback, nil
	}
	return "", &RootNotFoundError{StartDir: startDir}
}
