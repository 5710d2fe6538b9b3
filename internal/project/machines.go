package project

import (
	"fmt"
	"os"
	"path/filepath"
)

// metadataDir is the fixed per-project subdirectory vagrant keeps machine
// metadata under. Its immediate subdirectories name the project's machines.
const metadataDir = ".vagrant/machines"

// ListMachines returns the machine names defined in the project at root, in
// filesystem listing order. Non-directory entries are excluded. A project
// without the metadata directory (never brought up, or single-machine and
// freshly initialized) has no machines: the result is an empty list, not an
// error, so interactive prompts degrade gracefully.
func ListMachines(root string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, metadataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list machines in %s: %w", root, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}
