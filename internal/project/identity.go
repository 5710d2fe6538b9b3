package project

import (
	"encoding/hex"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// ID derives a stable short identity for a project root, used to key
// history rows and viewer names. Two invocations against the same cleaned
// path always agree; the Vagrantfile's contents are deliberately not part
// of the hash so edits don't change the project's identity.
func ID(root string) string {
	clean := filepath.Clean(root)
	if abs, err := filepath.Abs(clean); err == nil {
		clean = abs
	}
	sum := blake3.Sum256([]byte(clean))
	return hex.EncodeToString(sum[:])[:12]
}
