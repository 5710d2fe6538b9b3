// Package editor opens files in the user's preferred text editor. It backs
// the edit-config action, which opens the located Vagrantfile instead of
// dispatching a command.
package editor

import (
	"fmt"
	"os"
	"os/exec"
)

// Opener opens a file for editing.
type Opener interface {
	OpenFile(path string) error
}

// fallbackEditors are tried in order when neither $VISUAL nor $EDITOR is set.
var fallbackEditors = []string{"sensible-editor", "nano", "vim", "vi"}

// EnvOpener resolves the editor from $VISUAL, then $EDITOR, then a fallback
// chain, and runs it attached to the caller's terminal.
type EnvOpener struct {
	// LookPath is an override seam for tests; nil means exec.LookPath.
	LookPath func(name string) (string, error)
}

// Resolve returns the editor binary to use.
func (o *EnvOpener) Resolve() (string, error) {
	if v := os.Getenv("VISUAL"); v != "" {
		return v, nil
	}
	if v := os.Getenv("EDITOR"); v != "" {
		return v, nil
	}

	lookPath := o.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, candidate := range fallbackEditors {
		if path, err := lookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no editor found: set $EDITOR")
}

// OpenFile opens path in the resolved editor, blocking until the editor
// exits. Editing is the one boxhand action that is not fire-and-forget.
func (o *EnvOpener) OpenFile(path string) error {
	bin, err := o.Resolve()
	if err != nil {
		return err
	}

	cmd := exec.Command(bin, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("editor %s: %w", bin, err)
	}
	return nil
}
