package doctor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mattjoyce/boxhand/internal/config"
)

func foundLookPath(name string) (string, error) { return "/usr/bin/" + name, nil }

func missingLookPath(name string) (string, error) { return "", errors.New("not found") }

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	return cfg
}

func projectDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Vagrantfile"), []byte("# test\n"), 0644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	return dir
}

func TestValidateHealthyEnvironment(t *testing.T) {
	d := New(baseConfig(t))
	d.lookPath = foundLookPath
	d.workDir = projectDir(t)

	r := d.Validate()
	if !r.Valid {
		t.Errorf("Valid = false, errors: %+v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", r.Warnings)
	}
}

func TestValidateMissingTool(t *testing.T) {
	d := New(baseConfig(t))
	d.lookPath = missingLookPath
	d.workDir = projectDir(t)

	r := d.Validate()
	if r.Valid {
		t.Error("Valid = true with tool missing from PATH")
	}
	if len(r.Errors) != 1 || r.Errors[0].Category != "tool" {
		t.Errorf("Errors = %+v, want one tool error", r.Errors)
	}
}

func TestValidateFallbackWarnings(t *testing.T) {
	cfg := baseConfig(t)
	cfg.FallbackDir = filepath.Join(t.TempDir(), "missing")

	d := New(cfg)
	d.lookPath = foundLookPath
	d.workDir = projectDir(t)

	r := d.Validate()
	if !r.Valid {
		t.Errorf("missing fallback should warn, not fail: %+v", r.Errors)
	}

	found := false
	for _, w := range r.Warnings {
		if w.Category == "fallback" {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings = %+v, want fallback warning", r.Warnings)
	}
}

func TestValidateFallbackIsFile(t *testing.T) {
	cfg := baseConfig(t)
	file := filepath.Join(t.TempDir(), "notadir")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.FallbackDir = file

	d := New(cfg)
	d.lookPath = foundLookPath
	d.workDir = projectDir(t)

	r := d.Validate()
	if r.Valid {
		t.Error("Valid = true with fallback_dir pointing at a file")
	}
}

func TestValidateWarnsOutsideProject(t *testing.T) {
	d := New(baseConfig(t))
	d.lookPath = foundLookPath
	d.workDir = t.TempDir()

	r := d.Validate()
	if !r.Valid {
		t.Errorf("being outside a project is not an error: %+v", r.Errors)
	}

	found := false
	for _, w := range r.Warnings {
		if w.Category == "project" {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings = %+v, want project warning", r.Warnings)
	}
}
