// Package doctor validates the boxhand environment and configuration.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mattjoyce/boxhand/internal/config"
	"github.com/mattjoyce/boxhand/internal/project"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded config against the host environment.
type Doctor struct {
	cfg *config.Config
	// lookPath is an override seam for tests; nil means exec.LookPath.
	lookPath func(name string) (string, error)
	// workDir is the directory the marker-reachability warning checks
	// from; empty means the process's current directory.
	workDir string
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.checkTool(r)
	d.checkFallbackDir(r)
	d.checkHistoryPath(r)
	d.warnNoProjectHere(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkTool verifies the external binary is reachable.
func (d *Doctor) checkTool(r *Result) {
	lookPath := d.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if d.cfg.Tool == "" {
		d.addError(r, "tool", "tool", "tool is empty")
		return
	}
	if _, err := lookPath(d.cfg.Tool); err != nil {
		d.addError(r, "tool", "tool",
			fmt.Sprintf("%q not found on PATH; install it or set tool in config", d.cfg.Tool))
	}
}

// checkFallbackDir warns when the configured fallback is unusable. The
// locator returns it unverified, so a bad value only bites at dispatch time.
func (d *Doctor) checkFallbackDir(r *Result) {
	if d.cfg.FallbackDir == "" {
		return
	}
	path := config.ExpandPath(d.cfg.FallbackDir)
	info, err := os.Stat(path)
	if err != nil {
		d.addWarning(r, "fallback", "fallback_dir",
			fmt.Sprintf("fallback_dir %q does not exist", d.cfg.FallbackDir))
		return
	}
	if !info.IsDir() {
		d.addError(r, "fallback", "fallback_dir",
			fmt.Sprintf("fallback_dir %q is not a directory", d.cfg.FallbackDir))
		return
	}
	if _, err := os.Stat(filepath.Join(path, project.MarkerFile)); err != nil {
		d.addWarning(r, "fallback", "fallback_dir",
			fmt.Sprintf("fallback_dir %q has no %s", d.cfg.FallbackDir, project.MarkerFile))
	}
}

// checkHistoryPath verifies the history directory can be created.
func (d *Doctor) checkHistoryPath(r *Result) {
	if d.cfg.History.Path == "" {
		return
	}
	dir := filepath.Dir(config.ExpandPath(d.cfg.History.Path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.addError(r, "history", "history.path",
			fmt.Sprintf("cannot create history directory %s: %v", dir, err))
	}
}

// warnNoProjectHere is informational: boxhand works fine outside a project
// for global actions, but most invocations expect one.
func (d *Doctor) warnNoProjectHere(r *Result) {
	start := d.workDir
	if start == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return
		}
		start = cwd
	}
	if _, err := project.FindRoot(start, d.cfg.FallbackDir); err != nil {
		d.addWarning(r, "project", "",
			fmt.Sprintf("no %s reachable from %s; scoped actions will fail here", project.MarkerFile, start))
	}
}
