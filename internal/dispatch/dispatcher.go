// Package dispatch composes vagrant command lines and spawns them
// asynchronously, streaming output into per-dispatch viewers. It never
// interprets the child's output and never acts on its exit status.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattjoyce/boxhand/internal/command"
	"github.com/mattjoyce/boxhand/internal/config"
	"github.com/mattjoyce/boxhand/internal/events"
	"github.com/mattjoyce/boxhand/internal/history"
	"github.com/mattjoyce/boxhand/internal/log"
	"github.com/mattjoyce/boxhand/internal/project"
	"github.com/mattjoyce/boxhand/internal/viewer"
)

// MachineSelector asks the user to pick one machine name. Injected by the
// caller (terminal picker, editor UI); the dispatcher itself has no UI.
// Returning "" means no machine chosen, which is valid.
type MachineSelector func(candidates []string) (string, error)

// Request describes one action to dispatch.
type Request struct {
	// Action names a row of the command table.
	Action string
	// Dir is the starting directory for root resolution (scoped actions)
	// and the working directory for global ones. Empty means the
	// process's current directory.
	Dir string
	// Options is a whitespace-split flag string appended to the template.
	Options string
	// Args are appended verbatim, each one argv token (ssh-command's
	// remote command).
	Args []string
	// Machine pins the target machine, skipping any prompt.
	Machine string
	// Prompt asks the selector to pick a machine on interactive actions.
	// Without it interactive actions run unqualified, as every other
	// action does.
	Prompt bool
}

// Dispatch is the observable record of one spawned command.
type Dispatch struct {
	ID      string
	Action  string
	Root    string
	Command string
	Machine string
	Viewer  string

	done chan struct{}
	exit int
}

// Wait blocks until the child exits and returns its exit code. The code is
// for display; boxhand never branches on it.
func (d *Dispatch) Wait() int {
	<-d.done
	return d.exit
}

// Dispatcher resolves project roots, composes command lines and spawns
// children. Dispatches are independent: no shared state beyond the viewer
// registry and hub, both of which synchronize internally.
type Dispatcher struct {
	cfg      *config.Config
	viewers  *viewer.Registry
	hub      *events.Hub
	store    *history.Store
	executor Executor
	selector MachineSelector
	logger   *slog.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithExecutor replaces the process-spawning seam.
func WithExecutor(e Executor) Option {
	return func(d *Dispatcher) { d.executor = e }
}

// WithSelector installs the interactive machine picker.
func WithSelector(s MachineSelector) Option {
	return func(d *Dispatcher) { d.selector = s }
}

// WithHistory installs the dispatch log. Without it nothing is recorded.
func WithHistory(s *history.Store) Option {
	return func(d *Dispatcher) { d.store = s }
}

// New creates a Dispatcher.
func New(cfg *config.Config, viewers *viewer.Registry, hub *events.Hub, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		viewers:  viewers,
		hub:      hub,
		executor: execExecutor{},
		logger:   log.WithComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch resolves, composes and spawns one command. Resolution failures
// (unknown action, no project root, selector abort) return an error before
// any process is started. Once the child is spawned the call returns
// immediately; failures from the child are visible only through the viewer
// and the history log.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Dispatch, error) {
	spec, ok := command.Lookup(req.Action)
	if !ok {
		return nil, fmt.Errorf("unknown action %q", req.Action)
	}

	startDir := req.Dir
	if startDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		startDir = cwd
	}

	// Scoped actions run from the project root; resolution failure aborts
	// the dispatch with zero side effects.
	workDir := startDir
	projectID := ""
	if spec.Scoped {
		root, err := project.FindRoot(startDir, d.cfg.FallbackDir)
		if err != nil {
			return nil, err
		}
		workDir = root
		projectID = project.ID(root)
	}

	machine, err := d.resolveMachine(spec, req, workDir)
	if err != nil {
		return nil, err
	}

	options := req.Options
	if req.Action == "up" && d.cfg.UpFlags != "" {
		options = strings.TrimSpace(d.cfg.UpFlags + " " + options)
	}

	id := uuid.NewString()
	argv := command.Compose(d.cfg.Tool, spec, req.Args, options, machine)
	line := command.Line(argv)

	vname := viewer.Name(req.Action, id)
	v := d.viewers.Open(vname)
	v.Attach()

	disp := &Dispatch{
		ID:      id,
		Action:  req.Action,
		Root:    workDir,
		Command: line,
		Machine: machine,
		Viewer:  vname,
		done:    make(chan struct{}),
	}

	if d.store != nil {
		err := d.store.Record(ctx, history.Entry{
			ID:        id,
			ProjectID: projectID,
			Root:      workDir,
			Action:    req.Action,
			Command:   line,
			Machine:   machine,
			Viewer:    vname,
			StartedAt: time.Now().UTC(),
		})
		if err != nil {
			d.logger.Warn("failed to record dispatch", "dispatch_id", id, "error", err)
		}
	}

	d.hub.Publish(events.TypeDispatchStarted, map[string]string{
		"id":      id,
		"action":  req.Action,
		"command": line,
		"viewer":  vname,
		"root":    workDir,
	})

	d.spawn(disp, v, argv, workDir)
	return disp, nil
}

// resolveMachine applies the interactive-selection rules: an explicit
// machine always wins, a prompt is only shown when asked for, and a project
// with no machines prompts nobody.
func (d *Dispatcher) resolveMachine(spec command.Spec, req Request, root string) (string, error) {
	if req.Machine != "" {
		return req.Machine, nil
	}
	if !spec.Interactive || !req.Prompt || d.selector == nil {
		return "", nil
	}

	candidates, err := project.ListMachines(root)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", nil
	}
	return d.selector(candidates)
}

// spawn starts the child and tails it on a goroutine. Start failures (a
// missing vagrant binary, typically) surface in the viewer like any other
// process-level failure; by then the dispatch already exists.
func (d *Dispatcher) spawn(disp *Dispatch, v *viewer.Viewer, argv []string, workDir string) {
	logger := log.WithDispatch(disp.ID)

	out := newLineWriter(func(line string) {
		v.Append(line)
		d.hub.Publish(events.TypeDispatchOutput, map[string]string{
			"id":     disp.ID,
			"viewer": disp.Viewer,
			"line":   line,
		})
	})

	cmd := d.executor.Command(argv[0], argv[1:]...)
	cmd.Dir = workDir
	cmd.Stdout = out
	cmd.Stderr = out

	logger.Info("spawning", "command", disp.Command, "dir", workDir, "viewer", disp.Viewer)

	if err := cmd.Start(); err != nil {
		out.emit(fmt.Sprintf("boxhand: %v", err))
		d.finish(disp, v, -1)
		return
	}

	go func() {
		err := cmd.Wait()
		out.Flush()

		exitCode := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = -1
				out.emit(fmt.Sprintf("boxhand: %v", err))
			}
		}
		d.finish(disp, v, exitCode)
	}()
}

func (d *Dispatcher) finish(disp *Dispatch, v *viewer.Viewer, exitCode int) {
	v.Append(fmt.Sprintf("[process exited with code %d]", exitCode))
	v.Detach()

	disp.exit = exitCode
	close(disp.done)

	d.hub.Publish(events.TypeDispatchFinished, map[string]any{
		"id":        disp.ID,
		"viewer":    disp.Viewer,
		"exit_code": exitCode,
	})

	if d.store != nil {
		if err := d.store.Complete(context.Background(), disp.ID, exitCode); err != nil {
			d.logger.Warn("failed to complete dispatch record", "dispatch_id", disp.ID, "error", err)
		}
	}
}
