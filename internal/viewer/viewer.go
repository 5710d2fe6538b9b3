// Package viewer implements named output buffers for dispatched commands.
// A viewer is the editor-facing surface a child process's stdout/stderr
// streams into; boxhand never interprets what lands here.
package viewer

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// NamePrefix identifies viewers owned by this tool. Housekeeping only ever
// touches viewers whose name carries this prefix.
const NamePrefix = "vagrant:"

// Name builds the canonical viewer name for a dispatch. Every dispatch gets
// its own viewer, so concurrent output never interleaves.
func Name(action, dispatchID string) string {
	short := dispatchID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s%s:%s", NamePrefix, action, short)
}

// Viewer is a bounded line buffer with an attached-process flag.
type Viewer struct {
	name      string
	createdAt time.Time

	mu       sync.Mutex
	lines    []string
	start    int
	size     int
	attached bool
	total    int64
}

func newViewer(name string, ringLines int) *Viewer {
	if ringLines <= 0 {
		ringLines = 2000
	}
	return &Viewer{
		name:      name,
		createdAt: time.Now().UTC(),
		lines:     make([]string, ringLines),
	}
}

func (v *Viewer) Name() string { return v.name }

func (v *Viewer) CreatedAt() time.Time { return v.createdAt }

// Append adds one output line, evicting the oldest once the ring is full.
func (v *Viewer) Append(line string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.total++
	if v.size < len(v.lines) {
		v.lines[(v.start+v.size)%len(v.lines)] = line
		v.size++
		return
	}
	v.lines[v.start] = line
	v.start = (v.start + 1) % len(v.lines)
}

// Snapshot returns the retained lines, oldest first.
func (v *Viewer) Snapshot() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]string, 0, v.size)
	for i := 0; i < v.size; i++ {
		out = append(out, v.lines[(v.start+i)%len(v.lines)])
	}
	return out
}

// TotalLines reports how many lines were ever appended, including evicted ones.
func (v *Viewer) TotalLines() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.total
}

// Attach marks a running process as bound to this viewer.
func (v *Viewer) Attach() {
	v.mu.Lock()
	v.attached = true
	v.mu.Unlock()
}

// Detach clears the running-process mark once the child exits.
func (v *Viewer) Detach() {
	v.mu.Lock()
	v.attached = false
	v.mu.Unlock()
}

// Attached reports whether a running process is bound to this viewer.
func (v *Viewer) Attached() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.attached
}

// Registry tracks open viewers by name.
type Registry struct {
	mu        sync.Mutex
	viewers   map[string]*Viewer
	ringLines int
	notify    func(event string, name string)
}

// NewRegistry creates a Registry. notify, if non-nil, is called outside the
// registry lock whenever a viewer opens or closes.
func NewRegistry(ringLines int, notify func(event, name string)) *Registry {
	return &Registry{
		viewers:   make(map[string]*Viewer),
		ringLines: ringLines,
		notify:    notify,
	}
}

// Open returns the viewer with the given name, creating it if needed.
func (r *Registry) Open(name string) *Viewer {
	r.mu.Lock()
	v, ok := r.viewers[name]
	if !ok {
		v = newViewer(name, r.ringLines)
		r.viewers[name] = v
	}
	r.mu.Unlock()

	if !ok && r.notify != nil {
		r.notify("opened", name)
	}
	return v
}

// Get looks up an open viewer.
func (r *Registry) Get(name string) (*Viewer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.viewers[name]
	return v, ok
}

// List returns open viewers sorted by creation time, oldest first.
func (r *Registry) List() []*Viewer {
	r.mu.Lock()
	out := make([]*Viewer, 0, len(r.viewers))
	for _, v := range r.viewers {
		out = append(out, v)
	}
	r.mu.Unlock()

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].createdAt.Before(out[j-1].createdAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Close removes a single viewer by name.
func (r *Registry) Close(name string) bool {
	r.mu.Lock()
	_, ok := r.viewers[name]
	delete(r.viewers, name)
	r.mu.Unlock()

	if ok && r.notify != nil {
		r.notify("closed", name)
	}
	return ok
}

// CloseAll closes every tool-owned viewer and returns how many were closed.
func (r *Registry) CloseAll() int {
	return r.closeWhere(func(v *Viewer) bool { return true })
}

// CloseIdle closes tool-owned viewers with no attached running process and
// returns how many were closed. Viewers with live processes are untouched.
func (r *Registry) CloseIdle() int {
	return r.closeWhere(func(v *Viewer) bool { return !v.Attached() })
}

func (r *Registry) closeWhere(pred func(*Viewer) bool) int {
	r.mu.Lock()
	var closed []string
	for name, v := range r.viewers {
		if !strings.HasPrefix(name, NamePrefix) {
			continue
		}
		if pred(v) {
			closed = append(closed, name)
		}
	}
	for _, name := range closed {
		delete(r.viewers, name)
	}
	r.mu.Unlock()

	if r.notify != nil {
		for _, name := range closed {
			r.notify("closed", name)
		}
	}
	return len(closed)
}
