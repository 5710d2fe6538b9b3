package api

import "time"

// DispatchRequest is the body of POST /dispatch/{action}.
type DispatchRequest struct {
	// Dir is the directory root resolution starts from. Required for
	// scoped actions: the daemon's own cwd is meaningless to an editor.
	Dir     string   `json:"dir,omitempty"`
	Options string   `json:"options,omitempty"`
	Args    []string `json:"args,omitempty"`
	// Machine pins the target machine. The API never prompts; editors
	// list machines first and send the chosen name.
	Machine string `json:"machine,omitempty"`
}

// DispatchResponse acknowledges a spawned dispatch.
type DispatchResponse struct {
	ID      string `json:"id"`
	Viewer  string `json:"viewer"`
	Command string `json:"command"`
	Root    string `json:"root"`
}

// DispatchInfo is one history entry on the wire.
type DispatchInfo struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	Root       string     `json:"root"`
	Action     string     `json:"action"`
	Command    string     `json:"command"`
	Machine    string     `json:"machine,omitempty"`
	Viewer     string     `json:"viewer"`
	Status     string     `json:"status"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// MachinesResponse lists a project's machines.
type MachinesResponse struct {
	Root     string   `json:"root"`
	Machines []string `json:"machines"`
}

// ViewerSummary is one open viewer in GET /viewers.
type ViewerSummary struct {
	Name       string    `json:"name"`
	Attached   bool      `json:"attached"`
	TotalLines int64     `json:"total_lines"`
	CreatedAt  time.Time `json:"created_at"`
}

// ViewerOutput is a snapshot of one viewer's retained lines.
type ViewerOutput struct {
	Name     string   `json:"name"`
	Attached bool     `json:"attached"`
	Lines    []string `json:"lines"`
}

// CloseViewersResponse reports housekeeping results.
type CloseViewersResponse struct {
	Closed int `json:"closed"`
}

// HealthzResponse is the unauthenticated health snapshot.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	OpenViewers   int    `json:"open_viewers"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
