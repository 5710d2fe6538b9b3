package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mattjoyce/boxhand/internal/dispatch"
	"github.com/mattjoyce/boxhand/internal/history"
	"github.com/mattjoyce/boxhand/internal/project"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		OpenViewers:   len(s.viewers.List()),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleDispatch handles POST /dispatch/{action}. Fire-and-forget: the
// response acknowledges the spawn, never the outcome.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")

	var req DispatchRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	disp, err := s.dispatcher.Dispatch(r.Context(), dispatch.Request{
		Action:  action,
		Dir:     req.Dir,
		Options: req.Options,
		Args:    req.Args,
		Machine: req.Machine,
	})
	if err != nil {
		var notFound *project.RootNotFoundError
		switch {
		case errors.As(err, &notFound):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	s.writeJSON(w, http.StatusAccepted, DispatchResponse{
		ID:      disp.ID,
		Viewer:  disp.Viewer,
		Command: disp.Command,
		Root:    disp.Root,
	})
}

// handleListDispatches handles GET /dispatches?limit=N.
func (s *Server) handleListDispatches(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list dispatches", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list dispatches")
		return
	}

	out := make([]DispatchInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, toDispatchInfo(e))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleGetDispatch handles GET /dispatches/{dispatchID}.
func (s *Server) handleGetDispatch(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	entry, err := s.store.Get(r.Context(), chi.URLParam(r, "dispatchID"))
	if err != nil {
		s.logger.Error("failed to get dispatch", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get dispatch")
		return
	}
	if entry == nil {
		s.writeError(w, http.StatusNotFound, "dispatch not found")
		return
	}
	s.writeJSON(w, http.StatusOK, toDispatchInfo(entry))
}

// handleListMachines handles GET /machines?dir=. Editors use it to build
// their own machine prompt before dispatching.
func (s *Server) handleListMachines(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		s.writeError(w, http.StatusBadRequest, "dir query parameter is required")
		return
	}

	root, err := project.FindRoot(dir, "")
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}

	machines, err := project.ListMachines(root)
	if err != nil {
		s.logger.Error("failed to list machines", "root", root, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list machines")
		return
	}
	if machines == nil {
		machines = []string{}
	}
	s.writeJSON(w, http.StatusOK, MachinesResponse{Root: root, Machines: machines})
}

// handleListViewers handles GET /viewers.
func (s *Server) handleListViewers(w http.ResponseWriter, r *http.Request) {
	open := s.viewers.List()
	out := make([]ViewerSummary, 0, len(open))
	for _, v := range open {
		out = append(out, ViewerSummary{
			Name:       v.Name(),
			Attached:   v.Attached(),
			TotalLines: v.TotalLines(),
			CreatedAt:  v.CreatedAt(),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleGetViewer handles GET /viewers/{viewerName}.
func (s *Server) handleGetViewer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "viewerName")
	v, ok := s.viewers.Get(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "viewer not found")
		return
	}
	s.writeJSON(w, http.StatusOK, ViewerOutput{
		Name:     v.Name(),
		Attached: v.Attached(),
		Lines:    v.Snapshot(),
	})
}

// handleCloseViewers handles DELETE /viewers?mode=all|idle.
func (s *Server) handleCloseViewers(w http.ResponseWriter, r *http.Request) {
	var closed int
	switch mode := r.URL.Query().Get("mode"); mode {
	case "all":
		closed = s.viewers.CloseAll()
	case "idle", "":
		closed = s.viewers.CloseIdle()
	default:
		s.writeError(w, http.StatusBadRequest, "mode must be all or idle")
		return
	}
	s.writeJSON(w, http.StatusOK, CloseViewersResponse{Closed: closed})
}

func toDispatchInfo(e *history.Entry) DispatchInfo {
	return DispatchInfo{
		ID:         e.ID,
		ProjectID:  e.ProjectID,
		Root:       e.Root,
		Action:     e.Action,
		Command:    e.Command,
		Machine:    e.Machine,
		Viewer:     e.Viewer,
		Status:     string(e.Status),
		ExitCode:   e.ExitCode,
		StartedAt:  e.StartedAt,
		FinishedAt: e.FinishedAt,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
