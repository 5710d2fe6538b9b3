// Package api exposes boxhand's dispatch and viewer surface over HTTP so
// editors can integrate without owning the child processes. Serve mode only.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattjoyce/boxhand/internal/dispatch"
	"github.com/mattjoyce/boxhand/internal/events"
	"github.com/mattjoyce/boxhand/internal/history"
	"github.com/mattjoyce/boxhand/internal/viewer"
)

// CommandDispatcher is the dispatch seam; tests stub it.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Dispatch, error)
}

// HistoryReader reads the dispatch log.
type HistoryReader interface {
	Get(ctx context.Context, id string) (*history.Entry, error)
	Recent(ctx context.Context, limit int) ([]*history.Entry, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// Key is the bearer token protecting everything except /healthz.
	Key string
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	dispatcher CommandDispatcher
	viewers    *viewer.Registry
	hub        *events.Hub
	store      HistoryReader
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates an API server. store may be nil when history is disabled.
func New(config Config, dispatcher CommandDispatcher, viewers *viewer.Registry, hub *events.Hub, store HistoryReader, logger *slog.Logger) *Server {
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		viewers:    viewers,
		hub:        hub,
		store:      store,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.routes(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /events streams for as long as the client stays.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/dispatch/{action}", s.handleDispatch)
		r.Get("/dispatches", s.handleListDispatches)
		r.Get("/dispatches/{dispatchID}", s.handleGetDispatch)
		r.Get("/machines", s.handleListMachines)
		r.Get("/viewers", s.handleListViewers)
		r.Get("/viewers/{viewerName}", s.handleGetViewer)
		r.Delete("/viewers", s.handleCloseViewers)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
