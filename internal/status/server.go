// Package status serves wall health, per-source state and metrics over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/mmastrac/pi-frame/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// Source is the externally visible state of one wall source.
type Source struct {
	ID          string     `json:"id"`
	Slot        int        `json:"slot"`
	Description string     `json:"description,omitempty"`
	Kind        string     `json:"kind"`
	State       string     `json:"state"`
	Generation  uint64     `json:"generation"`
	Restarts    uint64     `json:"restarts"`
	LastReason  string     `json:"last_reason,omitempty"`
	LastRestart *time.Time `json:"last_restart,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	FPS         float64    `json:"fps"`
	Stable      bool       `json:"stable"`
	LastFrame   *time.Time `json:"last_frame,omitempty"`
}

// Provider supplies the current source states.
type Provider interface {
	Sources() []Source
}

// Server is the status HTTP server.
type Server struct {
	addr     string
	provider Provider
	log      zerolog.Logger
}

// NewServer returns a server that will listen on addr.
func NewServer(addr string, p Provider, logger zerolog.Logger) *Server {
	return &Server{addr: addr, provider: p, log: logger}
}

// Handler returns the router with every endpoint mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sources", s.handleSources)
		r.Get("/sources/{id}", s.handleSource)
	})
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("status: listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("status server listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("status: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status: serve: %w", err)
	}
	return nil
}

type healthResponse struct {
	Status  string            `json:"status"`
	Sources map[string]string `json:"sources"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Sources: make(map[string]string)}
	code := http.StatusOK
	for _, src := range s.provider.Sources() {
		resp.Sources[src.ID] = src.State
		if src.State != "active" {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.provider.Sources())
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, src := range s.provider.Sources() {
		if src.ID == id {
			s.writeJSON(w, http.StatusOK, src)
			return
		}
	}
	s.writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("source %q not found", id)})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug().Err(err).Msg("write response")
	}
}
