// Package server exposes the sync daemon state over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ShutdownTimeout bounds graceful shutdown once the context is done.
const ShutdownTimeout = 5 * time.Second

// Component is anything that reports its state.
type Component interface {
	introspection.Introspectable
	introspection.Component
}

// Server serves GET /healthz and GET /state.
type Server struct {
	logger *slog.Logger
	router chi.Router

	mu         sync.RWMutex
	names      []string
	components map[string]Component
	started    time.Time

	addr net.Addr
}

// New creates a server with no registered components.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		logger:     logger.With("component", "status"),
		components: make(map[string]Component),
		started:    time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.health)
	r.Get("/state", s.state)
	r.Get("/state/{name}", s.componentState)
	s.router = r

	return s
}

// Register exposes c under name. A later registration replaces an earlier one.
func (s *Server) Register(name string, c Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.components[name]; !ok {
		s.names = append(s.names, name)
	}
	s.components[name] = c
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves until ctx is done. It returns once the
// listener is bound.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status server: %w", err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		served := make(chan error, 1)
		go func() { served <- srv.Serve(ln) }()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("status server shutdown failed", "error", err)
				return err
			}
			return nil
		case err := <-served:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			s.logger.Error("status server stopped", "error", err)
			return err
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("status server panic", "error", err)
	}))

	s.logger.Info("status server listening", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	})
}

type componentResponse struct {
	Type  string `json:"type"`
	State any    `json:"state"`
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := make(map[string]componentResponse, len(s.names))
	for _, name := range s.names {
		c := s.components[name]
		out[name] = componentResponse{Type: c.ComponentType(), State: c.State()}
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) componentState(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.RLock()
	c, ok := s.components[name]
	s.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown component " + name})
		return
	}
	writeJSON(w, http.StatusOK, componentResponse{Type: c.ComponentType(), State: c.State()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
