// Package controlplane contains the HTTP API of the workspace control plane.
package controlplane

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/boringdata/boring-ui/internal/controlplane/handlers"
	"github.com/boringdata/boring-ui/internal/controlplane/middleware"
	"github.com/boringdata/boring-ui/internal/provision"
)

// Server is the HTTP server for the control plane API.
type Server struct {
	httpServer *http.Server
}

// New creates a new control plane server. metricsHandler may be nil when
// metrics are not exposed.
func New(addr string, store handlers.StoreFactory, service *provision.Service, metricsHandler http.Handler, logger *slog.Logger) *Server {
	h := handlers.New(store, service, logger)
	authMW := middleware.AuthMiddleware(store)
	rateMW := middleware.RateLimitMiddleware()

	authed := func(hf http.HandlerFunc) http.Handler {
		return authMW(rateMW(hf))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	mux.HandleFunc("POST /api/v1/tenants", h.CreateTenant)

	// Public authenticated apis
	mux.Handle("POST /api/v1/workspaces/{id}/provision", authed(h.Provision))
	mux.Handle("POST /api/v1/workspaces/{id}/retry", authed(h.Retry))
	mux.Handle("GET /api/v1/workspaces/{id}/runtime", authed(h.Runtime))
	mux.Handle("GET /api/v1/workspaces/{id}/provision/events", authed(h.Events))

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
