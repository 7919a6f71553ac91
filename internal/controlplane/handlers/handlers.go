// Package handlers contains HTTP handlers for the control plane API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/boringdata/boring-ui/internal/provision"
	"github.com/boringdata/boring-ui/internal/store"
	"github.com/boringdata/boring-ui/pkg/api"
)

// StoreFactory combines the interfaces needed for the control plane to function.
type StoreFactory interface {
	Ping(ctx context.Context) error
	store.TenantStore
	store.JobRepository
	store.RuntimeMetadataStore
	store.TransitionLog
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store   StoreFactory
	service *provision.Service
	logger  *slog.Logger
}

// New creates a new Handlers instance with the given dependencies.
func New(s StoreFactory, service *provision.Service, logger *slog.Logger) *Handlers {
	return &Handlers{store: s, service: service, logger: logger}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}
