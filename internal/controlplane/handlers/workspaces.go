package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boringdata/boring-ui/internal/controlplane/middleware"
	"github.com/boringdata/boring-ui/internal/provision"
	"github.com/boringdata/boring-ui/internal/store"
	"github.com/boringdata/boring-ui/pkg/api"

	"github.com/google/uuid"
)

// Provision handles POST /api/v1/workspaces/{id}/provision.
// It queues a provisioning job for the workspace. Repeating the request with
// the same idempotency key returns the original job with a 200 instead of 201.
func (h *Handlers) Provision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workspaceID := r.PathValue("id")
	if workspaceID == "" {
		h.httpError(w, "Workspace id is required", http.StatusBadRequest)
		return
	}

	var req api.ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.AppID == "" || req.ReleaseID == "" {
		h.httpError(w, "app_id and release_id are required", http.StatusBadRequest)
		return
	}

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result, err := h.service.CreateProvisioningJob(ctx, provision.CreateJobParams{
		WorkspaceID:    workspaceID,
		AppID:          req.AppID,
		ReleaseID:      req.ReleaseID,
		IdempotencyKey: req.IdempotencyKey,
		CreatedBy:      tenant.ID.String(),
		RequestID:      requestID(r),
	})
	if err != nil {
		h.provisionError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	h.respondJson(w, status, provisionResponse(result))
}

// Retry handles POST /api/v1/workspaces/{id}/retry.
// It queues a fresh provisioning job after a terminal failure, re-running the
// workspace's last release. Requires that the workspace has a prior job.
func (h *Handlers) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workspaceID := r.PathValue("id")
	if workspaceID == "" {
		h.httpError(w, "Workspace id is required", http.StatusBadRequest)
		return
	}

	var req api.RetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result, err := h.service.RetryProvisioningJob(ctx, provision.CreateJobParams{
		WorkspaceID:    workspaceID,
		IdempotencyKey: req.IdempotencyKey,
		CreatedBy:      tenant.ID.String(),
		RequestID:      requestID(r),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Workspace has no provisioning history", http.StatusNotFound)
			return
		}
		h.provisionError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	h.respondJson(w, status, provisionResponse(result))
}

// Runtime handles GET /api/v1/workspaces/{id}/runtime.
// It reports the workspace's latest job together with the runtime snapshot.
func (h *Handlers) Runtime(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workspaceID := r.PathValue("id")
	if workspaceID == "" {
		h.httpError(w, "Workspace id is required", http.StatusBadRequest)
		return
	}

	job, err := h.store.GetLatestForWorkspace(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Workspace not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	resp := api.RuntimeStatusResponse{
		WorkspaceID:     job.WorkspaceID,
		State:           string(job.State),
		Attempt:         job.Attempt,
		RequestID:       job.RequestID,
		ReleaseID:       job.ReleaseID,
		LastErrorCode:   job.LastErrorCode,
		LastErrorDetail: job.LastErrorDetail,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
		CreatedAt:       job.CreatedAt,
	}

	// The snapshot carries sandbox details the job row doesn't have.
	// It may not exist yet for a job that hasn't been picked up.
	if meta, err := h.store.GetRuntime(ctx, workspaceID); err == nil {
		resp.Step = meta.Step
		resp.SandboxName = meta.SandboxName
	} else if !errors.Is(err, store.ErrNotFound) {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, resp)
}

// Events handles GET /api/v1/workspaces/{id}/provision/events.
// It returns the workspace's full transition history, oldest first.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workspaceID := r.PathValue("id")
	if workspaceID == "" {
		h.httpError(w, "Workspace id is required", http.StatusBadRequest)
		return
	}

	events, err := h.store.ListTransitions(ctx, workspaceID)
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	resp := api.ProvisionEventsResponse{Events: make([]api.ProvisionEvent, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, api.ProvisionEvent{
			ID:         e.ID,
			JobID:      e.JobID,
			FromState:  string(e.FromState),
			ToState:    string(e.ToState),
			ErrorCode:  e.ErrorCode,
			Detail:     e.Detail,
			OccurredAt: e.OccurredAt,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}

// provisionError maps service errors to HTTP status codes.
func (h *Handlers) provisionError(w http.ResponseWriter, err error) {
	var conflict *provision.ActiveJobConflictError
	switch {
	case errors.Is(err, provision.ErrIdempotencyKeyRequired):
		h.httpError(w, "idempotency_key is required", http.StatusBadRequest)
	case errors.As(err, &conflict):
		h.httpError(w, conflict.Error(), http.StatusConflict)
	default:
		h.httpError(w, "Failed to create provisioning job", http.StatusInternalServerError)
	}
}

func provisionResponse(result provision.CreateResult) api.ProvisionResponse {
	return api.ProvisionResponse{
		JobID:       result.Job.ID,
		WorkspaceID: result.Job.WorkspaceID,
		State:       string(result.Job.State),
		Attempt:     result.Job.Attempt,
		Created:     result.Created,
	}
}

// requestID returns the caller-supplied correlation ID, generating one when absent.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.New().String()
}
