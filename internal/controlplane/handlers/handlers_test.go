package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/boringdata/boring-ui/internal/controlplane/middleware"
	"github.com/boringdata/boring-ui/internal/provision"
	"github.com/boringdata/boring-ui/internal/store"
	"github.com/boringdata/boring-ui/internal/store/memory"

	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHandlers wires handlers against the in-memory store, the same way
// cmd/controlplane wires them against postgres.
func newTestHandlers(t *testing.T) (*Handlers, *memory.Store) {
	t.Helper()
	mem := memory.New()
	service := provision.NewService(mem, mem, testLogger())
	return New(mem, service, testLogger()), mem
}

// withTenant injects an authenticated tenant, bypassing the auth middleware.
func withTenant(req *http.Request, tenantID uuid.UUID) *http.Request {
	tenant := &store.Tenant{ID: tenantID, Name: "Test Tenant", CreatedAt: time.Now().UTC()}
	ctx := middleware.NewContextWithTenant(req.Context(), tenant)
	return req.WithContext(ctx)
}

// failJob drives an active job to the error state through the state machine
// so a follow-up job is allowed.
func failJob(t *testing.T, mem *memory.Store, job *store.ProvisioningJob) {
	t.Helper()
	now := time.Now().UTC()

	started, err := provision.AdvanceState(*job, now)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := mem.UpdateJob(context.Background(), &started, job.State); err != nil {
		t.Fatalf("update: %v", err)
	}

	failed, err := provision.TransitionToError(started, now, "sandbox_creation_failed", "boom")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if _, err := mem.UpdateJob(context.Background(), &failed, started.State); err != nil {
		t.Fatalf("update: %v", err)
	}
}
