package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/boringdata/boring-ui/internal/store"
)

// ErrIdempotencyKeyRequired is returned when a create or retry request
// carries an empty or whitespace-only idempotency key.
var ErrIdempotencyKeyRequired = errors.New("provision: idempotency key is required")

// ActiveJobConflictError is returned when a workspace already has a
// non-terminal job. Surfaced to clients as HTTP 409; retryable once the
// active job terminates.
type ActiveJobConflictError struct {
	WorkspaceID string
	ActiveJobID int64
}

func (e *ActiveJobConflictError) Error() string {
	return fmt.Sprintf("provision: workspace %s already has active job %d", e.WorkspaceID, e.ActiveJobID)
}

// CreateJobParams carries the caller-supplied fields for a new job.
type CreateJobParams struct {
	WorkspaceID    string
	AppID          string
	ReleaseID      string
	IdempotencyKey string
	CreatedBy      string
	RequestID      string
}

// CreateResult reports whether a new job row was created. Created is false
// when the idempotency key matched an existing job, which is then returned.
type CreateResult struct {
	Created bool
	Job     *store.ProvisioningJob
}

// Service layers idempotency and single-active-job enforcement on top of the
// job repository. The repository itself is the last line of defense
// (atomic check-and-insert); the Service's own active-job check only exists
// to give callers a precise conflict error without burning an insert.
type Service struct {
	jobs   store.JobRepository
	events store.TransitionLog
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a provisioning job service.
func NewService(jobs store.JobRepository, events store.TransitionLog, logger *slog.Logger) *Service {
	return &Service{
		jobs:   jobs,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateProvisioningJob creates a queued job for the workspace.
//
// A repeated call with the same (workspace, idempotency key) returns the
// original job with Created=false, making at-least-once client retries safe.
// If a different active job exists the call fails with
// ActiveJobConflictError.
func (s *Service) CreateProvisioningJob(ctx context.Context, params CreateJobParams) (CreateResult, error) {
	return s.createJob(ctx, params)
}

// RetryProvisioningJob is the operator/user-triggered retry after a terminal
// state. It is a distinct mechanism from the state machine's RetryFromError:
// it creates an entirely new job row (fresh id, attempt 1) scoped by its own
// idempotency key instead of resuming the original attempt counter. It
// requires that the workspace has been provisioned at least once before.
func (s *Service) RetryProvisioningJob(ctx context.Context, params CreateJobParams) (CreateResult, error) {
	prev, err := s.jobs.GetLatestForWorkspace(ctx, params.WorkspaceID)
	if err != nil {
		return CreateResult{}, err
	}
	// Retrying without a release re-runs the last one.
	if params.AppID == "" {
		params.AppID = prev.AppID
	}
	if params.ReleaseID == "" {
		params.ReleaseID = prev.ReleaseID
	}
	return s.createJob(ctx, params)
}

func (s *Service) createJob(ctx context.Context, params CreateJobParams) (CreateResult, error) {
	key := strings.TrimSpace(params.IdempotencyKey)
	if key == "" {
		return CreateResult{}, ErrIdempotencyKeyRequired
	}

	existing, err := s.jobs.GetByIdempotencyKey(ctx, params.WorkspaceID, key)
	if err == nil {
		return CreateResult{Created: false, Job: existing}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return CreateResult{}, err
	}

	if active, err := s.jobs.GetActiveForWorkspace(ctx, params.WorkspaceID); err == nil {
		return CreateResult{}, &ActiveJobConflictError{WorkspaceID: params.WorkspaceID, ActiveJobID: active.ID}
	} else if !errors.Is(err, store.ErrNotFound) {
		return CreateResult{}, err
	}

	now := s.now()
	job, err := NewQueuedJob(params.WorkspaceID, 1, now)
	if err != nil {
		return CreateResult{}, err
	}
	job.AppID = params.AppID
	job.ReleaseID = params.ReleaseID
	job.IdempotencyKey = key
	job.CreatedBy = params.CreatedBy
	job.RequestID = params.RequestID

	created, err := s.jobs.CreateJob(ctx, &job)
	if errors.Is(err, store.ErrActiveJobExists) {
		// Lost the race between our check and the insert; report the winner.
		active, lookupErr := s.jobs.GetActiveForWorkspace(ctx, params.WorkspaceID)
		if lookupErr != nil {
			return CreateResult{}, &ActiveJobConflictError{WorkspaceID: params.WorkspaceID}
		}
		return CreateResult{}, &ActiveJobConflictError{WorkspaceID: params.WorkspaceID, ActiveJobID: active.ID}
	}
	if err != nil {
		return CreateResult{}, err
	}

	if err := s.events.AppendTransition(ctx, &store.TransitionEvent{
		JobID:       created.ID,
		WorkspaceID: created.WorkspaceID,
		FromState:   "",
		ToState:     store.JobStateQueued,
		OccurredAt:  now,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to record queued transition",
			"workspace_id", created.WorkspaceID, "job_id", created.ID, "error", err)
	}

	s.logger.InfoContext(ctx, "provisioning job queued",
		"workspace_id", created.WorkspaceID, "job_id", created.ID,
		"release_id", created.ReleaseID, "created_by", created.CreatedBy)

	return CreateResult{Created: true, Job: created}, nil
}
