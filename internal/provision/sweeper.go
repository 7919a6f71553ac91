package provision

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/boringdata/boring-ui/internal/store"
)

// Sweeper periodically applies the per-step timeout budgets to every active
// job, forcing stuck steps to error. ApplyStepTimeout itself is pure; the
// sweeper owns persisting the resulting transitions and runtime snapshots.
type Sweeper struct {
	jobs     store.JobRepository
	runtime  store.RuntimeMetadataStore
	events   store.TransitionLog
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper creates a timeout sweeper. A non-positive interval defaults to
// 30 seconds.
func NewSweeper(jobs store.JobRepository, runtime store.RuntimeMetadataStore, events store.TransitionLog, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		jobs:     jobs,
		runtime:  runtime,
		events:   events,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			timedOut, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "timeout sweep failed", "error", err)
				continue
			}
			if timedOut > 0 {
				s.logger.InfoContext(ctx, "timeout sweep forced jobs to error", "count", timedOut)
			}
		}
	}
}

// SweepOnce applies the step-timeout check to every active job and persists
// any resulting transitions. Returns the number of jobs forced to error.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	active, err := s.jobs.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	timedOut := 0
	for i := range active {
		job := active[i]
		failed, changed, err := ApplyStepTimeout(job, now)
		if err != nil {
			return timedOut, err
		}
		if !changed {
			continue
		}

		updated, err := s.jobs.UpdateJob(ctx, &failed, job.State)
		if errors.Is(err, store.ErrStaleJob) {
			// The executor moved the job on between our read and the
			// update; the step is no longer stuck.
			continue
		}
		if err != nil {
			return timedOut, err
		}
		timedOut++

		if err := s.events.AppendTransition(ctx, &store.TransitionEvent{
			JobID:       updated.ID,
			WorkspaceID: updated.WorkspaceID,
			FromState:   job.State,
			ToState:     updated.State,
			ErrorCode:   updated.LastErrorCode,
			Detail:      updated.LastErrorDetail,
			OccurredAt:  now,
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to record timeout transition",
				"job_id", updated.ID, "error", err)
		}

		s.upsertTimeoutSnapshot(ctx, updated, job.State, now)

		s.logger.WarnContext(ctx, "job step timed out",
			"workspace_id", updated.WorkspaceID, "job_id", updated.ID,
			"step", job.State)
	}
	return timedOut, nil
}

// upsertTimeoutSnapshot marks the workspace runtime as errored, keeping the
// release fields from the existing snapshot when one exists.
func (s *Sweeper) upsertTimeoutSnapshot(ctx context.Context, job *store.ProvisioningJob, step store.JobState, now time.Time) {
	meta := &store.RuntimeMetadata{
		WorkspaceID: job.WorkspaceID,
		AppID:       job.AppID,
		ReleaseID:   job.ReleaseID,
	}
	if existing, err := s.runtime.GetRuntime(ctx, job.WorkspaceID); err == nil {
		meta = existing
	}
	stepName := string(step)
	meta.State = string(store.JobStateError)
	meta.Step = &stepName
	meta.LastErrorCode = job.LastErrorCode
	meta.LastErrorDetail = job.LastErrorDetail
	meta.UpdatedAt = now

	if err := s.runtime.UpsertRuntime(ctx, meta); err != nil {
		s.logger.WarnContext(ctx, "failed to upsert runtime snapshot after timeout",
			"workspace_id", job.WorkspaceID, "error", err)
	}
}
