package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/boringdata/boring-ui/internal/artifact"
	"github.com/boringdata/boring-ui/internal/sandbox"
	"github.com/boringdata/boring-ui/internal/store"
)

// Executor drives a provisioning job through the state machine, invoking
// the collaborators at each step and persisting a runtime snapshot on both
// the success and failure paths.
//
// The pipeline is strictly sequential and fail-fast: no step runs after an
// earlier one fails, and a failed job is left in the error state rather
// than rolled back. The executor imposes no timeout of its own on
// collaborator calls; timeout policy belongs to the state machine's step
// budgets, enforced by the sweep, so budgets stay centrally auditable.
type Executor struct {
	jobs     store.JobRepository
	runtime  store.RuntimeMetadataStore
	events   store.TransitionLog
	verifier artifact.Verifier
	provider sandbox.Provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewExecutor wires an executor with its collaborators.
func NewExecutor(
	jobs store.JobRepository,
	runtime store.RuntimeMetadataStore,
	events store.TransitionLog,
	verifier artifact.Verifier,
	provider sandbox.Provider,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		jobs:     jobs,
		runtime:  runtime,
		events:   events,
		verifier: verifier,
		provider: provider,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Execute provisions the workspace described by target, walking its active
// job from queued to ready. Execution failures are reported in the result;
// the returned error is reserved for infrastructure problems (no active
// job, persistence failures) that leave the result meaningless.
func (e *Executor) Execute(ctx context.Context, target Target) (ExecutionResult, error) {
	tracer := otel.Tracer("provision-executor")
	ctx, span := tracer.Start(ctx, "provision_workspace",
		trace.WithAttributes(
			attribute.String("workspace.id", target.WorkspaceID),
			attribute.String("app.id", target.AppID),
			attribute.String("release.id", target.ReleaseID),
			attribute.String("sandbox.name", target.SandboxName),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	job, err := e.jobs.GetActiveForWorkspace(ctx, target.WorkspaceID)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("no active job for workspace %s: %w", target.WorkspaceID, err)
	}
	if job.State != store.JobStateQueued {
		return ExecutionResult{}, fmt.Errorf("job %d is %s, expected %s", job.ID, job.State, store.JobStateQueued)
	}
	span.SetAttributes(attribute.Int64("job.id", job.ID))

	// Step 1: verify the artifact before any sandbox resources are
	// allocated. A bad bundle must never cost a provider call.
	job, err = e.advance(ctx, job)
	if err != nil {
		return ExecutionResult{}, err
	}
	verification, err := e.verifier.Verify(ctx, target.AppID, target.ReleaseID, target.BundleSHA256)
	if err != nil {
		if errors.Is(err, artifact.ErrBundleNotFound) {
			return e.fail(ctx, span, job, target, CodeArtifactNotFound, err.Error())
		}
		return ExecutionResult{}, fmt.Errorf("artifact verification failed: %w", err)
	}
	if !verification.Valid {
		return e.failChecksum(ctx, span, job, target, verification.ActualSHA256)
	}

	// Step 2: create the sandbox.
	job, err = e.advance(ctx, job)
	if err != nil {
		return ExecutionResult{}, err
	}
	if err := e.provider.CreateSandbox(ctx, target.SandboxName); err != nil {
		return e.fail(ctx, span, job, target, CodeSandboxCreationFailed, err.Error())
	}

	// Step 3: upload the verified bundle.
	job, err = e.advance(ctx, job)
	if err != nil {
		return ExecutionResult{}, err
	}
	if err := e.provider.UploadArtifact(ctx, target.SandboxName, verification.BundlePath); err != nil {
		return e.fail(ctx, span, job, target, CodeArtifactUploadFailed, err.Error())
	}

	// Step 4: bootstrap.
	job, err = e.advance(ctx, job)
	if err != nil {
		return ExecutionResult{}, err
	}
	if err := e.provider.Bootstrap(ctx, target.SandboxName); err != nil {
		return e.fail(ctx, span, job, target, CodeBootstrapFailed, err.Error())
	}

	// Step 5: health check.
	job, err = e.advance(ctx, job)
	if err != nil {
		return ExecutionResult{}, err
	}
	if err := e.provider.HealthCheck(ctx, target.SandboxName); err != nil {
		return e.fail(ctx, span, job, target, CodeHealthCheckFailed, err.Error())
	}

	job, err = e.advance(ctx, job)
	if err != nil {
		return ExecutionResult{}, err
	}

	if err := e.runtime.UpsertRuntime(ctx, &store.RuntimeMetadata{
		WorkspaceID:  target.WorkspaceID,
		AppID:        target.AppID,
		State:        string(store.JobStateReady),
		Step:         nil,
		ReleaseID:    target.ReleaseID,
		SandboxName:  target.SandboxName,
		BundleSHA256: target.BundleSHA256,
		UpdatedAt:    e.now(),
	}); err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to upsert runtime snapshot: %w", err)
	}

	e.logger.InfoContext(ctx, "workspace provisioned",
		"workspace_id", target.WorkspaceID, "job_id", job.ID,
		"release_id", target.ReleaseID, "sandbox", target.SandboxName,
		"attempt", job.Attempt)

	return ExecutionResult{Success: true, Job: job}, nil
}

// advance applies one state-machine step and persists it with a
// compare-and-swap on the previous state.
func (e *Executor) advance(ctx context.Context, job *store.ProvisioningJob) (*store.ProvisioningJob, error) {
	from := job.State
	next, err := AdvanceState(*job, e.now())
	if err != nil {
		return nil, err
	}
	updated, err := e.jobs.UpdateJob(ctx, &next, from)
	if err != nil {
		return nil, fmt.Errorf("failed to persist advance %s -> %s for job %d: %w", from, next.State, job.ID, err)
	}
	e.appendEvent(ctx, updated, from, nil, nil)
	return updated, nil
}

func (e *Executor) failChecksum(ctx context.Context, span trace.Span, job *store.ProvisioningJob, target Target, actualSHA256 string) (ExecutionResult, error) {
	from := job.State
	failed, err := TransitionToChecksumMismatch(*job, e.now(), target.BundleSHA256, actualSHA256)
	if err != nil {
		return ExecutionResult{}, err
	}
	return e.persistFailure(ctx, span, &failed, from, target)
}

func (e *Executor) fail(ctx context.Context, span trace.Span, job *store.ProvisioningJob, target Target, code, detail string) (ExecutionResult, error) {
	from := job.State
	failed, err := TransitionToError(*job, e.now(), code, detail)
	if err != nil {
		return ExecutionResult{}, err
	}
	return e.persistFailure(ctx, span, &failed, from, target)
}

func (e *Executor) persistFailure(ctx context.Context, span trace.Span, failed *store.ProvisioningJob, from store.JobState, target Target) (ExecutionResult, error) {
	updated, err := e.jobs.UpdateJob(ctx, failed, from)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to persist error transition for job %d: %w", failed.ID, err)
	}
	e.appendEvent(ctx, updated, from, updated.LastErrorCode, updated.LastErrorDetail)

	step := string(from)
	if err := e.runtime.UpsertRuntime(ctx, &store.RuntimeMetadata{
		WorkspaceID:     target.WorkspaceID,
		AppID:           target.AppID,
		State:           string(store.JobStateError),
		Step:            &step,
		ReleaseID:       target.ReleaseID,
		SandboxName:     target.SandboxName,
		BundleSHA256:    target.BundleSHA256,
		LastErrorCode:   updated.LastErrorCode,
		LastErrorDetail: updated.LastErrorDetail,
		UpdatedAt:       e.now(),
	}); err != nil {
		return ExecutionResult{}, fmt.Errorf("failed to upsert runtime snapshot: %w", err)
	}

	code, detail := "", ""
	if updated.LastErrorCode != nil {
		code = *updated.LastErrorCode
	}
	if updated.LastErrorDetail != nil {
		detail = *updated.LastErrorDetail
	}
	span.SetAttributes(attribute.String("provision.error_code", code))
	e.logger.ErrorContext(ctx, "workspace provisioning failed",
		"workspace_id", target.WorkspaceID, "job_id", updated.ID,
		"step", step, "error_code", code, "error_detail", detail)

	return ExecutionResult{Success: false, Job: updated, ErrorCode: code, ErrorDetail: detail}, nil
}

func (e *Executor) appendEvent(ctx context.Context, job *store.ProvisioningJob, from store.JobState, code, detail *string) {
	if err := e.events.AppendTransition(ctx, &store.TransitionEvent{
		JobID:       job.ID,
		WorkspaceID: job.WorkspaceID,
		FromState:   from,
		ToState:     job.State,
		ErrorCode:   code,
		Detail:      detail,
		OccurredAt:  job.UpdatedAt,
	}); err != nil {
		e.logger.WarnContext(ctx, "failed to record transition event",
			"job_id", job.ID, "from", from, "to", job.State, "error", err)
	}
}
