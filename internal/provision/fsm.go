// Package provision implements the workspace provisioning engine: the job
// state machine, the idempotent job service, and the job executor.
package provision

import (
	"errors"
	"fmt"
	"time"

	"github.com/boringdata/boring-ui/internal/store"
)

// Error codes persisted on failed jobs and runtime snapshots. The uppercase
// codes require operator intervention before a retry can succeed.
const (
	CodeChecksumMismatch      = "ARTIFACT_CHECKSUM_MISMATCH"
	CodeStepTimeout           = "STEP_TIMEOUT"
	CodeArtifactNotFound      = "artifact_not_found"
	CodeSandboxCreationFailed = "sandbox_creation_failed"
	CodeArtifactUploadFailed  = "artifact_upload_failed"
	CodeBootstrapFailed       = "bootstrap_failed"
	CodeHealthCheckFailed     = "health_check_failed"
)

// ErrTimestampNotUTC rejects clock inputs that are zero or not normalized to
// UTC. Every timestamp in the engine is UTC; a local-zone time slipping in
// would silently skew the step-timeout arithmetic.
var ErrTimestampNotUTC = errors.New("provision: timestamp must be a non-zero UTC time")

// ErrInvalidAttempt is returned when a job would be created with attempt < 1.
var ErrInvalidAttempt = errors.New("provision: attempt must be >= 1")

// InvalidStateTransitionError is returned when an operation is applied to a
// job whose state does not admit it.
type InvalidStateTransitionError struct {
	Op   string
	From store.JobState
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("provision: cannot %s from state %q", e.Op, e.From)
}

// successor is the single deterministic forward path. error is reachable
// only via TransitionToError, and only from the five states strictly
// between queued and ready.
var successor = map[store.JobState]store.JobState{
	store.JobStateQueued:            store.JobStateReleaseResolve,
	store.JobStateReleaseResolve:    store.JobStateCreatingSandbox,
	store.JobStateCreatingSandbox:   store.JobStateUploadingArtifact,
	store.JobStateUploadingArtifact: store.JobStateBootstrapping,
	store.JobStateBootstrapping:     store.JobStateHealthCheck,
	store.JobStateHealthCheck:       store.JobStateReady,
}

// stepTimeouts is the per-step timeout budget applied by the sweep. Keyed by
// the active steps only; queued and terminal states have no budget.
var stepTimeouts = map[store.JobState]time.Duration{
	store.JobStateReleaseResolve:    1 * time.Minute,
	store.JobStateCreatingSandbox:   3 * time.Minute,
	store.JobStateUploadingArtifact: 5 * time.Minute,
	store.JobStateBootstrapping:     10 * time.Minute,
	store.JobStateHealthCheck:       2 * time.Minute,
}

// StepTimeout returns the timeout budget for a step and whether one exists.
func StepTimeout(state store.JobState) (time.Duration, bool) {
	d, ok := stepTimeouts[state]
	return d, ok
}

func validateNow(now time.Time) error {
	if now.IsZero() || now.Location() != time.UTC {
		return ErrTimestampNotUTC
	}
	return nil
}

// failable reports whether TransitionToError is valid from this state:
// any of the five active steps, but not queued and not a terminal state.
func failable(state store.JobState) bool {
	_, ok := stepTimeouts[state]
	return ok
}

// NewQueuedJob returns a fresh job in the queued state. The repository
// assigns the id on insert.
func NewQueuedJob(workspaceID string, attempt int, now time.Time) (store.ProvisioningJob, error) {
	if err := validateNow(now); err != nil {
		return store.ProvisioningJob{}, err
	}
	if attempt < 1 {
		return store.ProvisioningJob{}, ErrInvalidAttempt
	}
	return store.ProvisioningJob{
		WorkspaceID: workspaceID,
		State:       store.JobStateQueued,
		Attempt:     attempt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// AdvanceState moves the job to its single fixed successor state. Entering a
// step records the step's start time; entering ready records FinishedAt.
func AdvanceState(job store.ProvisioningJob, now time.Time) (store.ProvisioningJob, error) {
	if err := validateNow(now); err != nil {
		return store.ProvisioningJob{}, err
	}
	next, ok := successor[job.State]
	if !ok {
		return store.ProvisioningJob{}, &InvalidStateTransitionError{Op: "advance", From: job.State}
	}
	job.State = next
	job.UpdatedAt = now
	if next == store.JobStateReady {
		finished := now
		job.FinishedAt = &finished
	} else {
		started := now
		job.StartedAt = &started
	}
	return job, nil
}

// TransitionToError fails the job with a classified error code. Valid only
// from an active step: a queued job must advance at least once before it can
// fail, and terminal jobs stay terminal.
func TransitionToError(job store.ProvisioningJob, now time.Time, errorCode, errorDetail string) (store.ProvisioningJob, error) {
	if err := validateNow(now); err != nil {
		return store.ProvisioningJob{}, err
	}
	if !failable(job.State) {
		return store.ProvisioningJob{}, &InvalidStateTransitionError{Op: "fail", From: job.State}
	}
	job.State = store.JobStateError
	job.LastErrorCode = &errorCode
	job.LastErrorDetail = &errorDetail
	finished := now
	job.FinishedAt = &finished
	job.UpdatedAt = now
	return job, nil
}

// checksumPrefixLen is how many hash characters the mismatch detail keeps.
const checksumPrefixLen = 12

func truncateHash(h string) string {
	if len(h) > checksumPrefixLen {
		return h[:checksumPrefixLen]
	}
	return h
}

// FormatChecksumMismatchDetail builds the detail string for a bundle
// checksum failure. The literal word "mismatch" is load-bearing: alerting
// greps for it.
func FormatChecksumMismatchDetail(expectedSHA256, actualSHA256 string) string {
	return fmt.Sprintf("bundle sha256 mismatch: expected %s got %s",
		truncateHash(expectedSHA256), truncateHash(actualSHA256))
}

// TransitionToChecksumMismatch fails the job with the fixed checksum error
// code and a machine-greppable detail embedding both hash prefixes.
func TransitionToChecksumMismatch(job store.ProvisioningJob, now time.Time, expectedSHA256, actualSHA256 string) (store.ProvisioningJob, error) {
	return TransitionToError(job, now, CodeChecksumMismatch, FormatChecksumMismatchDetail(expectedSHA256, actualSHA256))
}

// RetryFromError reincarnates a failed job: back to queued with the attempt
// counter incremented and the error fields cleared.
func RetryFromError(job store.ProvisioningJob, now time.Time) (store.ProvisioningJob, error) {
	if err := validateNow(now); err != nil {
		return store.ProvisioningJob{}, err
	}
	if job.State != store.JobStateError {
		return store.ProvisioningJob{}, &InvalidStateTransitionError{Op: "retry", From: job.State}
	}
	job.State = store.JobStateQueued
	job.Attempt++
	job.LastErrorCode = nil
	job.LastErrorDetail = nil
	job.StartedAt = nil
	job.FinishedAt = nil
	job.UpdatedAt = now
	return job, nil
}

// ApplyStepTimeout forces a job to error when it has sat on its current step
// longer than the step's budget. It is pure and idempotent: queued jobs,
// terminal jobs, and jobs within budget come back unchanged, so the periodic
// sweep can call it on every job unconditionally. The second return value
// reports whether the job transitioned.
func ApplyStepTimeout(job store.ProvisioningJob, now time.Time) (store.ProvisioningJob, bool, error) {
	if err := validateNow(now); err != nil {
		return store.ProvisioningJob{}, false, err
	}
	budget, ok := stepTimeouts[job.State]
	if !ok || job.StartedAt == nil {
		return job, false, nil
	}
	if now.Sub(*job.StartedAt) <= budget {
		return job, false, nil
	}
	detail := fmt.Sprintf("step %s exceeded its %s timeout budget", job.State, budget)
	failed, err := TransitionToError(job, now, CodeStepTimeout, detail)
	if err != nil {
		return store.ProvisioningJob{}, false, err
	}
	return failed, true, nil
}
