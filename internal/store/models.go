// Package store contains the database layer for the workspace control plane.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents a tenant in the multi-tenant system.
// All operations must be scoped by TenantID.
type Tenant struct {
	ID             uuid.UUID
	Name           string
	RateLimit      int // requests per second, 0 = unlimited
	RateLimitBurst int
	CreatedAt      time.Time
}

// JobState represents the state of a provisioning job.
type JobState string

const (
	JobStateQueued            JobState = "queued"
	JobStateReleaseResolve    JobState = "release_resolve"
	JobStateCreatingSandbox   JobState = "creating_sandbox"
	JobStateUploadingArtifact JobState = "uploading_artifact"
	JobStateBootstrapping     JobState = "bootstrapping"
	JobStateHealthCheck       JobState = "health_check"
	JobStateReady             JobState = "ready"
	JobStateError             JobState = "error"
)

// Terminal reports whether the state is one of the two end states.
func (s JobState) Terminal() bool {
	return s == JobStateReady || s == JobStateError
}

// Active reports whether a job in this state still occupies the
// workspace's single active-job slot. Queued jobs are active.
func (s JobState) Active() bool {
	return !s.Terminal()
}

// ProvisioningJob is one provisioning attempt for a workspace.
//
// Jobs are never deleted; they form an append-only audit trail. A job is
// created in JobStateQueued and every subsequent change is produced by a
// pure state-machine function returning a new value, persisted by the
// caller. StartedAt is the time the job entered its current step, which is
// what the step-timeout sweep measures against.
type ProvisioningJob struct {
	ID             int64
	WorkspaceID    string
	AppID          string
	ReleaseID      string
	State          JobState
	Attempt        int
	IdempotencyKey string
	RequestID      string
	CreatedBy      string

	// Set iff State == JobStateError.
	LastErrorCode   *string
	LastErrorDetail *string

	StartedAt  *time.Time
	FinishedAt *time.Time // set iff State is terminal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RuntimeMetadata is the per-workspace runtime snapshot, upserted by the
// executor and the timeout sweep. One row per workspace.
type RuntimeMetadata struct {
	WorkspaceID     string
	AppID           string
	State           string
	Step            *string // mirrors the job state; nil once ready
	ReleaseID       string
	SandboxName     string
	BundleSHA256    string
	LastErrorCode   *string
	LastErrorDetail *string
	UpdatedAt       time.Time
}

// TransitionEvent is one entry in the ordered provisioning transition log.
type TransitionEvent struct {
	ID          int64
	JobID       int64
	WorkspaceID string
	FromState   JobState
	ToState     JobState
	ErrorCode   *string
	Detail      *string
	OccurredAt  time.Time
}
