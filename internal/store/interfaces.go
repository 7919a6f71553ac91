package store

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// ErrActiveJobExists is returned by CreateJob when the workspace already has
// a non-terminal job. Implementations must enforce this atomically with the
// insert, not as a separate read.
var ErrActiveJobExists = errors.New("store: workspace already has an active job")

// ErrStaleJob is returned by UpdateJob when the stored row is no longer in
// the state the caller transitioned from. The caller lost the race and must
// re-read the job.
var ErrStaleJob = errors.New("store: job state changed concurrently")

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// TenantStore handles retrieving tenant information for authentication.
type TenantStore interface {
	// CreateTenant inserts a new tenant to the database.
	CreateTenant(ctx context.Context, tenant *Tenant, hashedKey string) error

	// GetTenantByAPIKeyHash returns a tenant by its API key hash.
	GetTenantByAPIKeyHash(ctx context.Context, hash string) (*Tenant, error)
}

// JobRepository handles the persistence of provisioning jobs.
//
// The single most safety-critical invariant lives here: at most one active
// (non-terminal) job per workspace, enforced atomically by CreateJob.
type JobRepository interface {
	// CreateJob assigns a fresh monotonically increasing id and persists the
	// job. Returns ErrActiveJobExists if the workspace already has an active
	// job and the new job is itself active.
	CreateJob(ctx context.Context, job *ProvisioningJob) (*ProvisioningJob, error)

	// GetJobByID returns a job by its ID.
	GetJobByID(ctx context.Context, id int64) (*ProvisioningJob, error)

	// GetActiveForWorkspace returns the workspace's single non-terminal job,
	// or ErrNotFound.
	GetActiveForWorkspace(ctx context.Context, workspaceID string) (*ProvisioningJob, error)

	// GetByIdempotencyKey returns the existing job for the
	// (workspace, idempotency key) pair, or ErrNotFound.
	GetByIdempotencyKey(ctx context.Context, workspaceID, key string) (*ProvisioningJob, error)

	// GetLatestForWorkspace returns the most recently created job for the
	// workspace regardless of state, or ErrNotFound. Backs post-terminal
	// status lookups.
	GetLatestForWorkspace(ctx context.Context, workspaceID string) (*ProvisioningJob, error)

	// ListQueued returns up to limit jobs in the queued state, oldest first.
	ListQueued(ctx context.Context, limit int) ([]ProvisioningJob, error)

	// ListActive returns every non-terminal job. Used by the timeout sweep.
	ListActive(ctx context.Context) ([]ProvisioningJob, error)

	// UpdateJob persists a state-machine transition. fromState is the state
	// the caller read before transitioning; if the stored row is no longer in
	// that state the update is rejected with ErrStaleJob. This
	// compare-and-swap keeps concurrent executors and the timeout sweep from
	// clobbering each other.
	UpdateJob(ctx context.Context, job *ProvisioningJob, fromState JobState) (*ProvisioningJob, error)
}

// RuntimeMetadataStore holds the per-workspace runtime snapshot.
type RuntimeMetadataStore interface {
	UpsertRuntime(ctx context.Context, meta *RuntimeMetadata) error

	// GetRuntime returns the snapshot for a workspace, or ErrNotFound.
	GetRuntime(ctx context.Context, workspaceID string) (*RuntimeMetadata, error)
}

// TransitionLog records every provisioning state transition in order.
type TransitionLog interface {
	AppendTransition(ctx context.Context, event *TransitionEvent) error

	// ListTransitions returns a workspace's transitions oldest first.
	ListTransitions(ctx context.Context, workspaceID string) ([]TransitionEvent, error)
}
