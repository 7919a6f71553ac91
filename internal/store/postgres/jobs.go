package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/boringdata/boring-ui/internal/store"
)

const jobColumns = `id, workspace_id, app_id, release_id, state, attempt,
	idempotency_key, request_id, created_by, last_error_code, last_error_detail,
	started_at, finished_at, created_at, updated_at`

// uniqueViolation is the postgres error code raised by the partial unique
// index over active jobs.
const uniqueViolation = "23505"

func scanJob(row interface {
	Scan(dest ...interface{}) error
}) (*store.ProvisioningJob, error) {
	var job store.ProvisioningJob
	err := row.Scan(
		&job.ID, &job.WorkspaceID, &job.AppID, &job.ReleaseID,
		&job.State, &job.Attempt,
		&job.IdempotencyKey, &job.RequestID, &job.CreatedBy,
		&job.LastErrorCode, &job.LastErrorDetail,
		&job.StartedAt, &job.FinishedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJob inserts the job and lets the database assign the id. The
// partial unique index uq_jobs_active_workspace closes the race window
// between concurrent creators: a check-then-insert at the service layer is
// advisory only.
func (s *Store) CreateJob(ctx context.Context, job *store.ProvisioningJob) (*store.ProvisioningJob, error) {
	query := `
		INSERT INTO provisioning_jobs
			(workspace_id, app_id, release_id, state, attempt,
			 idempotency_key, request_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	stored := *job
	err := s.db.QueryRowContext(ctx, query,
		job.WorkspaceID, job.AppID, job.ReleaseID, job.State, job.Attempt,
		job.IdempotencyKey, job.RequestID, job.CreatedBy, job.CreatedAt, job.UpdatedAt,
	).Scan(&stored.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, store.ErrActiveJobExists
		}
		return nil, fmt.Errorf("failed to insert provisioning job: %w", err)
	}

	return &stored, nil
}

func (s *Store) GetJobByID(ctx context.Context, id int64) (*store.ProvisioningJob, error) {
	query := fmt.Sprintf("SELECT %s FROM provisioning_jobs WHERE id = $1", jobColumns)
	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return job, err
}

func (s *Store) GetActiveForWorkspace(ctx context.Context, workspaceID string) (*store.ProvisioningJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM provisioning_jobs
		WHERE workspace_id = $1 AND state NOT IN ('ready', 'error')
	`, jobColumns)
	job, err := scanJob(s.db.QueryRowContext(ctx, query, workspaceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return job, err
}

func (s *Store) GetByIdempotencyKey(ctx context.Context, workspaceID, key string) (*store.ProvisioningJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM provisioning_jobs
		WHERE workspace_id = $1 AND idempotency_key = $2
	`, jobColumns)
	job, err := scanJob(s.db.QueryRowContext(ctx, query, workspaceID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return job, err
}

func (s *Store) GetLatestForWorkspace(ctx context.Context, workspaceID string) (*store.ProvisioningJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM provisioning_jobs
		WHERE workspace_id = $1
		ORDER BY id DESC
		LIMIT 1
	`, jobColumns)
	job, err := scanJob(s.db.QueryRowContext(ctx, query, workspaceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return job, err
}

func (s *Store) listJobs(ctx context.Context, query string, args ...interface{}) ([]store.ProvisioningJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []store.ProvisioningJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *Store) ListQueued(ctx context.Context, limit int) ([]store.ProvisioningJob, error) {
	if limit <= 0 {
		limit = 1
	}
	query := fmt.Sprintf(`
		SELECT %s FROM provisioning_jobs
		WHERE state = 'queued'
		ORDER BY id ASC
		LIMIT $1
	`, jobColumns)
	return s.listJobs(ctx, query, limit)
}

func (s *Store) ListActive(ctx context.Context) ([]store.ProvisioningJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM provisioning_jobs
		WHERE state NOT IN ('ready', 'error')
		ORDER BY id ASC
	`, jobColumns)
	return s.listJobs(ctx, query)
}

// UpdateJob persists a transition guarded by the state the caller read.
// Zero rows affected means another writer got there first.
func (s *Store) UpdateJob(ctx context.Context, job *store.ProvisioningJob, fromState store.JobState) (*store.ProvisioningJob, error) {
	query := `
		UPDATE provisioning_jobs
		SET state = $1, attempt = $2, last_error_code = $3, last_error_detail = $4,
			started_at = $5, finished_at = $6, updated_at = $7
		WHERE id = $8 AND state = $9
	`

	result, err := s.db.ExecContext(ctx, query,
		job.State, job.Attempt, job.LastErrorCode, job.LastErrorDetail,
		job.StartedAt, job.FinishedAt, job.UpdatedAt,
		job.ID, fromState,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update job %d: %w", job.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrStaleJob
	}

	stored := *job
	return &stored, nil
}
