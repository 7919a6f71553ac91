package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/boringdata/boring-ui/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

var jobColumnNames = []string{
	"id", "workspace_id", "app_id", "release_id", "state", "attempt",
	"idempotency_key", "request_id", "created_by", "last_error_code", "last_error_detail",
	"started_at", "finished_at", "created_at", "updated_at",
}

func jobRow(id int64, workspaceID string, state store.JobState, createdAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(jobColumnNames).AddRow(
		id, workspaceID, "app-1", "rel-1", state, 1,
		"deploy-1", "req-1", "tenant-a", nil, nil,
		nil, nil, createdAt, createdAt,
	)
}

func TestCreateJob_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	job := &store.ProvisioningJob{
		WorkspaceID:    "ws-1",
		AppID:          "app-1",
		ReleaseID:      "rel-1",
		State:          store.JobStateQueued,
		Attempt:        1,
		IdempotencyKey: "deploy-1",
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	mock.ExpectQuery(`INSERT INTO provisioning_jobs`).
		WithArgs("ws-1", "app-1", "rel-1", store.JobStateQueued, 1, "deploy-1", "", "", now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	created, err := s.CreateJob(ctx, job)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if created.ID != 42 {
		t.Errorf("got ID %d, want 42", created.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateJob_ActiveConflict(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	job := &store.ProvisioningJob{
		WorkspaceID: "ws-1",
		State:       store.JobStateQueued,
		Attempt:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The partial unique index over active jobs raises 23505.
	mock.ExpectQuery(`INSERT INTO provisioning_jobs`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_jobs_active_workspace"})

	_, err := s.CreateJob(ctx, job)
	if !errors.Is(err, store.ErrActiveJobExists) {
		t.Fatalf("got %v, want ErrActiveJobExists", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetActiveForWorkspace_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	mock.ExpectQuery(`SELECT (.+) FROM provisioning_jobs\s+WHERE workspace_id = \$1 AND state NOT IN \('ready', 'error'\)`).
		WithArgs("ws-1").
		WillReturnRows(jobRow(7, "ws-1", store.JobStateBootstrapping, now))

	job, err := s.GetActiveForWorkspace(ctx, "ws-1")
	if err != nil {
		t.Fatalf("GetActiveForWorkspace failed: %v", err)
	}
	if job.ID != 7 || job.State != store.JobStateBootstrapping {
		t.Errorf("got job %d state %s, want 7/bootstrapping", job.ID, job.State)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetActiveForWorkspace_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM provisioning_jobs`).
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows(jobColumnNames))

	_, err := s.GetActiveForWorkspace(context.Background(), "ws-1")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestGetByIdempotencyKey_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now().UTC().Truncate(time.Second)
	mock.ExpectQuery(`SELECT (.+) FROM provisioning_jobs\s+WHERE workspace_id = \$1 AND idempotency_key = \$2`).
		WithArgs("ws-1", "deploy-1").
		WillReturnRows(jobRow(3, "ws-1", store.JobStateReady, now))

	job, err := s.GetByIdempotencyKey(context.Background(), "ws-1", "deploy-1")
	if err != nil {
		t.Fatalf("GetByIdempotencyKey failed: %v", err)
	}
	if job.ID != 3 {
		t.Errorf("got job %d, want 3", job.ID)
	}
}

func TestListQueued(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now().UTC().Truncate(time.Second)
	rows := sqlmock.NewRows(jobColumnNames).
		AddRow(1, "ws-1", "app-1", "rel-1", store.JobStateQueued, 1, "k1", "", "", nil, nil, nil, nil, now, now).
		AddRow(2, "ws-2", "app-1", "rel-2", store.JobStateQueued, 1, "k2", "", "", nil, nil, nil, nil, now, now)

	mock.ExpectQuery(`SELECT (.+) FROM provisioning_jobs\s+WHERE state = 'queued'\s+ORDER BY id ASC\s+LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(rows)

	jobs, err := s.ListQueued(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListQueued failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != 1 || jobs[1].ID != 2 {
		t.Error("jobs out of order")
	}
}

func TestUpdateJob_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now().UTC()
	started := now
	job := &store.ProvisioningJob{
		ID:        7,
		State:     store.JobStateReleaseResolve,
		Attempt:   1,
		StartedAt: &started,
		UpdatedAt: now,
	}

	mock.ExpectExec(`UPDATE provisioning_jobs`).
		WithArgs(store.JobStateReleaseResolve, 1, nil, nil, started, nil, now, int64(7), store.JobStateQueued).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := s.UpdateJob(context.Background(), job, store.JobStateQueued)
	if err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}
	if updated.State != store.JobStateReleaseResolve {
		t.Errorf("got state %s, want release_resolve", updated.State)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateJob_Stale(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now().UTC()
	job := &store.ProvisioningJob{ID: 7, State: store.JobStateError, Attempt: 1, UpdatedAt: now}

	// Zero rows affected: another writer already moved the job on.
	mock.ExpectExec(`UPDATE provisioning_jobs`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.UpdateJob(context.Background(), job, store.JobStateBootstrapping)
	if !errors.Is(err, store.ErrStaleJob) {
		t.Fatalf("got %v, want ErrStaleJob", err)
	}
}
