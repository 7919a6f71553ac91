package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/boringdata/boring-ui/internal/store"
)

func TestUpsertRuntime(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now().UTC()
	step := "bootstrapping"
	code := "bootstrap_failed"
	detail := "bootstrap.sh exited 1"

	mock.ExpectExec(`INSERT INTO workspace_runtime`).
		WithArgs("ws-1", "app-1", "error", &step, "rel-1", "ws-1-sbx", "abc", &code, &detail, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertRuntime(context.Background(), &store.RuntimeMetadata{
		WorkspaceID:     "ws-1",
		AppID:           "app-1",
		State:           "error",
		Step:            &step,
		ReleaseID:       "rel-1",
		SandboxName:     "ws-1-sbx",
		BundleSHA256:    "abc",
		LastErrorCode:   &code,
		LastErrorDetail: &detail,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("UpsertRuntime failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetRuntime_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now().UTC().Truncate(time.Second)
	columns := []string{
		"workspace_id", "app_id", "state", "step", "release_id", "sandbox_name",
		"bundle_sha256", "last_error_code", "last_error_detail", "updated_at",
	}

	mock.ExpectQuery(`SELECT (.+) FROM workspace_runtime\s+WHERE workspace_id = \$1`).
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("ws-1", "app-1", "ready", nil, "rel-1", "ws-1-sbx", "abc", nil, nil, now))

	meta, err := s.GetRuntime(context.Background(), "ws-1")
	if err != nil {
		t.Fatalf("GetRuntime failed: %v", err)
	}
	if meta.State != "ready" {
		t.Errorf("got state %s, want ready", meta.State)
	}
	if meta.Step != nil {
		t.Error("ready snapshot must have nil step")
	}
	if meta.SandboxName != "ws-1-sbx" {
		t.Errorf("got sandbox %s, want ws-1-sbx", meta.SandboxName)
	}
}

func TestGetRuntime_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM workspace_runtime`).
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"workspace_id"}))

	_, err := s.GetRuntime(context.Background(), "ws-1")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
