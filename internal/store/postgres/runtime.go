package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/boringdata/boring-ui/internal/store"
)

// UpsertRuntime writes the per-workspace runtime snapshot, one row per
// workspace.
func (s *Store) UpsertRuntime(ctx context.Context, meta *store.RuntimeMetadata) error {
	query := `
		INSERT INTO workspace_runtime
			(workspace_id, app_id, state, step, release_id, sandbox_name,
			 bundle_sha256, last_error_code, last_error_detail, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (workspace_id) DO UPDATE SET
			app_id = EXCLUDED.app_id,
			state = EXCLUDED.state,
			step = EXCLUDED.step,
			release_id = EXCLUDED.release_id,
			sandbox_name = EXCLUDED.sandbox_name,
			bundle_sha256 = EXCLUDED.bundle_sha256,
			last_error_code = EXCLUDED.last_error_code,
			last_error_detail = EXCLUDED.last_error_detail,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		meta.WorkspaceID, meta.AppID, meta.State, meta.Step,
		meta.ReleaseID, meta.SandboxName, meta.BundleSHA256,
		meta.LastErrorCode, meta.LastErrorDetail, meta.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert runtime for workspace %s: %w", meta.WorkspaceID, err)
	}
	return nil
}

func (s *Store) GetRuntime(ctx context.Context, workspaceID string) (*store.RuntimeMetadata, error) {
	query := `
		SELECT workspace_id, app_id, state, step, release_id, sandbox_name,
			bundle_sha256, last_error_code, last_error_detail, updated_at
		FROM workspace_runtime
		WHERE workspace_id = $1
	`

	var meta store.RuntimeMetadata
	err := s.db.QueryRowContext(ctx, query, workspaceID).Scan(
		&meta.WorkspaceID, &meta.AppID, &meta.State, &meta.Step,
		&meta.ReleaseID, &meta.SandboxName, &meta.BundleSHA256,
		&meta.LastErrorCode, &meta.LastErrorDetail, &meta.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}
