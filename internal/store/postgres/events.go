package postgres

import (
	"context"
	"fmt"

	"github.com/boringdata/boring-ui/internal/store"
)

// AppendTransition records one state transition in the append-only log.
func (s *Store) AppendTransition(ctx context.Context, event *store.TransitionEvent) error {
	query := `
		INSERT INTO provision_events
			(job_id, workspace_id, from_state, to_state, error_code, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.JobID, event.WorkspaceID, event.FromState, event.ToState,
		event.ErrorCode, event.Detail, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append transition for job %d: %w", event.JobID, err)
	}
	return nil
}

func (s *Store) ListTransitions(ctx context.Context, workspaceID string) ([]store.TransitionEvent, error) {
	query := `
		SELECT id, job_id, workspace_id, from_state, to_state, error_code, detail, occurred_at
		FROM provision_events
		WHERE workspace_id = $1
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.TransitionEvent
	for rows.Next() {
		var event store.TransitionEvent
		if err := rows.Scan(
			&event.ID, &event.JobID, &event.WorkspaceID,
			&event.FromState, &event.ToState,
			&event.ErrorCode, &event.Detail, &event.OccurredAt,
		); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
