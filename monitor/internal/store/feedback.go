package store

import (
	"context"
	"fmt"
	"time"
)

// InsertFeedback records a usefulness vote on a change event.
func (s *Store) InsertFeedback(ctx context.Context, fb *Feedback) error {
	if fb.CreatedAt == 0 {
		fb.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO feedback (id, change_event_id, user_id, is_useful, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		fb.ID, fb.ChangeEventID, fb.UserID, fb.IsUseful, fb.CreatedAt,
	)
	return err
}

// ListFeedback returns votes for a change event, oldest first.
func (s *Store) ListFeedback(ctx context.Context, changeEventID string) ([]*Feedback, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, change_event_id, user_id, is_useful, created_at
		FROM feedback WHERE change_event_id = ? ORDER BY created_at ASC`,
		changeEventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Feedback
	for rows.Next() {
		var fb Feedback
		var useful int
		if err := rows.Scan(&fb.ID, &fb.ChangeEventID, &fb.UserID, &useful,
			&fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		fb.IsUseful = useful != 0
		out = append(out, &fb)
	}
	return out, rows.Err()
}
