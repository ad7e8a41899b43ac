package store

import (
	"context"
	"fmt"
	"time"
)

// InsertInsight attaches an annotation result to a change event.
func (s *Store) InsertInsight(ctx context.Context, in *Insight) error {
	if in.CreatedAt == 0 {
		in.CreatedAt = time.Now().UnixMilli()
	}
	if in.SuggestedActionsJSON == "" {
		in.SuggestedActionsJSON = "[]"
	}
	if in.EvidenceJSON == "" {
		in.EvidenceJSON = "[]"
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO insights (id, change_event_id, change_type, impact, intent,
		rationale, suggested_actions, evidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.ChangeEventID, in.ChangeType, in.Impact, in.Intent,
		in.Rationale, in.SuggestedActionsJSON, in.EvidenceJSON, in.CreatedAt,
	)
	return err
}

// ListInsights returns insights attached to a change event, oldest first.
func (s *Store) ListInsights(ctx context.Context, changeEventID string) ([]*Insight, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, change_event_id, change_type, impact, intent, rationale,
		suggested_actions, evidence, created_at
		FROM insights WHERE change_event_id = ? ORDER BY created_at ASC`,
		changeEventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Insight
	for rows.Next() {
		var in Insight
		if err := rows.Scan(&in.ID, &in.ChangeEventID, &in.ChangeType, &in.Impact,
			&in.Intent, &in.Rationale, &in.SuggestedActionsJSON, &in.EvidenceJSON,
			&in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		out = append(out, &in)
	}
	return out, rows.Err()
}
