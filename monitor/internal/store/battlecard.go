package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const battlecardColumns = `id, competitor_id, version, content_md, updated_at`

// InsertBattlecard appends a new battlecard version. A zero Version is
// assigned the competitor's next version number; run inside Tx when
// concurrent writers for the same competitor are possible.
func (s *Store) InsertBattlecard(ctx context.Context, bc *Battlecard) error {
	if bc.UpdatedAt == 0 {
		bc.UpdatedAt = time.Now().UnixMilli()
	}
	if bc.Version == 0 {
		row := s.q.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM battlecards WHERE competitor_id = ?`,
			bc.CompetitorID)
		if err := row.Scan(&bc.Version); err != nil {
			return fmt.Errorf("next battlecard version: %w", err)
		}
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO battlecards (id, competitor_id, version, content_md, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		bc.ID, bc.CompetitorID, bc.Version, bc.ContentMD, bc.UpdatedAt,
	)
	return err
}

// LatestBattlecard returns the highest version for a competitor, or
// (nil, nil) when none exists.
func (s *Store) LatestBattlecard(ctx context.Context, competitorID string) (*Battlecard, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+battlecardColumns+` FROM battlecards
		WHERE competitor_id = ? ORDER BY version DESC LIMIT 1`, competitorID)
	return scanBattlecard(row)
}

// ListBattlecards returns all versions for a competitor, newest first.
func (s *Store) ListBattlecards(ctx context.Context, competitorID string) ([]*Battlecard, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+battlecardColumns+` FROM battlecards
		WHERE competitor_id = ? ORDER BY version DESC`, competitorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Battlecard
	for rows.Next() {
		var bc Battlecard
		if err := rows.Scan(&bc.ID, &bc.CompetitorID, &bc.Version, &bc.ContentMD,
			&bc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan battlecard: %w", err)
		}
		out = append(out, &bc)
	}
	return out, rows.Err()
}

func scanBattlecard(row *sql.Row) (*Battlecard, error) {
	var bc Battlecard
	err := row.Scan(&bc.ID, &bc.CompetitorID, &bc.Version, &bc.ContentMD, &bc.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan battlecard: %w", err)
	}
	return &bc, nil
}
