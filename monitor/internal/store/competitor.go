package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertCompetitor adds a competitor record.
func (s *Store) InsertCompetitor(ctx context.Context, c *Competitor) error {
	now := time.Now().UnixMilli()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = now
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO competitors (id, name, website, category, owner_team, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Website, c.Category, c.OwnerTeam, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// GetCompetitor retrieves a competitor by ID. Returns (nil, nil) when absent.
func (s *Store) GetCompetitor(ctx context.Context, id string) (*Competitor, error) {
	var c Competitor
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, website, category, owner_team, created_at, updated_at
		FROM competitors WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Website, &c.Category, &c.OwnerTeam, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan competitor: %w", err)
	}
	return &c, nil
}

// ListCompetitors returns all competitors ordered by name.
func (s *Store) ListCompetitors(ctx context.Context) ([]*Competitor, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, website, category, owner_team, created_at, updated_at
		FROM competitors ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Competitor
	for rows.Next() {
		var c Competitor
		if err := rows.Scan(&c.ID, &c.Name, &c.Website, &c.Category, &c.OwnerTeam,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan competitor: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// DeleteCompetitor removes a competitor (cascades to its sources).
func (s *Store) DeleteCompetitor(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM competitors WHERE id = ?`, id)
	return err
}
