package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const sourceColumns = `id, competitor_id, url, source_type, fetch_mode, schedule,
	sensitivity, is_active, created_at, updated_at`

// InsertSource adds a new source.
func (s *Store) InsertSource(ctx context.Context, src *Source) error {
	now := time.Now().UnixMilli()
	if src.CreatedAt == 0 {
		src.CreatedAt = now
	}
	if src.UpdatedAt == 0 {
		src.UpdatedAt = now
	}
	if src.SourceType == "" {
		src.SourceType = "homepage"
	}
	if src.FetchMode == "" {
		src.FetchMode = "http"
	}
	if src.Schedule == "" {
		src.Schedule = "0 8 * * *"
	}
	if src.Sensitivity == "" {
		src.Sensitivity = "medium"
	}

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO sources (id, competitor_id, url, source_type, fetch_mode,
		schedule, sensitivity, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.CompetitorID, src.URL, src.SourceType, src.FetchMode,
		src.Schedule, src.Sensitivity, src.IsActive, src.CreatedAt, src.UpdatedAt,
	)
	return err
}

// GetSource retrieves a source by ID. Returns (nil, nil) when absent.
func (s *Store) GetSource(ctx context.Context, id string) (*Source, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	return scanSource(row)
}

// GetSourceByURL returns the source matching the given URL, or nil.
func (s *Store) GetSourceByURL(ctx context.Context, url string) (*Source, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE url = ? LIMIT 1`, url)
	return scanSource(row)
}

// ListSources returns all sources, newest first.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	return s.querySources(ctx,
		`SELECT `+sourceColumns+` FROM sources ORDER BY created_at DESC`)
}

// ListActiveSources returns sources the scheduler should hold a job for.
func (s *Store) ListActiveSources(ctx context.Context) ([]*Source, error) {
	return s.querySources(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE is_active = 1 ORDER BY created_at ASC`)
}

// ListSourcesForCompetitor returns all sources owned by a competitor.
func (s *Store) ListSourcesForCompetitor(ctx context.Context, competitorID string) ([]*Source, error) {
	return s.querySources(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE competitor_id = ? ORDER BY created_at ASC`,
		competitorID)
}

// UpdateSource updates a source's mutable fields.
func (s *Store) UpdateSource(ctx context.Context, src *Source) error {
	src.UpdatedAt = time.Now().UnixMilli()
	_, err := s.q.ExecContext(ctx,
		`UPDATE sources SET url=?, source_type=?, fetch_mode=?, schedule=?,
		sensitivity=?, is_active=?, updated_at=?
		WHERE id=?`,
		src.URL, src.SourceType, src.FetchMode, src.Schedule,
		src.Sensitivity, src.IsActive, src.UpdatedAt, src.ID,
	)
	return err
}

// SetSourceActive flips only the is_active flag, the one source field the
// pipeline is allowed to mutate.
func (s *Store) SetSourceActive(ctx context.Context, id string, active bool) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE sources SET is_active=?, updated_at=? WHERE id=?`,
		active, time.Now().UnixMilli(), id)
	return err
}

// DeleteSource removes a source (cascades to snapshots, events, fetch_log).
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	return err
}

// CountSources returns the total number of sources.
func (s *Store) CountSources(ctx context.Context) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&count)
	return count, err
}

func (s *Store) querySources(ctx context.Context, query string, args ...any) ([]*Source, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		src, err := scanSourceRows(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func scanSource(row *sql.Row) (*Source, error) {
	var src Source
	var active int
	err := row.Scan(
		&src.ID, &src.CompetitorID, &src.URL, &src.SourceType, &src.FetchMode,
		&src.Schedule, &src.Sensitivity, &active, &src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.IsActive = active != 0
	return &src, nil
}

func scanSourceRows(rows *sql.Rows) (*Source, error) {
	var src Source
	var active int
	err := rows.Scan(
		&src.ID, &src.CompetitorID, &src.URL, &src.SourceType, &src.FetchMode,
		&src.Schedule, &src.Sensitivity, &active, &src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.IsActive = active != 0
	return &src, nil
}
