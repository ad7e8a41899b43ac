package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const snapshotColumns = `id, source_id, fetched_at, content_hash, extracted_text, html_path, created_at`

// InsertSnapshot records one fetch result. Snapshots are immutable.
func (s *Store) InsertSnapshot(ctx context.Context, snap *Snapshot) error {
	now := time.Now().UnixMilli()
	if snap.FetchedAt == 0 {
		snap.FetchedAt = now
	}
	if snap.CreatedAt == 0 {
		snap.CreatedAt = now
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO snapshots (id, source_id, fetched_at, content_hash,
		extracted_text, html_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.SourceID, snap.FetchedAt, snap.ContentHash,
		snap.ExtractedText, snap.HTMLPath, snap.CreatedAt,
	)
	return err
}

// GetSnapshot retrieves a snapshot by ID. Returns (nil, nil) when absent.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?`, id)
	return scanSnapshot(row)
}

// PreviousSnapshot returns the most recent snapshot for a source excluding
// the given one, i.e. the comparison baseline for a new fetch. Snapshots for
// a source are strictly ordered by fetch time; UUIDv7 IDs break ties.
func (s *Store) PreviousSnapshot(ctx context.Context, sourceID, excludeID string) (*Snapshot, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		WHERE source_id = ? AND id != ?
		ORDER BY fetched_at DESC, id DESC LIMIT 1`,
		sourceID, excludeID)
	return scanSnapshot(row)
}

// ListSnapshots returns snapshots for a source, newest first.
func (s *Store) ListSnapshots(ctx context.Context, sourceID string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		WHERE source_id = ? ORDER BY fetched_at DESC, id DESC LIMIT ?`,
		sourceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.SourceID, &snap.FetchedAt, &snap.ContentHash,
			&snap.ExtractedText, &snap.HTMLPath, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}

// CountSnapshots returns the number of snapshots for a source.
func (s *Store) CountSnapshots(ctx context.Context, sourceID string) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE source_id = ?`, sourceID).Scan(&count)
	return count, err
}

func scanSnapshot(row *sql.Row) (*Snapshot, error) {
	var snap Snapshot
	err := row.Scan(&snap.ID, &snap.SourceID, &snap.FetchedAt, &snap.ContentHash,
		&snap.ExtractedText, &snap.HTMLPath, &snap.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	return &snap, nil
}
