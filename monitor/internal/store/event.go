package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEventExists is returned when a change event for the same snapshot pair
// has already been recorded.
var ErrEventExists = errors.New("store: change event for snapshot pair already exists")

const eventColumns = `id, source_id, from_snapshot_id, to_snapshot_id,
	diff_summary, diff_chunks, is_processed, created_at`

// InsertChangeEvent records a qualifying change. The UNIQUE index on
// (from_snapshot_id, to_snapshot_id) makes event creation idempotent per
// snapshot pair; a duplicate insert returns ErrEventExists.
func (s *Store) InsertChangeEvent(ctx context.Context, ev *ChangeEvent) error {
	if ev.CreatedAt == 0 {
		ev.CreatedAt = time.Now().UnixMilli()
	}
	if ev.DiffChunksJSON == "" {
		ev.DiffChunksJSON = "[]"
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO change_events (id, source_id, from_snapshot_id, to_snapshot_id,
		diff_summary, diff_chunks, is_processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SourceID, ev.FromSnapshotID, ev.ToSnapshotID,
		ev.DiffSummary, ev.DiffChunksJSON, ev.IsProcessed, ev.CreatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrEventExists
	}
	return err
}

// GetChangeEvent retrieves an event by ID. Returns (nil, nil) when absent.
func (s *Store) GetChangeEvent(ctx context.Context, id string) (*ChangeEvent, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM change_events WHERE id = ?`, id)
	return scanEvent(row)
}

// GetChangeEventByPair retrieves the event for a snapshot pair, or nil.
func (s *Store) GetChangeEventByPair(ctx context.Context, fromID, toID string) (*ChangeEvent, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM change_events
		WHERE from_snapshot_id = ? AND to_snapshot_id = ?`, fromID, toID)
	return scanEvent(row)
}

// ListChangeEvents returns events for a source, newest first.
func (s *Store) ListChangeEvents(ctx context.Context, sourceID string, limit int) ([]*ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM change_events
		WHERE source_id = ? ORDER BY created_at DESC LIMIT ?`,
		sourceID, limit)
}

// ListChangeEventsForCompetitor returns recent events across all of a
// competitor's sources, newest first. Feeds battlecard generation.
func (s *Store) ListChangeEventsForCompetitor(ctx context.Context, competitorID string, limit int) ([]*ChangeEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryEvents(ctx,
		`SELECT ev.id, ev.source_id, ev.from_snapshot_id, ev.to_snapshot_id,
		ev.diff_summary, ev.diff_chunks, ev.is_processed, ev.created_at
		FROM change_events ev
		JOIN sources src ON src.id = ev.source_id
		WHERE src.competitor_id = ?
		ORDER BY ev.created_at DESC LIMIT ?`,
		competitorID, limit)
}

// ListChangeEventsSince returns all events created at or after the given
// UnixMilli timestamp, newest first. Used by the weekly digest.
func (s *Store) ListChangeEventsSince(ctx context.Context, since int64) ([]*ChangeEvent, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM change_events
		WHERE created_at >= ? ORDER BY created_at DESC`, since)
}

// MarkEventProcessed flips the processed flag, the only mutation a change
// event ever receives.
func (s *Store) MarkEventProcessed(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE change_events SET is_processed = 1 WHERE id = ?`, id)
	return err
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]*ChangeEvent, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*ChangeEvent
	for rows.Next() {
		var ev ChangeEvent
		var processed int
		if err := rows.Scan(&ev.ID, &ev.SourceID, &ev.FromSnapshotID, &ev.ToSnapshotID,
			&ev.DiffSummary, &ev.DiffChunksJSON, &processed, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.IsProcessed = processed != 0
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func scanEvent(row *sql.Row) (*ChangeEvent, error) {
	var ev ChangeEvent
	var processed int
	err := row.Scan(&ev.ID, &ev.SourceID, &ev.FromSnapshotID, &ev.ToSnapshotID,
		&ev.DiffSummary, &ev.DiffChunksJSON, &processed, &ev.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	ev.IsProcessed = processed != 0
	return &ev, nil
}
