// Package store provides the data access layer for the monitoring pipeline.
//
// A Store wraps either a *sql.DB or, inside Tx, a *sql.Tx, so the pipeline
// can write a snapshot and its change event as one committed unit.
package store

import (
	"context"
	"database/sql"

	"github.com/Adversit/competitor-intel/dbopen"
)

// querier is the subset of *sql.DB / *sql.Tx the store uses.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps a database for monitoring operations.
type Store struct {
	q  querier
	db *sql.DB // nil inside a transaction
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{q: db, db: db}
}

// Tx runs fn against a transaction-scoped Store. All writes made through the
// inner Store commit together or not at all. Retries on SQLITE_BUSY.
// Calling Tx on a Store that is already transaction-scoped is a bug.
func (s *Store) Tx(ctx context.Context, fn func(*Store) error) error {
	if s.db == nil {
		panic("store: nested transaction")
	}
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&Store{q: tx})
	})
}
