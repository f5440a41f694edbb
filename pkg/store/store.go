// SPDX-License-Identifier: Apache-2.0

// Package store owns every SQL statement issued against the event log and
// migration bookkeeping tables: positions, events, migration_events,
// migration_positions, migration_keyframes, migration_keyframe_models and
// models. It holds no business logic of its own; pkg/keyframe,
// pkg/migrator, pkg/finalizer and pkg/engine each compose it.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/evlog/migrator/pkg/db"
)

// advisoryLockKey distinguishes Init's bootstrap lock from any other
// advisory lock taken in the same database.
const advisoryLockKey int64 = 0x6576_6c6f_675f_6d67

// Store wraps a retrying connection pool and the schema all of its SQL is
// qualified against.
type Store struct {
	db     db.DB
	schema string
}

// New opens a connection to pgURL and returns a Store whose statements are
// qualified against schema.
func New(ctx context.Context, pgURL, schema string) (*Store, error) {
	dsn, err := pq.ParseURL(pgURL)
	if err != nil {
		dsn = pgURL
	}
	dsn += " search_path=" + schema

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Store{
		db:     &db.RDB{DB: conn},
		schema: schema,
	}, nil
}

// NewWithDB builds a Store over an already-constructed db.DB, for callers
// that manage the connection lifecycle themselves.
func NewWithDB(d db.DB, schema string) *Store {
	return &Store{db: d, schema: schema}
}

// Schema returns the schema this store's statements are qualified against.
func (s *Store) Schema() string {
	return s.schema
}

// Init bootstraps the schema and its tables, guarded by an advisory lock
// so concurrent bootstraps from multiple processes don't race.
func (s *Store) Init(ctx context.Context) error {
	return s.db.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
			return fmt.Errorf("acquiring bootstrap lock: %w", err)
		}
		if _, err := tx.ExecContext(ctx, initSQL(pq.QuoteIdentifier(s.schema))); err != nil {
			return fmt.Errorf("bootstrapping schema: %w", err)
		}
		return nil
	})
}

// WithTx runs fn inside a retrying transaction, the unit of work for one
// position's rewrite or the whole of finalization.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return s.db.WithRetryableTransaction(ctx, fn)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// table returns a schema-qualified, identifier-quoted table name.
func (s *Store) table(name string) string {
	return pq.QuoteIdentifier(s.schema) + "." + pq.QuoteIdentifier(name)
}
