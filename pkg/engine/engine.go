// SPDX-License-Identifier: Apache-2.0

// Package engine is the orchestrator: it computes whether migration is
// needed, whether finalization alone is pending, or whether the
// datastore is corrupt, and drives the Position Migrator and Finalizer
// accordingly. Engine is the public entry point, the equivalent of
// pgroll's roll.Roll.
package engine

import (
	"context"

	"github.com/evlog/migrator/pkg/finalizer"
	"github.com/evlog/migrator/pkg/migration"
	"github.com/evlog/migrator/pkg/migrator"
	"github.com/evlog/migrator/pkg/store"
)

// Engine owns the store handle and exposes the three operator entry
// points: Migrate, Finalize, Stats.
type Engine struct {
	store  *store.Store
	logger migration.Logger
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the default no-op logger.
func WithLogger(logger migration.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New opens a connection to pgURL and returns an Engine whose statements
// are qualified against schema.
func New(ctx context.Context, pgURL, schema string, opts ...Option) (*Engine, error) {
	st, err := store.New(ctx, pgURL, schema)
	if err != nil {
		return nil, err
	}
	e := &Engine{store: st, logger: migration.NewNoopLogger()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewFromStore builds an Engine over an already-constructed Store, for
// callers (tests, embedding applications that manage their own
// connection pool) that don't want Engine opening the connection
// itself.
func NewFromStore(st *store.Store, logger migration.Logger) *Engine {
	if logger == nil {
		logger = migration.NewNoopLogger()
	}
	return &Engine{store: st, logger: logger}
}

// Init bootstraps the schema and its tables.
func (e *Engine) Init(ctx context.Context) error {
	return e.store.Init(ctx)
}

// Close releases the underlying connection.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Stats reports the five fields of the operator-facing `stats` command.
type Stats struct {
	MinMigrationIndexPositions        int
	CountPositions                    int
	MinMigrationIndexMigrationPositions int
	CountMigrationPositions           int
	TargetMigrationIndex              int
}

// Stats returns the current bookkeeping state against target.
func (e *Engine) Stats(ctx context.Context, target int) (Stats, error) {
	minPos, err := e.store.MinMigrationIndexPositions(ctx)
	if err != nil {
		return Stats{}, err
	}
	countPos, err := e.store.CountPositions(ctx)
	if err != nil {
		return Stats{}, err
	}
	minMig, err := e.store.MinMigrationIndexMigrationPositions(ctx)
	if err != nil {
		return Stats{}, err
	}
	countMig, err := e.store.CountMigrationPositions(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		MinMigrationIndexPositions:          minPos,
		CountPositions:                       countPos,
		MinMigrationIndexMigrationPositions:  minMig,
		CountMigrationPositions:              countMig,
		TargetMigrationIndex:                 target,
	}, nil
}

// Migrate implements spec.md §4.6's decision table: it reports whether
// finalization is needed, running the Position Migrator only in the
// "otherwise" branch.
func (e *Engine) Migrate(ctx context.Context, target int, registry *migration.Registry) (finalizeNeeded bool, err error) {
	stats, err := e.Stats(ctx, target)
	if err != nil {
		return false, err
	}

	switch {
	case stats.CountPositions == 0:
		// Nothing has ever been written; there is nothing to migrate or
		// finalize.
		return false, nil

	case stats.MinMigrationIndexPositions == target:
		return false, nil

	case stats.MinMigrationIndexMigrationPositions == target && stats.CountPositions == stats.CountMigrationPositions:
		return true, nil

	case stats.MinMigrationIndexPositions < 1 || stats.MinMigrationIndexMigrationPositions < 1:
		return false, migration.MismatchingMigrationIndicesError{
			Reason: "a migration index below 1 was observed in positions or migration_positions",
		}
	}

	if err := registry.Validate(stats.MinMigrationIndexPositions, target); err != nil {
		return false, err
	}

	mig := migrator.New(e.store, e.logger)
	return mig.Run(ctx, target, registry)
}

// Finalize runs the Finalizer, promoting staged rewrites into the live
// log and rebuilding the derived models table. Callers should only call
// Finalize after a Migrate call (or a fresh Stats check) reports
// finalizing is needed.
func (e *Engine) Finalize(ctx context.Context, target int) error {
	f := finalizer.New(e.store, e.logger)
	return f.Run(ctx, target)
}
