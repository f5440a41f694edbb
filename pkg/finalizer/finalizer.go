// SPDX-License-Identifier: Apache-2.0

// Package finalizer moves staged rewritten events onto the live events
// table, deletes obsolete rows, rebuilds the derived models table, and
// updates positions to the new migration index.
package finalizer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/evlog/migrator/pkg/event"
	"github.com/evlog/migrator/pkg/migration"
	"github.com/evlog/migrator/pkg/model"
	"github.com/evlog/migrator/pkg/store"
)

// Finalizer implements spec.md §4.5.
type Finalizer struct {
	store  *store.Store
	logger migration.Logger
}

// New builds a Finalizer over st. If logger is nil, a no-op logger is used.
func New(st *store.Store, logger migration.Logger) *Finalizer {
	if logger == nil {
		logger = migration.NewNoopLogger()
	}
	return &Finalizer{store: st, logger: logger}
}

// Run executes the six finalize steps in one transaction. Re-running
// after partial failure is safe: step 1 idempotently replaces live
// events from staging per position, and steps 2-6 are set-deletions and
// full rebuilds.
func (f *Finalizer) Run(ctx context.Context, target int) error {
	f.logger.LogFinalizeStart()

	err := f.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		staged, err := f.store.StagedPositions(ctx, tx)
		if err != nil {
			return err
		}
		for _, p := range staged {
			if err := f.store.ReplaceLiveEventsFromStaging(ctx, tx, p); err != nil {
				return err
			}
		}

		if err := f.store.ClearStaging(ctx, tx); err != nil {
			return fmt.Errorf("clearing staging: %w", err)
		}
		if err := f.store.ClearMigrationPositions(ctx, tx); err != nil {
			return fmt.Errorf("clearing migration_positions: %w", err)
		}
		if err := f.store.SetAllPositionsMigrationIndex(ctx, tx, target); err != nil {
			return fmt.Errorf("updating positions.migration_index: %w", err)
		}

		models, err := f.rebuildModels(ctx, tx)
		if err != nil {
			return err
		}
		if err := f.store.ReplaceModels(ctx, tx, models); err != nil {
			return fmt.Errorf("rebuilding models: %w", err)
		}

		if err := f.store.ClearKeyframes(ctx, tx); err != nil {
			return fmt.Errorf("clearing keyframes: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	f.logger.LogFinalizeComplete()
	return nil
}

// rebuildModels replays every live event, in (position, weight) order, to
// reconstruct the full model set under the new live image.
func (f *Finalizer) rebuildModels(ctx context.Context, tx *sql.Tx) (map[model.Fqid]*model.Model, error) {
	rows, err := f.store.AllLiveEventsOrdered(ctx, tx)
	if err != nil {
		return nil, err
	}

	models := map[model.Fqid]*model.Model{}
	for _, r := range rows {
		e, err := r.Event()
		if err != nil {
			return nil, fmt.Errorf("parsing live event %d while rebuilding models: %w", r.ID, err)
		}
		next, err := event.Apply(e, models[e.Fqid()], r.Position)
		if err != nil {
			return nil, err
		}
		models[e.Fqid()] = next
	}
	return models, nil
}
