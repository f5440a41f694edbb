// SPDX-License-Identifier: Apache-2.0

// Package keyframe provides the persistent per-(position, migration-index)
// snapshot of every live model, and the two accessor flavors migration
// steps read and write through: InitialAccessor for the very first
// position ever migrated, DatabaseAccessor for every position after that.
package keyframe

import (
	"context"
	"database/sql"

	"github.com/evlog/migrator/pkg/event"
	"github.com/evlog/migrator/pkg/model"
	"github.com/evlog/migrator/pkg/store"
)

// Accessor is the read/apply interface over the model world at a specific
// (last_position, migration_index, current_position) triple. An old
// accessor receives original events; a new accessor receives rewritten
// events; both advance together as the migrator walks positions.
type Accessor interface {
	// GetModel returns the model for fqid, or found=false if it has never
	// existed (or has been hard-forgotten, which this engine never does).
	GetModel(ctx context.Context, fqid model.Fqid) (m *model.Model, found bool, err error)

	// GetAllModels returns every live model in the accessor's current view.
	GetAllModels(ctx context.Context) (map[model.Fqid]*model.Model, error)

	// ApplyEvent mutates the accessor's in-memory view by applying e as
	// having occurred at position.
	ApplyEvent(ctx context.Context, e event.Event, position model.Position) error

	// MoveToNextPosition commits the accumulated view as the keyframe at
	// (currentPosition, migrationIndex) when persist is true, and advances
	// lastPosition to currentPosition either way.
	MoveToNextPosition(ctx context.Context, tx *sql.Tx, persist bool) error
}

// NewAccessor picks InitialAccessor when lastPosition is zero (the first
// position ever migrated) and DatabaseAccessor otherwise, matching the
// original engine's get_accessors split.
func NewAccessor(ctx context.Context, tx *sql.Tx, st *store.Store, lastPosition model.Position, migrationIndex int, currentPosition model.Position) (Accessor, error) {
	if lastPosition == 0 {
		return &InitialAccessor{
			store:           st,
			migrationIndex:  migrationIndex,
			currentPosition: currentPosition,
			models:          map[model.Fqid]*model.Model{},
		}, nil
	}
	return newDatabaseAccessor(ctx, tx, st, lastPosition, migrationIndex, currentPosition)
}
