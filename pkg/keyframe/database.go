// SPDX-License-Identifier: Apache-2.0

package keyframe

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/evlog/migrator/pkg/event"
	"github.com/evlog/migrator/pkg/model"
	"github.com/evlog/migrator/pkg/store"
)

// DatabaseAccessor is used for every position after the first. Its
// starting model set is either the persisted keyframe at
// (lastPosition, migrationIndex), or computed on first demand by
// replaying forward from the nearest earlier keyframe at the same index.
type DatabaseAccessor struct {
	store           *store.Store
	migrationIndex  int
	lastPosition    model.Position
	currentPosition model.Position
	models          map[model.Fqid]*model.Model
}

func newDatabaseAccessor(ctx context.Context, tx *sql.Tx, st *store.Store, lastPosition model.Position, migrationIndex int, currentPosition model.Position) (*DatabaseAccessor, error) {
	models, found, err := st.ReadKeyframe(ctx, tx, lastPosition, migrationIndex)
	if err != nil {
		return nil, err
	}
	if !found {
		models, err = foldFromNearestKeyframe(ctx, tx, st, lastPosition, migrationIndex)
		if err != nil {
			return nil, err
		}
	}
	return &DatabaseAccessor{
		store:           st,
		migrationIndex:  migrationIndex,
		lastPosition:    lastPosition,
		currentPosition: currentPosition,
		models:          models,
	}, nil
}

// foldFromNearestKeyframe replays events from the nearest earlier
// persisted keyframe at migrationIndex (or from scratch, if none exists)
// up to and including through, reconstructing the keyframe that should
// exist at (through, migrationIndex) but hasn't been written yet.
//
// Per position in the fold range, staging is consulted when
// migration_positions reports that position has already been rewritten to
// exactly migrationIndex; otherwise live events are used, which is correct
// in steady state because positions.migration_index tracks the index live
// events were last finalized under.
func foldFromNearestKeyframe(ctx context.Context, tx *sql.Tx, st *store.Store, through model.Position, migrationIndex int) (map[model.Fqid]*model.Model, error) {
	from, models, found, err := st.NearestKeyframeBefore(ctx, tx, through, migrationIndex)
	if err != nil {
		return nil, err
	}
	if !found {
		from = 0
		models = map[model.Fqid]*model.Model{}
	}

	if from >= through {
		return models, nil
	}

	positions, err := st.PositionsInRange(ctx, tx, from+1, through)
	if err != nil {
		return nil, err
	}

	for _, p := range positions {
		rows, err := eventsForFold(ctx, tx, st, p, migrationIndex)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			e, err := row.Event()
			if err != nil {
				return nil, fmt.Errorf("parsing event while folding position %d: %w", p, err)
			}
			next, err := event.Apply(e, models[e.Fqid()], p)
			if err != nil {
				return nil, err
			}
			models[e.Fqid()] = next
		}
	}
	return models, nil
}

func eventsForFold(ctx context.Context, tx *sql.Tx, st *store.Store, p model.Position, migrationIndex int) ([]store.RawEvent, error) {
	mi, ok, err := store.MigrationIndexForPosition(ctx, tx, st, p)
	if err != nil {
		return nil, err
	}
	if ok && mi == migrationIndex {
		return st.EventsFromStaging(ctx, tx, p)
	}
	return st.EventsFromLive(ctx, tx, p)
}

func (a *DatabaseAccessor) GetModel(_ context.Context, fqid model.Fqid) (*model.Model, bool, error) {
	m, ok := a.models[fqid]
	if !ok {
		return nil, false, nil
	}
	return m.Clone(), true, nil
}

func (a *DatabaseAccessor) GetAllModels(_ context.Context) (map[model.Fqid]*model.Model, error) {
	out := make(map[model.Fqid]*model.Model, len(a.models))
	for fqid, m := range a.models {
		out[fqid] = m.Clone()
	}
	return out, nil
}

func (a *DatabaseAccessor) ApplyEvent(_ context.Context, e event.Event, position model.Position) error {
	next, err := event.Apply(e, a.models[e.Fqid()], position)
	if err != nil {
		return err
	}
	a.models[e.Fqid()] = next
	return nil
}

func (a *DatabaseAccessor) MoveToNextPosition(ctx context.Context, tx *sql.Tx, persist bool) error {
	if persist {
		if err := a.store.WriteKeyframe(ctx, tx, a.currentPosition, a.migrationIndex, a.models); err != nil {
			return err
		}
	}
	a.lastPosition = a.currentPosition
	return nil
}
