// SPDX-License-Identifier: Apache-2.0

package keyframe

import (
	"context"
	"database/sql"

	"github.com/evlog/migrator/pkg/event"
	"github.com/evlog/migrator/pkg/model"
	"github.com/evlog/migrator/pkg/store"
)

// InitialAccessor is used only when last_position == 0: its starting
// model set is empty.
type InitialAccessor struct {
	store           *store.Store
	migrationIndex  int
	currentPosition model.Position
	models          map[model.Fqid]*model.Model
}

func (a *InitialAccessor) GetModel(_ context.Context, fqid model.Fqid) (*model.Model, bool, error) {
	m, ok := a.models[fqid]
	if !ok {
		return nil, false, nil
	}
	return m.Clone(), true, nil
}

func (a *InitialAccessor) GetAllModels(_ context.Context) (map[model.Fqid]*model.Model, error) {
	out := make(map[model.Fqid]*model.Model, len(a.models))
	for fqid, m := range a.models {
		out[fqid] = m.Clone()
	}
	return out, nil
}

func (a *InitialAccessor) ApplyEvent(_ context.Context, e event.Event, position model.Position) error {
	next, err := event.Apply(e, a.models[e.Fqid()], position)
	if err != nil {
		return err
	}
	a.models[e.Fqid()] = next
	return nil
}

func (a *InitialAccessor) MoveToNextPosition(ctx context.Context, tx *sql.Tx, persist bool) error {
	if persist {
		if err := a.store.WriteKeyframe(ctx, tx, a.currentPosition, a.migrationIndex, a.models); err != nil {
			return err
		}
	}
	return nil
}
