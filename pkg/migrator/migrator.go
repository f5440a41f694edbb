// SPDX-License-Identifier: Apache-2.0

package migrator

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/evlog/migrator/pkg/event"
	"github.com/evlog/migrator/pkg/keyframe"
	"github.com/evlog/migrator/pkg/migration"
	"github.com/evlog/migrator/pkg/model"
	"github.com/evlog/migrator/pkg/store"
)

// Migrator walks positions in order, selects the correct event source
// table, runs the step chain for each position, writes rewritten events
// and updates the migration-index checkpoint.
type Migrator struct {
	store  *store.Store
	logger migration.Logger
}

// New builds a Migrator over st. If logger is nil, a no-op logger is used.
func New(st *store.Store, logger migration.Logger) *Migrator {
	if logger == nil {
		logger = migration.NewNoopLogger()
	}
	return &Migrator{store: st, logger: logger}
}

// Run walks every position from the correct restart point through to
// target, running registry's step chain on each, and returns whether
// finalization is now needed. Run itself does not consult the
// orchestrator's decision table (that's pkg/engine's job) — it always
// performs the walk when called, and a walk that processes zero
// positions (nothing left to do) still reports finalizeNeeded so the
// caller can proceed to Finalize.
func (m *Migrator) Run(ctx context.Context, target int, registry *migration.Registry) (finalizeNeeded bool, err error) {
	start, found, err := m.startPosition(ctx, target)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}

	anchor, err := m.store.PositionBefore(ctx, start)
	if err != nil {
		return false, err
	}

	positions, err := m.store.ListPositionsFrom(ctx, start)
	if err != nil {
		return false, err
	}

	m.logger.LogRunStart(0, target)

	processed := 0
	for _, p := range positions {
		if anchor != nil && p.MigrationIndex > anchor.MigrationIndex {
			return false, migration.MismatchingMigrationIndicesError{
				Reason: fmt.Sprintf("position %d has migration_index %d, newer than anchor position %d's %d",
					p.Position, p.MigrationIndex, anchor.Position, anchor.MigrationIndex),
			}
		}

		if err := m.runPosition(ctx, p, anchor, target, registry); err != nil {
			return false, err
		}

		anchor = &store.RawPosition{Position: p.Position, MigrationIndex: p.MigrationIndex}
		processed++
	}

	m.logger.LogRunComplete(processed)
	return true, nil
}

// startPosition computes spec.md §4.4's start_position: the minimum of
// (oldest live position with migration_index < target) and (oldest live
// position strictly greater than the maximum position already present in
// migration_positions). The latter falls back to "oldest live position at
// all" when migration_positions is empty, covering a clean restart.
func (m *Migrator) startPosition(ctx context.Context, target int) (model.Position, bool, error) {
	a, aFound, err := m.store.MinLivePositionWithIndexBelow(ctx, target)
	if err != nil {
		return 0, false, err
	}

	maxStaged, _, err := m.store.MaxMigrationPosition(ctx)
	if err != nil {
		return 0, false, err
	}
	b, bFound, err := m.store.MinLivePositionAbove(ctx, maxStaged)
	if err != nil {
		return 0, false, err
	}

	switch {
	case aFound && bFound:
		if a < b {
			return a, true, nil
		}
		return b, true, nil
	case aFound:
		return a, true, nil
	case bFound:
		return b, true, nil
	default:
		return 0, false, nil
	}
}

func (m *Migrator) runPosition(ctx context.Context, p store.RawPosition, anchor *store.RawPosition, target int, registry *migration.Registry) error {
	return m.store.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		source, fromStaging, err := store.MigrationIndexForPosition(ctx, tx, m.store, p.Position)
		if err != nil {
			return err
		}
		if !fromStaging {
			source = p.MigrationIndex
		}

		var anchorPos model.Position
		if anchor != nil {
			anchorPos = anchor.Position
		}

		currentEvents, err := m.readEvents(ctx, tx, p.Position, fromStaging)
		if err != nil {
			return err
		}

		pd := migration.PositionData{
			Position:       p.Position,
			MigrationIndex: p.MigrationIndex,
			UserID:         p.UserID,
			Information:    p.Information,
		}

		m.logger.LogPositionStart(int64(p.Position), source, target)

		for s := source; s < target; s++ {
			t := s + 1

			oldAccessor, err := keyframe.NewAccessor(ctx, tx, m.store, anchorPos, s, p.Position)
			if err != nil {
				return err
			}
			newAccessor, err := keyframe.NewAccessor(ctx, tx, m.store, anchorPos, t, p.Position)
			if err != nil {
				return err
			}

			step, ok := registry.Step(t)
			if !ok {
				return migration.BadCodingError{Reason: fmt.Sprintf("no migration step registered for target migration index %d", t)}
			}

			rewritten, err := step.Migrate(ctx, currentEvents, oldAccessor, newAccessor, pd)
			if err != nil {
				return err
			}

			oldIDs, err := m.store.StagingEventIDs(ctx, tx, p.Position)
			if err != nil {
				return err
			}
			if err := m.applyDiff(ctx, tx, p.Position, oldIDs, rewritten); err != nil {
				return err
			}

			if err := oldAccessor.MoveToNextPosition(ctx, tx, false); err != nil {
				return err
			}
			if err := newAccessor.MoveToNextPosition(ctx, tx, t == target); err != nil {
				return err
			}

			currentEvents = rewritten
			fromStaging = true
		}

		if err := store.UpsertMigrationPosition(ctx, tx, m.store, p.Position, target); err != nil {
			return err
		}

		m.logger.LogPositionComplete(int64(p.Position), len(currentEvents))
		return nil
	})
}

func (m *Migrator) readEvents(ctx context.Context, tx *sql.Tx, p model.Position, fromStaging bool) ([]event.Event, error) {
	var rows []store.RawEvent
	var err error
	if fromStaging {
		rows, err = m.store.EventsFromStaging(ctx, tx, p)
	} else {
		rows, err = m.store.EventsFromLive(ctx, tx, p)
	}
	if err != nil {
		return nil, err
	}

	events := make([]event.Event, 0, len(rows))
	for _, r := range rows {
		e, err := r.Event()
		if err != nil {
			return nil, fmt.Errorf("parsing event for position %d: %w", p, err)
		}
		events = append(events, e)
	}
	return events, nil
}

func (m *Migrator) applyDiff(ctx context.Context, tx *sql.Tx, p model.Position, oldIDs []int64, newEvents []event.Event) error {
	plan := ComputeDiff(oldIDs, newEvents)

	for _, u := range plan.Updates {
		if err := m.store.UpdateStagingEvent(ctx, tx, u.ID, p, u.Weight, u.Event); err != nil {
			return err
		}
	}
	if err := m.store.DeleteStagingEvents(ctx, tx, plan.Deletes); err != nil {
		return err
	}
	for _, ins := range plan.Inserts {
		if err := m.store.InsertStagingEvent(ctx, tx, p, ins.Weight, ins.Event); err != nil {
			return err
		}
	}
	return nil
}
