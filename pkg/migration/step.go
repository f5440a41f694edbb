// SPDX-License-Identifier: Apache-2.0

// Package migration declares the contract a migration step must satisfy,
// and the registry that chains them by target migration index.
package migration

import (
	"context"

	"github.com/evlog/migrator/pkg/event"
	"github.com/evlog/migrator/pkg/keyframe"
	"github.com/evlog/migrator/pkg/model"
)

// PositionData is the read-only context handed to a step's Migrate for one
// position: its original migration_index, timestamp, user id and opaque
// information payload, exactly as stored in positions.
type PositionData struct {
	Position       model.Position
	MigrationIndex int
	UserID         int64
	Information    []byte
}

// Step is a single link in the migration chain, targeting one migration
// index. A step provides either MigrateEvent (the common case, a per-event
// rewriter) or its own Migrate (for steps that need the whole position at
// once); BaseStep supplies the default fan-out so steps that only
// implement MigrateEvent get a working Migrate for free.
type Step interface {
	// TargetMigrationIndex is the migration index this step produces,
	// i.e. one past the index it consumes.
	TargetMigrationIndex() int

	// Migrate rewrites every event of one position. old and new are
	// keyframe accessors bound to the source and target migration index
	// respectively; pd carries the position's non-event metadata.
	Migrate(ctx context.Context, events []event.Event, old, new keyframe.Accessor, pd PositionData) ([]event.Event, error)
}

// EventRewriter is implemented by steps that only need to rewrite one
// event at a time; BaseStep turns it into a full Step via Migrate.
type EventRewriter interface {
	// MigrateEvent rewrites a single event. Returning nil means "pass
	// through unchanged"; returning an empty, non-nil slice drops the
	// event; returning a non-empty slice emits replacement events in
	// order.
	MigrateEvent(ctx context.Context, e event.Event) ([]event.Event, error)
}

// BaseStep supplies the default Migrate described in spec.md §4.3: iterate
// events, call the embedding step's MigrateEvent, honor the
// nil/empty/list conventions, and apply each original event to old and
// each produced event to new, in order.
//
// Embed BaseStep, implement EventRewriter, and point Rewriter at the
// step itself to get Migrate for free (Migrate calls Rewriter, so it
// must be set):
//
//	type RenameField struct { migration.BaseStep }
//	func NewRenameField() *RenameField { s := &RenameField{}; s.Rewriter = s; return s }
//	func (*RenameField) TargetMigrationIndex() int { return 2 }
//	func (*RenameField) MigrateEvent(ctx context.Context, e event.Event) ([]event.Event, error) { ... }
type BaseStep struct {
	Rewriter EventRewriter
}

func (b BaseStep) Migrate(ctx context.Context, events []event.Event, old, new keyframe.Accessor, pd PositionData) ([]event.Event, error) {
	var out []event.Event
	for _, e := range events {
		if err := old.ApplyEvent(ctx, e, pd.Position); err != nil {
			return nil, err
		}

		rewritten, err := b.Rewriter.MigrateEvent(ctx, e)
		if err != nil {
			return nil, err
		}
		if rewritten == nil {
			rewritten = []event.Event{e}
		}

		for _, r := range rewritten {
			if err := new.ApplyEvent(ctx, r, pd.Position); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}
	if out == nil {
		out = []event.Event{}
	}
	return out, nil
}
