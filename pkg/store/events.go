// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/evlog/migrator/pkg/event"
	"github.com/evlog/migrator/pkg/model"
)

// RawEvent is a row of either events or migration_events.
type RawEvent struct {
	ID       int64
	Position model.Position
	Weight   int
	Fqid     model.Fqid
	Type     event.Type
	Data     json.RawMessage
}

// Event parses the row's stored representation back into an event.Event.
func (r RawEvent) Event() (event.Event, error) {
	return event.Parse(r.Type, r.Fqid, r.Data)
}

// EventsFromLive returns the live events for position p, ordered by weight.
func (s *Store) EventsFromLive(ctx context.Context, tx *sql.Tx, p model.Position) ([]RawEvent, error) {
	return s.queryEvents(ctx, tx, "events", p)
}

// EventsFromStaging returns the staging events for position p, ordered by
// weight.
func (s *Store) EventsFromStaging(ctx context.Context, tx *sql.Tx, p model.Position) ([]RawEvent, error) {
	return s.queryEvents(ctx, tx, "migration_events", p)
}

func (s *Store) queryEvents(ctx context.Context, tx *sql.Tx, table string, p model.Position) ([]RawEvent, error) {
	query := fmt.Sprintf(
		"SELECT id, position, weight, fqid, type, data FROM %s WHERE position = $1 ORDER BY weight ASC",
		s.table(table),
	)
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, p)
	} else {
		rows, err = s.db.QueryContext(ctx, query, p)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s for position %d: %w", table, p, err)
	}
	defer rows.Close()

	var out []RawEvent
	for rows.Next() {
		var r RawEvent
		if err := rows.Scan(&r.ID, &r.Position, &r.Weight, &r.Fqid, &r.Type, &r.Data); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StagingEventIDs returns the ids of migration_events rows for position p,
// ordered by weight ascending, used by the diff-write step.
func (s *Store) StagingEventIDs(ctx context.Context, tx *sql.Tx, p model.Position) ([]int64, error) {
	query := fmt.Sprintf("SELECT id FROM %s WHERE position = $1 ORDER BY weight ASC", s.table("migration_events"))
	rows, err := tx.QueryContext(ctx, query, p)
	if err != nil {
		return nil, fmt.Errorf("reading staging ids for position %d: %w", p, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateStagingEvent overwrites the fqid/type/data/weight of an existing
// migration_events row.
func (s *Store) UpdateStagingEvent(ctx context.Context, tx *sql.Tx, id int64, p model.Position, weight int, e event.Event) error {
	data, err := e.GetData()
	if err != nil {
		return fmt.Errorf("serializing event for update: %w", err)
	}
	query := fmt.Sprintf(
		"UPDATE %s SET fqid = $1, type = $2, data = $3, weight = $4 WHERE id = $5",
		s.table("migration_events"),
	)
	_, err = tx.ExecContext(ctx, query, string(e.Fqid()), string(e.Type()), data, weight, id)
	if err != nil {
		return fmt.Errorf("updating staging event %d for position %d: %w", id, p, err)
	}
	return nil
}

// DeleteStagingEvents removes the given migration_events rows.
func (s *Store) DeleteStagingEvents(ctx context.Context, tx *sql.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", s.table("migration_events"))
	_, err := tx.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("deleting staging events: %w", err)
	}
	return nil
}

// InsertStagingEvent appends a new migration_events row for position p.
func (s *Store) InsertStagingEvent(ctx context.Context, tx *sql.Tx, p model.Position, weight int, e event.Event) error {
	data, err := e.GetData()
	if err != nil {
		return fmt.Errorf("serializing event for insert: %w", err)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (position, fqid, type, data, weight) VALUES ($1, $2, $3, $4, $5)",
		s.table("migration_events"),
	)
	_, err = tx.ExecContext(ctx, query, p, string(e.Fqid()), string(e.Type()), data, weight)
	if err != nil {
		return fmt.Errorf("inserting staging event for position %d: %w", p, err)
	}
	return nil
}

// ReplaceLiveEventsFromStaging deletes the live events for position p and
// re-inserts them from the staging image, preserving weights. Used by the
// finalizer, step 1.
func (s *Store) ReplaceLiveEventsFromStaging(ctx context.Context, tx *sql.Tx, p model.Position) error {
	staged, err := s.queryEvents(ctx, tx, "migration_events", p)
	if err != nil {
		return err
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE position = $1", s.table("events"))
	if _, err := tx.ExecContext(ctx, del, p); err != nil {
		return fmt.Errorf("deleting live events for position %d: %w", p, err)
	}

	insert := fmt.Sprintf(
		"INSERT INTO %s (position, fqid, type, data, weight) VALUES ($1, $2, $3, $4, $5)",
		s.table("events"),
	)
	for _, r := range staged {
		if _, err := tx.ExecContext(ctx, insert, p, string(r.Fqid), string(r.Type), r.Data, r.Weight); err != nil {
			return fmt.Errorf("inserting live event for position %d: %w", p, err)
		}
	}
	return nil
}

// StagedPositions returns the distinct positions with at least one row in
// migration_events, ordered ascending, read within tx if non-nil.
func (s *Store) StagedPositions(ctx context.Context, tx *sql.Tx) ([]model.Position, error) {
	query := fmt.Sprintf("SELECT DISTINCT position FROM %s ORDER BY position ASC", s.table("migration_events"))
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("listing staged positions: %w", err)
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var p model.Position
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClearStaging deletes every row from migration_events.
func (s *Store) ClearStaging(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.table("migration_events")))
	return err
}

// ClearMigrationPositions deletes every row from migration_positions.
func (s *Store) ClearMigrationPositions(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.table("migration_positions")))
	return err
}

// SetAllPositionsMigrationIndex sets positions.migration_index := target
// for every row, finalizer step 4.
func (s *Store) SetAllPositionsMigrationIndex(ctx context.Context, tx *sql.Tx, target int) error {
	query := fmt.Sprintf("UPDATE %s SET migration_index = $1", s.table("positions"))
	_, err := tx.ExecContext(ctx, query, target)
	return err
}

// AllLiveEventsOrdered returns every live event ordered by (position,
// weight), used to rebuild the derived models table.
func (s *Store) AllLiveEventsOrdered(ctx context.Context, tx *sql.Tx) ([]RawEvent, error) {
	query := fmt.Sprintf("SELECT id, position, weight, fqid, type, data FROM %s ORDER BY position ASC, weight ASC", s.table("events"))
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading live events: %w", err)
	}
	defer rows.Close()

	var out []RawEvent
	for rows.Next() {
		var r RawEvent
		if err := rows.Scan(&r.ID, &r.Position, &r.Weight, &r.Fqid, &r.Type, &r.Data); err != nil {
			return nil, fmt.Errorf("scanning live event: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceModels truncates the models table and writes one row per model.
func (s *Store) ReplaceModels(ctx context.Context, tx *sql.Tx, models map[model.Fqid]*model.Model) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.table("models"))); err != nil {
		return fmt.Errorf("clearing models: %w", err)
	}
	insert := fmt.Sprintf("INSERT INTO %s (fqid, data, deleted) VALUES ($1, $2, $3)", s.table("models"))
	for fqid, m := range models {
		data, err := json.Marshal(m.Fields)
		if err != nil {
			return fmt.Errorf("serializing model %q: %w", fqid, err)
		}
		if _, err := tx.ExecContext(ctx, insert, string(fqid), data, m.MetaDeleted); err != nil {
			return fmt.Errorf("inserting model %q: %w", fqid, err)
		}
	}
	return nil
}
