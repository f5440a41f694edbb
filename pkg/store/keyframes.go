// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/evlog/migrator/pkg/model"
)

// ReadKeyframe returns the full model set persisted at (p, migrationIndex),
// and whether a keyframe exists there at all.
func (s *Store) ReadKeyframe(ctx context.Context, tx *sql.Tx, p model.Position, migrationIndex int) (map[model.Fqid]*model.Model, bool, error) {
	refQuery := fmt.Sprintf(
		"SELECT keyframe_ref FROM %s WHERE position = $1 AND migration_index = $2",
		s.table("migration_keyframes"),
	)
	var ref uuid.UUID
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, refQuery, p, migrationIndex).Scan(&ref)
	} else {
		err = s.db.RawConn().QueryRowContext(ctx, refQuery, p, migrationIndex).Scan(&ref)
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading keyframe at (%d, %d): %w", p, migrationIndex, err)
	}

	modelsQuery := fmt.Sprintf("SELECT fqid, data FROM %s WHERE keyframe_ref = $1", s.table("migration_keyframe_models"))
	var rows *sql.Rows
	if tx != nil {
		rows, err = tx.QueryContext(ctx, modelsQuery, ref)
	} else {
		rows, err = s.db.QueryContext(ctx, modelsQuery, ref)
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading keyframe models for %s: %w", ref, err)
	}
	defer rows.Close()

	out := map[model.Fqid]*model.Model{}
	for rows.Next() {
		var fqid model.Fqid
		var data json.RawMessage
		if err := rows.Scan(&fqid, &data); err != nil {
			return nil, false, err
		}
		m, err := decodeKeyframeModel(fqid, data)
		if err != nil {
			return nil, false, err
		}
		out[fqid] = m
	}
	return out, true, rows.Err()
}

// NearestKeyframeBefore returns the most recent persisted keyframe at
// migrationIndex whose position is strictly less than before, and whether
// one exists.
func (s *Store) NearestKeyframeBefore(ctx context.Context, tx *sql.Tx, before model.Position, migrationIndex int) (model.Position, map[model.Fqid]*model.Model, bool, error) {
	query := fmt.Sprintf(
		"SELECT position FROM %s WHERE migration_index = $1 AND position < $2 ORDER BY position DESC LIMIT 1",
		s.table("migration_keyframes"),
	)
	var pos model.Position
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, migrationIndex, before).Scan(&pos)
	} else {
		err = s.db.RawConn().QueryRowContext(ctx, query, migrationIndex, before).Scan(&pos)
	}
	if err == sql.ErrNoRows {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, fmt.Errorf("finding nearest keyframe before %d: %w", before, err)
	}

	models, found, err := s.ReadKeyframe(ctx, tx, pos, migrationIndex)
	if err != nil {
		return 0, nil, false, err
	}
	if !found {
		return 0, nil, false, nil
	}
	return pos, models, true, nil
}

// WriteKeyframe persists the full model set as the keyframe at
// (p, migrationIndex), minting a fresh keyframe_ref.
func (s *Store) WriteKeyframe(ctx context.Context, tx *sql.Tx, p model.Position, migrationIndex int, models map[model.Fqid]*model.Model) error {
	ref := uuid.New()
	insertKeyframe := fmt.Sprintf(
		"INSERT INTO %s (position, migration_index, keyframe_ref) VALUES ($1, $2, $3)",
		s.table("migration_keyframes"),
	)
	if _, err := tx.ExecContext(ctx, insertKeyframe, p, migrationIndex, ref); err != nil {
		return fmt.Errorf("writing keyframe at (%d, %d): %w", p, migrationIndex, err)
	}

	insertModel := fmt.Sprintf("INSERT INTO %s (keyframe_ref, fqid, data) VALUES ($1, $2, $3)", s.table("migration_keyframe_models"))
	for fqid, m := range models {
		data, err := encodeKeyframeModel(m)
		if err != nil {
			return fmt.Errorf("serializing keyframe model %q: %w", fqid, err)
		}
		if _, err := tx.ExecContext(ctx, insertModel, ref, string(fqid), data); err != nil {
			return fmt.Errorf("writing keyframe model %q: %w", fqid, err)
		}
	}
	return nil
}

// ClearKeyframes deletes every row from migration_keyframes (and, via the
// ON DELETE CASCADE foreign key, migration_keyframe_models).
func (s *Store) ClearKeyframes(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.table("migration_keyframes")))
	return err
}

// keyframeModelRow is the JSON envelope stored per (keyframe_ref, fqid)
// row, carrying the reserved meta fields alongside the field map.
type keyframeModelRow struct {
	Fields       map[string]json.RawMessage `json:"fields"`
	MetaDeleted  bool                        `json:"meta_deleted"`
	MetaPosition model.Position              `json:"meta_position"`
}

func encodeKeyframeModel(m *model.Model) (json.RawMessage, error) {
	return json.Marshal(keyframeModelRow{
		Fields:       m.Fields,
		MetaDeleted:  m.MetaDeleted,
		MetaPosition: m.MetaPosition,
	})
}

func decodeKeyframeModel(fqid model.Fqid, data json.RawMessage) (*model.Model, error) {
	var row keyframeModelRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("decoding keyframe model %q: %w", fqid, err)
	}
	return &model.Model{
		Fqid:         fqid,
		Fields:       row.Fields,
		MetaDeleted:  row.MetaDeleted,
		MetaPosition: row.MetaPosition,
	}, nil
}
