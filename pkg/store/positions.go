// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/evlog/migrator/pkg/model"
)

// RawPosition is a row of the positions table.
type RawPosition struct {
	Position       model.Position
	MigrationIndex int
	Timestamp      time.Time
	UserID         int64
	Information    json.RawMessage
}

// MinMigrationIndexPositions returns the minimum migration_index across
// live positions, defaulting to 1 when the table is empty (there is no
// position yet, so nothing is behind any target).
func (s *Store) MinMigrationIndexPositions(ctx context.Context) (int, error) {
	return s.scanIntOr1(ctx, fmt.Sprintf("SELECT min(migration_index) FROM %s", s.table("positions")))
}

// CountPositions returns the number of rows in positions.
func (s *Store) CountPositions(ctx context.Context) (int, error) {
	return s.scanInt(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.table("positions")))
}

// MinMigrationIndexMigrationPositions returns the minimum migration_index
// across migration_positions rows, defaulting to 1 when empty.
func (s *Store) MinMigrationIndexMigrationPositions(ctx context.Context) (int, error) {
	return s.scanIntOr1(ctx, fmt.Sprintf("SELECT min(migration_index) FROM %s", s.table("migration_positions")))
}

// CountMigrationPositions returns the number of rows in migration_positions.
func (s *Store) CountMigrationPositions(ctx context.Context) (int, error) {
	return s.scanInt(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.table("migration_positions")))
}

// MinLivePositionWithIndexBelow returns the oldest position in live events
// whose migration_index is strictly less than target, and whether one
// exists.
func (s *Store) MinLivePositionWithIndexBelow(ctx context.Context, target int) (model.Position, bool, error) {
	query := fmt.Sprintf("SELECT min(position) FROM %s WHERE migration_index < $1", s.table("positions"))
	return s.scanPosition(ctx, query, target)
}

// MaxMigrationPosition returns the largest position present in
// migration_positions, and whether one exists.
func (s *Store) MaxMigrationPosition(ctx context.Context) (model.Position, bool, error) {
	query := fmt.Sprintf("SELECT max(position) FROM %s", s.table("migration_positions"))
	return s.scanPosition(ctx, query)
}

// MinLivePositionAbove returns the oldest live position strictly greater
// than after, and whether one exists.
func (s *Store) MinLivePositionAbove(ctx context.Context, after model.Position) (model.Position, bool, error) {
	query := fmt.Sprintf("SELECT min(position) FROM %s WHERE position > $1", s.table("positions"))
	return s.scanPosition(ctx, query, after)
}

// ListPositionsFrom returns every position P >= start, ordered ascending.
func (s *Store) ListPositionsFrom(ctx context.Context, start model.Position) ([]RawPosition, error) {
	query := fmt.Sprintf(
		"SELECT position, migration_index, timestamp, user_id, information FROM %s WHERE position >= $1 ORDER BY position ASC",
		s.table("positions"),
	)
	rows, err := s.db.QueryContext(ctx, query, start)
	if err != nil {
		return nil, fmt.Errorf("listing positions: %w", err)
	}
	defer rows.Close()

	var out []RawPosition
	for rows.Next() {
		var p RawPosition
		if err := rows.Scan(&p.Position, &p.MigrationIndex, &p.Timestamp, &p.UserID, &p.Information); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PositionBefore returns the position immediately preceding before, the
// "anchor" of spec.md's Position Migrator, or nil if none exists.
func (s *Store) PositionBefore(ctx context.Context, before model.Position) (*RawPosition, error) {
	query := fmt.Sprintf(
		"SELECT position, migration_index, timestamp, user_id, information FROM %s WHERE position < $1 ORDER BY position DESC LIMIT 1",
		s.table("positions"),
	)
	row := s.db.RawConn().QueryRowContext(ctx, query, before)
	var p RawPosition
	if err := row.Scan(&p.Position, &p.MigrationIndex, &p.Timestamp, &p.UserID, &p.Information); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading anchor position: %w", err)
	}
	return &p, nil
}

// MigrationIndexForPosition returns migration_positions[p], and whether a
// row exists, using tx so callers can read it mid-transaction.
func MigrationIndexForPosition(ctx context.Context, tx *sql.Tx, s *Store, p model.Position) (int, bool, error) {
	query := fmt.Sprintf("SELECT migration_index FROM %s WHERE position = $1", s.table("migration_positions"))
	var mi int
	err := tx.QueryRowContext(ctx, query, p).Scan(&mi)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading migration_positions for %d: %w", p, err)
	}
	return mi, true, nil
}

// UpsertMigrationPosition writes migration_positions[p] = mi inside tx.
func UpsertMigrationPosition(ctx context.Context, tx *sql.Tx, s *Store, p model.Position, mi int) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (position, migration_index) VALUES ($1, $2)
		 ON CONFLICT (position) DO UPDATE SET migration_index = excluded.migration_index`,
		s.table("migration_positions"),
	)
	_, err := tx.ExecContext(ctx, query, p, mi)
	if err != nil {
		return fmt.Errorf("upserting migration_positions[%d] = %d: %w", p, mi, err)
	}
	return nil
}

// PositionsInRange returns every position p with from <= p <= through,
// ordered ascending, read within tx if non-nil.
func (s *Store) PositionsInRange(ctx context.Context, tx *sql.Tx, from, through model.Position) ([]model.Position, error) {
	query := fmt.Sprintf("SELECT position FROM %s WHERE position >= $1 AND position <= $2 ORDER BY position ASC", s.table("positions"))
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, from, through)
	} else {
		rows, err = s.db.QueryContext(ctx, query, from, through)
	}
	if err != nil {
		return nil, fmt.Errorf("listing positions in range: %w", err)
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

func (s *Store) scanInt(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.RawConn().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("running %q: %w", query, err)
	}
	return n, nil
}

func (s *Store) scanIntOr1(ctx context.Context, query string, args ...any) (int, error) {
	var n sql.NullInt64
	if err := s.db.RawConn().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("running %q: %w", query, err)
	}
	if !n.Valid {
		return 1, nil
	}
	return int(n.Int64), nil
}

func (s *Store) scanPosition(ctx context.Context, query string, args ...any) (model.Position, bool, error) {
	var n sql.NullInt64
	if err := s.db.RawConn().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, false, fmt.Errorf("running %q: %w", query, err)
	}
	if !n.Valid {
		return 0, false, nil
	}
	return model.Position(n.Int64), true, nil
}
