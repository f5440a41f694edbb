// SPDX-License-Identifier: Apache-2.0

package store_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evlog/migrator/internal/testutils"
	"github.com/evlog/migrator/pkg/event"
	"github.com/evlog/migrator/pkg/model"
	"github.com/evlog/migrator/pkg/store"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

func TestInitIsIdempotent(t *testing.T) {
	t.Parallel()

	testutils.WithUninitializedStore(t, func(st *store.Store) {
		ctx := context.Background()
		require.NoError(t, st.Init(ctx))
		require.NoError(t, st.Init(ctx))

		count, err := st.CountPositions(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestPositionStatsOnEmptyStore(t *testing.T) {
	t.Parallel()

	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, _ *sql.DB) {
		ctx := context.Background()

		minPos, err := st.MinMigrationIndexPositions(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, minPos)

		count, err := st.CountPositions(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		_, found, err := st.MaxMigrationPosition(ctx)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestInsertAndListPositions(t *testing.T) {
	t.Parallel()

	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		ctx := context.Background()

		insertPosition(t, db, st.Schema(), 1, 1)
		insertPosition(t, db, st.Schema(), 2, 1)
		insertPosition(t, db, st.Schema(), 3, 2)

		count, err := st.CountPositions(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		minPos, err := st.MinMigrationIndexPositions(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, minPos)

		positions, err := st.ListPositionsFrom(ctx, 2)
		require.NoError(t, err)
		require.Len(t, positions, 2)
		assert.Equal(t, model.Position(2), positions[0].Position)
		assert.Equal(t, model.Position(3), positions[1].Position)

		before, err := st.PositionBefore(ctx, 3)
		require.NoError(t, err)
		require.NotNil(t, before)
		assert.Equal(t, model.Position(2), before.Position)

		first, err := st.PositionBefore(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, first)
	})
}

func TestUpsertAndReadMigrationPosition(t *testing.T) {
	t.Parallel()

	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		ctx := context.Background()
		insertPosition(t, db, st.Schema(), 1, 1)

		err := st.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			if err := store.UpsertMigrationPosition(ctx, tx, st, 1, 2); err != nil {
				return err
			}
			mi, found, err := store.MigrationIndexForPosition(ctx, tx, st, 1)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, 2, mi)

			return store.UpsertMigrationPosition(ctx, tx, st, 1, 3)
		})
		require.NoError(t, err)

		err = st.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			mi, found, err := store.MigrationIndexForPosition(ctx, tx, st, 1)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, 3, mi)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestStagingEventLifecycle(t *testing.T) {
	t.Parallel()

	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		ctx := context.Background()
		insertPosition(t, db, st.Schema(), 1, 1)

		fqid, err := model.NewFqid("topic", 1)
		require.NoError(t, err)

		err = st.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			create := &event.Create{FqidValue: fqid, Fields: map[string]json.RawMessage{"title": json.RawMessage(`"hello"`)}}
			return st.InsertStagingEvent(ctx, tx, 1, 0, create)
		})
		require.NoError(t, err)

		var ids []int64
		err = st.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			var err error
			ids, err = st.StagingEventIDs(ctx, tx, 1)
			return err
		})
		require.NoError(t, err)
		require.Len(t, ids, 1)

		raw, err := st.EventsFromStaging(ctx, nil, 1)
		require.NoError(t, err)
		require.Len(t, raw, 1)
		assert.Equal(t, event.TypeCreate, raw[0].Type)

		err = st.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			return st.DeleteStagingEvents(ctx, tx, ids)
		})
		require.NoError(t, err)

		raw, err = st.EventsFromStaging(ctx, nil, 1)
		require.NoError(t, err)
		assert.Empty(t, raw)
	})
}

func TestReplaceLiveEventsFromStaging(t *testing.T) {
	t.Parallel()

	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		ctx := context.Background()
		insertPosition(t, db, st.Schema(), 1, 1)

		fqid, err := model.NewFqid("topic", 1)
		require.NoError(t, err)

		err = st.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			create := &event.Create{FqidValue: fqid, Fields: map[string]json.RawMessage{"title": json.RawMessage(`"renamed"`)}}
			return st.InsertStagingEvent(ctx, tx, 1, 0, create)
		})
		require.NoError(t, err)

		err = st.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			return st.ReplaceLiveEventsFromStaging(ctx, tx, 1)
		})
		require.NoError(t, err)

		live, err := st.EventsFromLive(ctx, nil, 1)
		require.NoError(t, err)
		require.Len(t, live, 1)
		assert.Equal(t, fqid, live[0].Fqid)
	})
}

func TestKeyframeRoundTrip(t *testing.T) {
	t.Parallel()

	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		ctx := context.Background()
		insertPosition(t, db, st.Schema(), 1, 1)
		insertPosition(t, db, st.Schema(), 5, 1)

		fqid, err := model.NewFqid("topic", 1)
		require.NoError(t, err)
		models := map[model.Fqid]*model.Model{
			fqid: {Fqid: fqid, Fields: map[string]json.RawMessage{"title": json.RawMessage(`"hi"`)}, MetaPosition: 1},
		}

		err = st.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			return st.WriteKeyframe(ctx, tx, 1, 1, models)
		})
		require.NoError(t, err)

		got, found, err := st.ReadKeyframe(ctx, nil, 1, 1)
		require.NoError(t, err)
		require.True(t, found)
		require.Contains(t, got, fqid)
		assert.Equal(t, model.Position(1), got[fqid].MetaPosition)

		pos, got, found, err := st.NearestKeyframeBefore(ctx, nil, 5, 1)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, model.Position(1), pos)
		assert.Contains(t, got, fqid)

		err = st.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			return st.ClearKeyframes(ctx, tx)
		})
		require.NoError(t, err)

		_, found, err = st.ReadKeyframe(ctx, nil, 1, 1)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func insertPosition(t *testing.T, db *sql.DB, schema string, position model.Position, migrationIndex int) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO `+schema+`.positions (position, migration_index, user_id) VALUES ($1, $2, 1)`,
		position, migrationIndex)
	require.NoError(t, err)
}
