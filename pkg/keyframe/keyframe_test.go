// SPDX-License-Identifier: Apache-2.0

package keyframe_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evlog/migrator/internal/testutils"
	"github.com/evlog/migrator/pkg/event"
	"github.com/evlog/migrator/pkg/keyframe"
	"github.com/evlog/migrator/pkg/model"
	"github.com/evlog/migrator/pkg/store"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

func TestInitialAccessorStartsEmptyAndPersists(t *testing.T) {
	t.Parallel()

	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		ctx := context.Background()
		insertPosition(t, db, st.Schema(), 1)

		fqid, err := model.NewFqid("topic", 1)
		require.NoError(t, err)

		err = st.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			acc, err := keyframe.NewAccessor(ctx, tx, st, 0, 1, 1)
			require.NoError(t, err)

			_, found, err := acc.GetModel(ctx, fqid)
			require.NoError(t, err)
			assert.False(t, found)

			create := &event.Create{FqidValue: fqid, Fields: map[string]json.RawMessage{"title": json.RawMessage(`"hi"`)}}
			require.NoError(t, acc.ApplyEvent(ctx, create, 1))

			got, found, err := acc.GetModel(ctx, fqid)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, json.RawMessage(`"hi"`), got.Fields["title"])

			return acc.MoveToNextPosition(ctx, tx, true)
		})
		require.NoError(t, err)

		models, found, err := st.ReadKeyframe(ctx, nil, 1, 1)
		require.NoError(t, err)
		require.True(t, found)
		assert.Contains(t, models, fqid)
	})
}

func TestDatabaseAccessorReadsPersistedKeyframe(t *testing.T) {
	t.Parallel()

	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		ctx := context.Background()
		insertPosition(t, db, st.Schema(), 1)
		insertPosition(t, db, st.Schema(), 2)

		fqid, err := model.NewFqid("topic", 1)
		require.NoError(t, err)
		seed := map[model.Fqid]*model.Model{
			fqid: {Fqid: fqid, Fields: map[string]json.RawMessage{"title": json.RawMessage(`"seed"`)}, MetaPosition: 1},
		}
		err = st.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			return st.WriteKeyframe(ctx, tx, 1, 1, seed)
		})
		require.NoError(t, err)

		err = st.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			acc, err := keyframe.NewAccessor(ctx, tx, st, 1, 1, 2)
			require.NoError(t, err)

			got, found, err := acc.GetModel(ctx, fqid)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, json.RawMessage(`"seed"`), got.Fields["title"])
			return nil
		})
		require.NoError(t, err)
	})
}

func TestDatabaseAccessorFoldsForwardWhenNoKeyframeExists(t *testing.T) {
	t.Parallel()

	testutils.WithStoreAndConnectionToContainer(t, func(st *store.Store, db *sql.DB) {
		ctx := context.Background()
		insertPosition(t, db, st.Schema(), 1)
		insertPosition(t, db, st.Schema(), 2)

		fqid, err := model.NewFqid("topic", 1)
		require.NoError(t, err)
		insertLiveEvent(t, db, st.Schema(), 1, fqid, event.TypeCreate, `{"fields":{"title":"from live"}}`)

		err = st.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			acc, err := keyframe.NewAccessor(ctx, tx, st, 1, 1, 2)
			require.NoError(t, err)

			got, found, err := acc.GetModel(ctx, fqid)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, json.RawMessage(`"from live"`), got.Fields["title"])
			return nil
		})
		require.NoError(t, err)
	})
}

func insertPosition(t *testing.T, db *sql.DB, schema string, position model.Position) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO `+schema+`.positions (position, migration_index, user_id) VALUES ($1, 1, 1)`, position)
	require.NoError(t, err)
}

func insertLiveEvent(t *testing.T, db *sql.DB, schema string, position model.Position, fqid model.Fqid, typ event.Type, data string) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO `+schema+`.events (position, fqid, type, data, weight) VALUES ($1, $2, $3, $4, 0)`,
		position, string(fqid), string(typ), data)
	require.NoError(t, err)
}
