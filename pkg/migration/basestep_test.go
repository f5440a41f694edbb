// SPDX-License-Identifier: Apache-2.0

package migration_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evlog/migrator/pkg/event"
	"github.com/evlog/migrator/pkg/migration"
	"github.com/evlog/migrator/pkg/model"
)

// recordingAccessor is a minimal in-memory keyframe.Accessor that just
// records the events applied to it, enough to exercise BaseStep's default
// Migrate fan-out without a database.
type recordingAccessor struct {
	applied []event.Event
}

func (a *recordingAccessor) GetModel(context.Context, model.Fqid) (*model.Model, bool, error) {
	return nil, false, nil
}

func (a *recordingAccessor) GetAllModels(context.Context) (map[model.Fqid]*model.Model, error) {
	return nil, nil
}

func (a *recordingAccessor) ApplyEvent(_ context.Context, e event.Event, _ model.Position) error {
	a.applied = append(a.applied, e)
	return nil
}

func (a *recordingAccessor) MoveToNextPosition(context.Context, *sql.Tx, bool) error { return nil }

func TestBaseStepMigrateAppliesRenamedEventToBothAccessors(t *testing.T) {
	t.Parallel()

	step := newRenameField(2, "f", "f_new")
	old := &recordingAccessor{}
	next := &recordingAccessor{}

	fqid, err := model.NewFqid("topic", 1)
	require.NoError(t, err)

	evs := []event.Event{&event.Create{FqidValue: fqid, Fields: map[string]json.RawMessage{"f": json.RawMessage(`"old value"`)}}}
	rewritten, err := step.Migrate(context.Background(), evs, old, next, migration.PositionData{Position: 1})
	require.NoError(t, err)
	require.Len(t, rewritten, 1)

	require.Len(t, old.applied, 1)
	require.Len(t, next.applied, 1)
	assert.Equal(t, evs[0], old.applied[0])
	assert.NotSame(t, evs[0], next.applied[0])
}
