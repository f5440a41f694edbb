// SPDX-License-Identifier: Apache-2.0

package migration_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evlog/migrator/pkg/event"
	"github.com/evlog/migrator/pkg/migration"
)

// renameField is a minimal EventRewriter used to exercise BaseStep's
// default fan-out and the registry's lookup/validation behavior.
type renameField struct {
	migration.BaseStep
	target int
	from   string
	to     string
}

func newRenameField(target int, from, to string) *renameField {
	r := &renameField{target: target, from: from, to: to}
	r.Rewriter = r
	return r
}

func (r *renameField) TargetMigrationIndex() int { return r.target }

func (r *renameField) MigrateEvent(_ context.Context, e event.Event) ([]event.Event, error) {
	c, ok := e.(*event.Create)
	if !ok {
		return nil, nil
	}
	v, ok := c.Fields[r.from]
	if !ok {
		return nil, nil
	}
	fields := make(map[string]json.RawMessage, len(c.Fields))
	for k, fv := range c.Fields {
		if k == r.from {
			continue
		}
		fields[k] = fv
	}
	fields[r.to] = v
	return []event.Event{&event.Create{FqidValue: c.FqidValue, Fields: fields}}, nil
}

func TestRegistryValidateDetectsGap(t *testing.T) {
	t.Parallel()

	r := migration.NewRegistry(newRenameField(2, "f", "f_new"))

	require.NoError(t, r.Validate(1, 2))

	err := r.Validate(1, 3)
	require.Error(t, err)
	var bad migration.BadCodingError
	require.ErrorAs(t, err, &bad)
}

func TestRegistryStepLookup(t *testing.T) {
	t.Parallel()

	step := newRenameField(2, "f", "f_new")
	r := migration.NewRegistry(step)

	got, ok := r.Step(2)
	require.True(t, ok)
	assert.Equal(t, 2, got.TargetMigrationIndex())

	_, ok = r.Step(3)
	assert.False(t, ok)
}
