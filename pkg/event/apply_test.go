// SPDX-License-Identifier: Apache-2.0

package event_test

import (
	"encoding/json"
	"testing"

	"github.com/oapi-codegen/nullable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evlog/migrator/pkg/event"
	"github.com/evlog/migrator/pkg/model"
)

func mustFqid(t *testing.T, collection string, id int64) model.Fqid {
	t.Helper()
	fqid, err := model.NewFqid(collection, id)
	require.NoError(t, err)
	return fqid
}

func TestApplyCreate(t *testing.T) {
	fqid := mustFqid(t, "a", 1)
	e := &event.Create{FqidValue: fqid, Fields: map[string]json.RawMessage{"f": json.RawMessage(`3`)}}

	m, err := event.Apply(e, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, fqid, m.Fqid)
	assert.False(t, m.MetaDeleted)
	assert.Equal(t, model.Position(1), m.MetaPosition)
	assert.Equal(t, json.RawMessage(`3`), m.Fields["f"])
}

func TestApplyCreateOnExistingFails(t *testing.T) {
	fqid := mustFqid(t, "a", 1)
	existing := &model.Model{Fqid: fqid, Fields: map[string]json.RawMessage{}}
	e := &event.Create{FqidValue: fqid, Fields: map[string]json.RawMessage{"f": json.RawMessage(`1`)}}

	_, err := event.Apply(e, existing, 2)
	require.Error(t, err)
	assert.IsType(t, event.ModelExistsError{}, err)
}

func TestApplyCreateOnSoftDeletedSucceeds(t *testing.T) {
	fqid := mustFqid(t, "a", 1)
	deleted := &model.Model{Fqid: fqid, Fields: map[string]json.RawMessage{}, MetaDeleted: true}
	e := &event.Create{FqidValue: fqid, Fields: map[string]json.RawMessage{"f": json.RawMessage(`1`)}}

	m, err := event.Apply(e, deleted, 2)
	require.NoError(t, err)
	assert.False(t, m.MetaDeleted)
}

func TestApplyUpdateNullDeletesField(t *testing.T) {
	fqid := mustFqid(t, "a", 1)
	existing := &model.Model{Fqid: fqid, Fields: map[string]json.RawMessage{
		"f": json.RawMessage(`3`),
		"g": json.RawMessage(`"keep"`),
	}}

	fields := map[string]nullable.Nullable[json.RawMessage]{}
	var nullVal nullable.Nullable[json.RawMessage]
	nullVal.SetNull()
	fields["f"] = nullVal
	var setVal nullable.Nullable[json.RawMessage]
	setVal.Set(json.RawMessage(`9`))
	fields["h"] = setVal

	e := &event.Update{FqidValue: fqid, Fields: fields}
	m, err := event.Apply(e, existing, 2)
	require.NoError(t, err)

	_, hasF := m.Fields["f"]
	assert.False(t, hasF)
	assert.Equal(t, json.RawMessage(`"keep"`), m.Fields["g"])
	assert.Equal(t, json.RawMessage(`9`), m.Fields["h"])
}

func TestApplyUpdateOnMissingModelFails(t *testing.T) {
	fqid := mustFqid(t, "a", 1)
	e := &event.Update{FqidValue: fqid, Fields: map[string]nullable.Nullable[json.RawMessage]{}}

	_, err := event.Apply(e, nil, 1)
	require.Error(t, err)
	assert.IsType(t, event.ModelDoesNotExistError{}, err)
}

func TestApplyDeleteFields(t *testing.T) {
	fqid := mustFqid(t, "a", 1)
	existing := &model.Model{Fqid: fqid, Fields: map[string]json.RawMessage{
		"f": json.RawMessage(`1`),
		"g": json.RawMessage(`2`),
	}}

	e := &event.DeleteFields{FqidValue: fqid, Fields: []string{"f"}}
	m, err := event.Apply(e, existing, 2)
	require.NoError(t, err)

	_, hasF := m.Fields["f"]
	assert.False(t, hasF)
	assert.Equal(t, json.RawMessage(`2`), m.Fields["g"])
}

func TestApplyListUpdateUnionAndDifference(t *testing.T) {
	fqid := mustFqid(t, "a", 1)
	existing := &model.Model{Fqid: fqid, Fields: map[string]json.RawMessage{
		"tags": json.RawMessage(`[1,2]`),
	}}

	e := &event.ListUpdate{
		FqidValue: fqid,
		Add:       map[string][]json.RawMessage{"tags": {json.RawMessage(`2`), json.RawMessage(`3`)}},
		Remove:    map[string][]json.RawMessage{"tags": {json.RawMessage(`1`)}},
	}
	m, err := event.Apply(e, existing, 2)
	require.NoError(t, err)

	var tags []int
	require.NoError(t, json.Unmarshal(m.Fields["tags"], &tags))
	assert.ElementsMatch(t, []int{2, 3}, tags)
}

func TestApplyListUpdateOnMissingFieldTreatsAsEmpty(t *testing.T) {
	fqid := mustFqid(t, "a", 1)
	existing := &model.Model{Fqid: fqid, Fields: map[string]json.RawMessage{}}

	e := &event.ListUpdate{
		FqidValue: fqid,
		Add:       map[string][]json.RawMessage{"tags": {json.RawMessage(`1`)}},
	}
	m, err := event.Apply(e, existing, 2)
	require.NoError(t, err)

	var tags []int
	require.NoError(t, json.Unmarshal(m.Fields["tags"], &tags))
	assert.Equal(t, []int{1}, tags)
}

func TestApplyDeleteAndRestore(t *testing.T) {
	fqid := mustFqid(t, "a", 1)
	existing := &model.Model{Fqid: fqid, Fields: map[string]json.RawMessage{}}

	deleted, err := event.Apply(&event.Delete{FqidValue: fqid}, existing, 2)
	require.NoError(t, err)
	assert.True(t, deleted.MetaDeleted)

	_, err = event.Apply(&event.Restore{FqidValue: fqid}, existing, 3)
	require.Error(t, err)
	assert.IsType(t, event.ModelNotDeletedError{}, err)

	restored, err := event.Apply(&event.Restore{FqidValue: fqid}, deleted, 3)
	require.NoError(t, err)
	assert.False(t, restored.MetaDeleted)
	assert.Equal(t, model.Position(3), restored.MetaPosition)
}

func TestModifiedFields(t *testing.T) {
	fqid := mustFqid(t, "a", 1)

	create := &event.Create{FqidValue: fqid, Fields: map[string]json.RawMessage{"f": json.RawMessage(`1`), "g": json.RawMessage(`2`)}}
	assert.Equal(t, map[string]struct{}{"f": {}, "g": {}}, event.ModifiedFields(create))

	del := &event.Delete{FqidValue: fqid}
	assert.Empty(t, event.ModifiedFields(del))
}
