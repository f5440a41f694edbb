// SPDX-License-Identifier: Apache-2.0

// Package event implements the tagged event variant that the migration
// engine replays: the six event kinds of the event-sourced datastore,
// their wire payload shapes, and the fold that applies one event to a
// model.
package event

import (
	"encoding/json"

	"github.com/oapi-codegen/nullable"

	"github.com/evlog/migrator/pkg/model"
)

// Type discriminates the six event kinds. Dispatch throughout this
// package and its callers switches explicitly on Type rather than
// using reflection.
type Type string

const (
	TypeCreate       Type = "create"
	TypeUpdate       Type = "update"
	TypeDeleteFields Type = "deletefields"
	TypeListUpdate   Type = "listupdate"
	TypeDelete       Type = "delete"
	TypeRestore      Type = "restore"
)

// Event is the read view shared by all six variants.
type Event interface {
	Type() Type
	Fqid() model.Fqid
	// GetData returns the type-specific wire payload, excluding fqid and
	// type which are carried as separate columns/fields by callers.
	GetData() (json.RawMessage, error)
}

// Create creates a model; it must not already exist in the active world.
type Create struct {
	FqidValue model.Fqid
	Fields    map[string]json.RawMessage
}

func (e *Create) Type() Type          { return TypeCreate }
func (e *Create) Fqid() model.Fqid    { return e.FqidValue }
func (e *Create) GetData() (json.RawMessage, error) {
	return json.Marshal(struct {
		Fields map[string]json.RawMessage `json:"fields"`
	}{Fields: e.Fields})
}

// Update merges fields into an existing model. A present key whose
// value is JSON null deletes that field; an absent key leaves the
// field untouched. The distinction is represented with
// nullable.Nullable so "absent" and "present but null" don't collapse
// to the same Go zero value.
type Update struct {
	FqidValue model.Fqid
	Fields    map[string]nullable.Nullable[json.RawMessage]
}

func (e *Update) Type() Type       { return TypeUpdate }
func (e *Update) Fqid() model.Fqid { return e.FqidValue }
func (e *Update) GetData() (json.RawMessage, error) {
	raw := make(map[string]json.RawMessage, len(e.Fields))
	for k, v := range e.Fields {
		if !v.IsSpecified() {
			continue
		}
		if v.IsNull() {
			raw[k] = json.RawMessage("null")
			continue
		}
		val, err := v.Get()
		if err != nil {
			return nil, err
		}
		raw[k] = val
	}
	return json.Marshal(struct {
		Fields map[string]json.RawMessage `json:"fields"`
	}{Fields: raw})
}

// DeleteFields unsets the listed fields on a model.
type DeleteFields struct {
	FqidValue model.Fqid
	Fields    []string
}

func (e *DeleteFields) Type() Type       { return TypeDeleteFields }
func (e *DeleteFields) Fqid() model.Fqid { return e.FqidValue }
func (e *DeleteFields) GetData() (json.RawMessage, error) {
	return json.Marshal(struct {
		Fields []string `json:"fields"`
	}{Fields: e.Fields})
}

// ListUpdate performs a set-union / set-difference on array-valued
// fields. A target field missing from the current model is treated as
// empty before the add/remove is applied.
type ListUpdate struct {
	FqidValue model.Fqid
	Add       map[string][]json.RawMessage
	Remove    map[string][]json.RawMessage
}

func (e *ListUpdate) Type() Type       { return TypeListUpdate }
func (e *ListUpdate) Fqid() model.Fqid { return e.FqidValue }
func (e *ListUpdate) GetData() (json.RawMessage, error) {
	return json.Marshal(struct {
		Add    map[string][]json.RawMessage `json:"add"`
		Remove map[string][]json.RawMessage `json:"remove"`
	}{Add: e.Add, Remove: e.Remove})
}

// Delete soft-deletes a model.
type Delete struct {
	FqidValue model.Fqid
}

func (e *Delete) Type() Type                        { return TypeDelete }
func (e *Delete) Fqid() model.Fqid                  { return e.FqidValue }
func (e *Delete) GetData() (json.RawMessage, error) { return json.Marshal(struct{}{}) }

// Restore reverses a Delete; the model must currently be soft-deleted.
type Restore struct {
	FqidValue model.Fqid
}

func (e *Restore) Type() Type                        { return TypeRestore }
func (e *Restore) Fqid() model.Fqid                  { return e.FqidValue }
func (e *Restore) GetData() (json.RawMessage, error) { return json.Marshal(struct{}{}) }

// SplitUpdate implements the documented wire-payload rule that an
// update carrying both `fields` and `list_fields` is stored as two
// separate events: an Update followed by a ListUpdate. Callers
// constructing events from a combined wire payload should use this
// instead of constructing *Update directly.
func SplitUpdate(fqid model.Fqid, fields map[string]nullable.Nullable[json.RawMessage], add, remove map[string][]json.RawMessage) []Event {
	var events []Event
	if len(fields) > 0 {
		events = append(events, &Update{FqidValue: fqid, Fields: fields})
	}
	if len(add) > 0 || len(remove) > 0 {
		events = append(events, &ListUpdate{FqidValue: fqid, Add: add, Remove: remove})
	}
	return events
}
