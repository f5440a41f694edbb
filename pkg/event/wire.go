// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/json"
	"fmt"

	"github.com/oapi-codegen/nullable"

	"github.com/evlog/migrator/pkg/model"
)

// Parse reconstructs an Event from its stored representation: the type
// discriminator, fqid column and type-specific data payload.
func Parse(typ Type, fqid model.Fqid, data json.RawMessage) (Event, error) {
	switch typ {
	case TypeCreate:
		var payload struct {
			Fields map[string]json.RawMessage `json:"fields"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("parsing create event for %q: %w", fqid, err)
		}
		return &Create{FqidValue: fqid, Fields: payload.Fields}, nil

	case TypeUpdate:
		var raw struct {
			Fields map[string]json.RawMessage `json:"fields"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing update event for %q: %w", fqid, err)
		}
		fields := make(map[string]nullable.Nullable[json.RawMessage], len(raw.Fields))
		for k, v := range raw.Fields {
			n := nullable.Nullable[json.RawMessage]{}
			if string(v) == "null" {
				n.SetNull()
			} else {
				n.Set(v)
			}
			fields[k] = n
		}
		return &Update{FqidValue: fqid, Fields: fields}, nil

	case TypeDeleteFields:
		var payload struct {
			Fields []string `json:"fields"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("parsing deletefields event for %q: %w", fqid, err)
		}
		return &DeleteFields{FqidValue: fqid, Fields: payload.Fields}, nil

	case TypeListUpdate:
		var payload struct {
			Add    map[string][]json.RawMessage `json:"add"`
			Remove map[string][]json.RawMessage `json:"remove"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("parsing listupdate event for %q: %w", fqid, err)
		}
		return &ListUpdate{FqidValue: fqid, Add: payload.Add, Remove: payload.Remove}, nil

	case TypeDelete:
		return &Delete{FqidValue: fqid}, nil

	case TypeRestore:
		return &Restore{FqidValue: fqid}, nil

	default:
		return nil, BadCodingError{Reason: fmt.Sprintf("unknown event type %q", typ)}
	}
}
