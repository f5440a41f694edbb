// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/json"

	"github.com/evlog/migrator/pkg/model"
)

// ModifiedFields returns the field names touched (added, overwritten or
// removed) by e. It is not consulted by the migrator itself; it exists
// for parity with the write path so that rewritten events can be
// re-consumed by downstream pipelines that track field-level changes.
func ModifiedFields(e Event) map[string]struct{} {
	fields := map[string]struct{}{}
	switch ev := e.(type) {
	case *Create:
		for k := range ev.Fields {
			fields[k] = struct{}{}
		}
	case *Update:
		for k := range ev.Fields {
			fields[k] = struct{}{}
		}
	case *DeleteFields:
		for _, k := range ev.Fields {
			fields[k] = struct{}{}
		}
	case *ListUpdate:
		for k := range ev.Add {
			fields[k] = struct{}{}
		}
		for k := range ev.Remove {
			fields[k] = struct{}{}
		}
	case *Delete, *Restore:
		// lifecycle-only events touch no fields
	}
	return fields
}

// Apply returns the model that results from applying e to current at
// position. current may be nil if the fqid has never existed.
func Apply(e Event, current *model.Model, position model.Position) (*model.Model, error) {
	fqid := e.Fqid()

	switch ev := e.(type) {
	case *Create:
		if current != nil && !current.MetaDeleted {
			return nil, ModelExistsError{Fqid: fqid, Position: position}
		}
		fields := make(map[string]json.RawMessage, len(ev.Fields))
		for k, v := range ev.Fields {
			cp := make(json.RawMessage, len(v))
			copy(cp, v)
			fields[k] = cp
		}
		return &model.Model{
			Fqid:         fqid,
			Fields:       fields,
			MetaDeleted:  false,
			MetaPosition: position,
		}, nil

	case *Update:
		next, err := requireActive(current, fqid, position)
		if err != nil {
			return nil, err
		}
		for k, v := range ev.Fields {
			if !v.IsSpecified() {
				continue
			}
			if v.IsNull() {
				delete(next.Fields, k)
				continue
			}
			val, err := v.Get()
			if err != nil {
				return nil, err
			}
			cp := make(json.RawMessage, len(val))
			copy(cp, val)
			next.Fields[k] = cp
		}
		next.MetaPosition = position
		return next, nil

	case *DeleteFields:
		next, err := requireActive(current, fqid, position)
		if err != nil {
			return nil, err
		}
		for _, k := range ev.Fields {
			delete(next.Fields, k)
		}
		next.MetaPosition = position
		return next, nil

	case *ListUpdate:
		next, err := requireActive(current, fqid, position)
		if err != nil {
			return nil, err
		}
		touched := map[string]struct{}{}
		for k := range ev.Add {
			touched[k] = struct{}{}
		}
		for k := range ev.Remove {
			touched[k] = struct{}{}
		}
		for field := range touched {
			elems, err := decodeArray(next.Fields[field])
			if err != nil {
				return nil, err
			}
			elems = unionElems(elems, ev.Add[field])
			elems = differenceElems(elems, ev.Remove[field])
			raw, err := encodeArray(elems)
			if err != nil {
				return nil, err
			}
			next.Fields[field] = raw
		}
		next.MetaPosition = position
		return next, nil

	case *Delete:
		next, err := requireActive(current, fqid, position)
		if err != nil {
			return nil, err
		}
		next.MetaDeleted = true
		next.MetaPosition = position
		return next, nil

	case *Restore:
		if current == nil || !current.MetaDeleted {
			return nil, ModelNotDeletedError{Fqid: fqid, Position: position}
		}
		next := current.Clone()
		next.MetaDeleted = false
		next.MetaPosition = position
		return next, nil

	default:
		return nil, BadCodingError{Reason: "unknown event type in Apply"}
	}
}

func requireActive(current *model.Model, fqid model.Fqid, position model.Position) (*model.Model, error) {
	if current == nil || current.MetaDeleted {
		return nil, ModelDoesNotExistError{Fqid: fqid, Position: position}
	}
	return current.Clone(), nil
}

func decodeArray(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	return elems, nil
}

func encodeArray(elems []json.RawMessage) (json.RawMessage, error) {
	if elems == nil {
		elems = []json.RawMessage{}
	}
	return json.Marshal(elems)
}

func unionElems(existing, add []json.RawMessage) []json.RawMessage {
	seen := make(map[string]struct{}, len(existing))
	result := make([]json.RawMessage, 0, len(existing)+len(add))
	for _, e := range existing {
		key := string(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, e)
	}
	for _, e := range add {
		key := string(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, e)
	}
	return result
}

func differenceElems(existing, remove []json.RawMessage) []json.RawMessage {
	if len(remove) == 0 {
		return existing
	}
	removeSet := make(map[string]struct{}, len(remove))
	for _, r := range remove {
		removeSet[string(r)] = struct{}{}
	}
	result := make([]json.RawMessage, 0, len(existing))
	for _, e := range existing {
		if _, ok := removeSet[string(e)]; ok {
			continue
		}
		result = append(result, e)
	}
	return result
}
