// SPDX-License-Identifier: Apache-2.0

// Package model defines the value types replay produces: the fully
// qualified id of a model and the model itself.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MaxFqidLength is the maximum length, in bytes, of a textual fqid.
const MaxFqidLength = 255

// MaxCollectionLength is the maximum length, in bytes, of a collection name.
const MaxCollectionLength = 64

// Position identifies an atomic commit in the event log.
type Position int64

// Fqid is a fully qualified id: "<collection>/<id>".
type Fqid string

// NewFqid builds a Fqid from a collection and a positive integer id.
func NewFqid(collection string, id int64) (Fqid, error) {
	if id <= 0 {
		return "", InvalidFormatError{Reason: fmt.Sprintf("id %d is not positive", id)}
	}
	if len(collection) == 0 || len(collection) > MaxCollectionLength {
		return "", InvalidFormatError{Reason: fmt.Sprintf("collection %q has invalid length", collection)}
	}
	fqid := Fqid(collection + "/" + strconv.FormatInt(id, 10))
	if err := fqid.Validate(); err != nil {
		return "", err
	}
	return fqid, nil
}

// Validate checks that the fqid has the "<collection>/<id>" shape and
// respects the bounded lengths of spec.md's data model.
func (f Fqid) Validate() error {
	s := string(f)
	if len(s) == 0 || len(s) > MaxFqidLength {
		return InvalidFormatError{Reason: fmt.Sprintf("fqid %q exceeds maximum length", s)}
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return InvalidFormatError{Reason: fmt.Sprintf("fqid %q is not of the form collection/id", s)}
	}
	if len(parts[0]) > MaxCollectionLength {
		return InvalidFormatError{Reason: fmt.Sprintf("collection in fqid %q exceeds maximum length", s)}
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return InvalidFormatError{Reason: fmt.Sprintf("fqid %q does not have a positive integer id", s)}
	}
	return nil
}

// Collection returns the collection part of the fqid.
func (f Fqid) Collection() string {
	parts := strings.SplitN(string(f), "/", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[0]
}

// Id returns the id part of the fqid.
func (f Fqid) Id() int64 {
	parts := strings.SplitN(string(f), "/", 2)
	if len(parts) != 2 {
		return 0
	}
	id, _ := strconv.ParseInt(parts[1], 10, 64)
	return id
}

// Model is the replay-derived value of an fqid at a given
// (position, migration_index). The reserved meta_deleted/meta_position
// fields are carried out-of-band, never as map entries.
type Model struct {
	Fqid         Fqid
	Fields       map[string]json.RawMessage
	MetaDeleted  bool
	MetaPosition Position
}

// Clone returns a deep copy of the model so accessors can hand out
// models without callers mutating shared state.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	fields := make(map[string]json.RawMessage, len(m.Fields))
	for k, v := range m.Fields {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		fields[k] = cp
	}
	return &Model{
		Fqid:         m.Fqid,
		Fields:       fields,
		MetaDeleted:  m.MetaDeleted,
		MetaPosition: m.MetaPosition,
	}
}

// MetaFieldPrefix is the reserved prefix for meta fields, matching the
// original datastore's "meta_" convention. Field names supplied to
// events must never use it.
const MetaFieldPrefix = "meta"

// IsReservedField reports whether name is a reserved meta field name.
func IsReservedField(name string) bool {
	return strings.HasPrefix(name, MetaFieldPrefix+"_")
}
