// SPDX-License-Identifier: Apache-2.0

package event

import (
	"fmt"

	"github.com/evlog/migrator/pkg/model"
)

// ModelExistsError reports a Create applied to a model that already
// exists and is not soft-deleted.
type ModelExistsError struct {
	Fqid     model.Fqid
	Position model.Position
}

func (e ModelExistsError) Error() string {
	return fmt.Sprintf("model %q already exists at position %d", e.Fqid, e.Position)
}

// ModelDoesNotExistError reports an Update, DeleteFields, ListUpdate or
// Delete applied to a model that does not exist or is soft-deleted.
type ModelDoesNotExistError struct {
	Fqid     model.Fqid
	Position model.Position
}

func (e ModelDoesNotExistError) Error() string {
	return fmt.Sprintf("model %q does not exist at position %d", e.Fqid, e.Position)
}

// ModelNotDeletedError reports a Restore applied to a model that is not
// currently soft-deleted.
type ModelNotDeletedError struct {
	Fqid     model.Fqid
	Position model.Position
}

func (e ModelNotDeletedError) Error() string {
	return fmt.Sprintf("model %q is not deleted at position %d", e.Fqid, e.Position)
}

// BadCodingError reports an internal contract violation, e.g. an empty
// event list where the caller requires at least one event.
type BadCodingError struct {
	Reason string
}

func (e BadCodingError) Error() string {
	return fmt.Sprintf("bad coding: %s", e.Reason)
}
