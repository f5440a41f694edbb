// SPDX-License-Identifier: Apache-2.0

package migration

import "fmt"

// MismatchingMigrationIndicesError reports a structural violation of the
// "migration_index never rises with increasing position" invariant: the
// position being processed is written under a newer index than the
// anchor immediately before it, or a seed row carries an out-of-range
// index.
type MismatchingMigrationIndicesError struct {
	Reason string
}

func (e MismatchingMigrationIndicesError) Error() string {
	return fmt.Sprintf("mismatching migration indices: %s", e.Reason)
}

// BadCodingError reports an internal contract violation: a registry gap,
// an empty event list where one is required, or similar.
type BadCodingError struct {
	Reason string
}

func (e BadCodingError) Error() string {
	return fmt.Sprintf("bad coding: %s", e.Reason)
}
