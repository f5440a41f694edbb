// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"net"

	"github.com/lib/pq"

	"github.com/evlog/migrator/pkg/migration"
	"github.com/evlog/migrator/pkg/store"
)

// ExitCode maps an error returned by Execute to the process exit code
// documented in spec.md §6: 0 success, 1 user-facing validation failure,
// 2 infrastructure failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var mismatch migration.MismatchingMigrationIndicesError
	var badCoding migration.BadCodingError
	if errors.As(err, &mismatch) || errors.As(err, &badCoding) {
		return 1
	}
	if errors.Is(err, errNotInitialized) || errors.Is(err, errFinalizeNotNeeded) {
		return 1
	}

	var dbErr store.DatabaseError
	var pqErr *pq.Error
	var netErr *net.OpError
	if errors.As(err, &dbErr) || errors.As(err, &pqErr) || errors.As(err, &netErr) {
		return 2
	}

	return 1
}
