// SPDX-License-Identifier: Apache-2.0

package cmd

import "errors"

// errNotInitialized names a schema that has never been bootstrapped.
// ExitCode maps it to 1; no subcommand checks for a missing bootstrap or
// returns it, so such a run fails with the underlying database error.
var errNotInitialized = errors.New("migrator is not initialized, run 'evlog-migrator init' to initialize")

// errFinalizeNotNeeded is returned when finalize is invoked but a fresh
// stats check shows no fully staged migration to --target is pending.
var errFinalizeNotNeeded = errors.New("finalize is not needed: run migrate first")
