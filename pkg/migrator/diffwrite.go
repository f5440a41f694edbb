// SPDX-License-Identifier: Apache-2.0

// Package migrator walks positions in order, runs the step chain for
// each, and writes rewritten events into staging.
package migrator

import "github.com/evlog/migrator/pkg/event"

// DiffUpdate overwrites an existing staging row in place.
type DiffUpdate struct {
	ID     int64
	Weight int
	Event  event.Event
}

// DiffInsert appends a new staging row.
type DiffInsert struct {
	Weight int
	Event  event.Event
}

// DiffPlan is the set of SQL actions needed to move a position's staging
// image from its current rows to newEvents, minimizing row churn so
// primary keys stay stable across re-runs.
type DiffPlan struct {
	Updates []DiffUpdate
	Deletes []int64
	Inserts []DiffInsert
}

// ComputeDiff implements spec.md §4.4's diff-write algorithm as a pure
// function: oldIDs is the current staging row ids for a position ordered
// by weight ascending, newEvents is the rewritten list for that position.
func ComputeDiff(oldIDs []int64, newEvents []event.Event) DiffPlan {
	var plan DiffPlan

	shared := len(oldIDs)
	if len(newEvents) < shared {
		shared = len(newEvents)
	}

	for i := 0; i < shared; i++ {
		plan.Updates = append(plan.Updates, DiffUpdate{
			ID:     oldIDs[i],
			Weight: i + 1,
			Event:  newEvents[i],
		})
	}

	if len(oldIDs) > len(newEvents) {
		plan.Deletes = append(plan.Deletes, oldIDs[len(newEvents):]...)
	}

	if len(newEvents) > len(oldIDs) {
		for i := len(oldIDs); i < len(newEvents); i++ {
			plan.Inserts = append(plan.Inserts, DiffInsert{
				Weight: i + 1,
				Event:  newEvents[i],
			})
		}
	}

	return plan
}
