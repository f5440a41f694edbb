// SPDX-License-Identifier: Apache-2.0

package store

import "fmt"

// sqlInit is the bootstrap DDL for the seven tables of the event log and
// migration bookkeeping, mirroring the shape of pgroll's state schema:
// one constant, applied once by Init inside its own advisory-locked
// transaction so concurrent bootstraps don't race.
const sqlInit = `
CREATE SCHEMA IF NOT EXISTS %[1]s;

CREATE TABLE IF NOT EXISTS %[1]s.positions (
	position        BIGINT PRIMARY KEY,
	migration_index INTEGER NOT NULL,
	timestamp       TIMESTAMPTZ NOT NULL DEFAULT now(),
	user_id         BIGINT NOT NULL,
	information     JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE TABLE IF NOT EXISTS %[1]s.events (
	id       BIGSERIAL PRIMARY KEY,
	position BIGINT NOT NULL REFERENCES %[1]s.positions (position),
	fqid     TEXT NOT NULL,
	type     TEXT NOT NULL,
	data     JSONB NOT NULL,
	weight   INTEGER NOT NULL,
	UNIQUE (position, weight)
);

CREATE TABLE IF NOT EXISTS %[1]s.migration_events (
	id       BIGSERIAL PRIMARY KEY,
	position BIGINT NOT NULL,
	fqid     TEXT NOT NULL,
	type     TEXT NOT NULL,
	data     JSONB NOT NULL,
	weight   INTEGER NOT NULL,
	UNIQUE (position, weight)
);

CREATE TABLE IF NOT EXISTS %[1]s.migration_positions (
	position        BIGINT PRIMARY KEY,
	migration_index INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS %[1]s.migration_keyframes (
	position        BIGINT NOT NULL,
	migration_index INTEGER NOT NULL,
	keyframe_ref    UUID NOT NULL UNIQUE,
	PRIMARY KEY (position, migration_index)
);

CREATE TABLE IF NOT EXISTS %[1]s.migration_keyframe_models (
	keyframe_ref UUID NOT NULL REFERENCES %[1]s.migration_keyframes (keyframe_ref) ON DELETE CASCADE,
	fqid         TEXT NOT NULL,
	data         JSONB NOT NULL,
	PRIMARY KEY (keyframe_ref, fqid)
);

CREATE TABLE IF NOT EXISTS %[1]s.models (
	fqid    TEXT PRIMARY KEY,
	data    JSONB NOT NULL,
	deleted BOOLEAN NOT NULL DEFAULT false
);
`

func initSQL(schema string) string {
	return fmt.Sprintf(sqlInit, schema)
}
