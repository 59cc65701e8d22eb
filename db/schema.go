// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
//
// The DDL is kept portable across sqlite and postgres: no NOW() defaults
// (timestamps are always passed explicitly), current_issue stored as a
// JSON text column.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const schema = `
-- Rounds
CREATE TABLE IF NOT EXISTS round (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'finished')),
    current_issue TEXT,
    current_issue_id TEXT,
    created_at TIMESTAMP NOT NULL,
    last_activity_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_round_status ON round(status);
CREATE INDEX IF NOT EXISTS idx_round_last_activity ON round(status, last_activity_at);

-- Participants
CREATE TABLE IF NOT EXISTS participant (
    round_id TEXT NOT NULL REFERENCES round(id) ON DELETE CASCADE,
    viewer_token TEXT NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL DEFAULT 'voter' CHECK (kind IN ('driver', 'voter')),
    connected INTEGER NOT NULL DEFAULT 1,
    joined_at TIMESTAMP NOT NULL,
    ip_hash TEXT,
    PRIMARY KEY (round_id, viewer_token)
);

CREATE INDEX IF NOT EXISTS idx_participant_round ON participant(round_id);

-- Votes
CREATE TABLE IF NOT EXISTS vote (
    round_id TEXT NOT NULL REFERENCES round(id) ON DELETE CASCADE,
    issue_id TEXT NOT NULL,
    viewer_token TEXT NOT NULL,
    value REAL,
    submitted_at TIMESTAMP NOT NULL,
    PRIMARY KEY (round_id, issue_id, viewer_token)
);

CREATE INDEX IF NOT EXISTS idx_vote_round_issue ON vote(round_id, issue_id);

-- Issue snapshots served through the views proxy; lets the set-issue
-- endpoint resolve an issue id to its full payload.
CREATE TABLE IF NOT EXISTS issue_snapshot (
    id TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    cached_at TIMESTAMP NOT NULL
);
`
