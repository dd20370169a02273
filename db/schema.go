// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// The schema avoids NOW()-style defaults so the same DDL runs on both
// sqlite and postgres; timestamps are always set by the caller.
const schema = `
-- Polls
CREATE TABLE IF NOT EXISTS poll (
    id TEXT PRIMARY KEY,
    question TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'scheduled' CHECK (status IN ('scheduled', 'active', 'closed')),
    multiple_choice BOOLEAN NOT NULL DEFAULT FALSE,
    anonymous BOOLEAN NOT NULL DEFAULT FALSE,
    open_time TIMESTAMP NOT NULL,
    close_time TIMESTAMP NOT NULL,
    presence_ref TEXT,
    channel_ref TEXT NOT NULL,
    server_ref TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_poll_status ON poll(status);

-- Options with their reaction markers, ordered by idx
CREATE TABLE IF NOT EXISTS poll_option (
    poll_id TEXT NOT NULL REFERENCES poll(id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    label TEXT NOT NULL,
    marker TEXT NOT NULL,
    PRIMARY KEY (poll_id, idx),
    UNIQUE (poll_id, label),
    UNIQUE (poll_id, marker)
);

-- Votes. The (poll_id, user_ref, option_index) constraint makes
-- duplicate multiple-choice inserts a no-op surface; the single-choice
-- one-row-per-user invariant is enforced by the vote recorder.
CREATE TABLE IF NOT EXISTS vote (
    id TEXT PRIMARY KEY,
    poll_id TEXT NOT NULL,
    user_ref TEXT NOT NULL,
    option_index INTEGER NOT NULL,
    voted_at TIMESTAMP NOT NULL,
    UNIQUE (poll_id, user_ref, option_index)
);

CREATE INDEX IF NOT EXISTS idx_vote_poll_id ON vote(poll_id);
CREATE INDEX IF NOT EXISTS idx_vote_poll_user ON vote(poll_id, user_ref);
`
