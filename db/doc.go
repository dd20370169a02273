// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles database connection and schema creation.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.

# Tables

  - poll: Poll metadata and lifecycle state
  - poll_option: Ordered options with their reaction markers
  - vote: Recorded choices

# Relationships

	poll 1──* poll_option
	poll 1──* vote (by id, unenforced)

The vote table carries no foreign key on purpose: orphaned votes are a
drift class the reconciliation engine detects and deletes, and the
queries that hunt for them need the rows to be representable. Poll
deletion removes its votes in the same transaction instead.

# Drivers

Open selects between modernc.org/sqlite (embedded, also used by the
test suite) and lib/pq (server deployments). All queries use $1-style
placeholders, which both drivers accept.
*/
package db
