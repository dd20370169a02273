// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open connects to the database selected by dbType ("sqlite" or
// "postgres") and verifies the connection. sqlite connections are
// limited to a single open conn; the modernc driver serializes writes
// anyway and this keeps in-memory databases coherent.
func Open(dbType, url string) (*sql.DB, error) {
	var driver string
	switch dbType {
	case "sqlite":
		driver = "sqlite"
	case "postgres":
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}

	conn, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbType == "sqlite" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return conn, nil
}
