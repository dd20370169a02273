// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package artifacts is the derived read cache and rendered-artifact
// store. Entries here are always recomputable from the ledger; the
// reconciliation engine regenerates anything missing or stale.
package artifacts

import (
	"context"
	"time"
)

// TallyKey is the cache key for a poll's aggregated counts.
func TallyKey(pollID string) string {
	return "tally/" + pollID
}

// Entry is one cached value with its write time, so staleness can be
// judged without a separate index.
type Entry struct {
	Value    []byte
	StoredAt time.Time
	TTL      time.Duration
}

// Store is the derived cache / artifact surface.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error

	// GenerateArtifact renders the durable result artifact for a closed
	// poll. Rendering internals are out of scope; implementations only
	// guarantee the artifact exists afterwards.
	GenerateArtifact(ctx context.Context, pollID string) error
	HasArtifact(ctx context.Context, pollID string) (bool, error)
}
