// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package artifacts

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Memory is the in-process Store used by tests and the single-binary
// dev deployment.
type Memory struct {
	mu        sync.Mutex
	entries   map[string]Entry
	artifacts map[string]bool

	// GenerateErr, when set, makes GenerateArtifact fail. Failure
	// injection for reconciliation tests.
	GenerateErr error

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries:   make(map[string]Entry),
		artifacts: make(map[string]bool),
		now:       time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if e.TTL > 0 && m.now().Sub(e.StoredAt) > e.TTL {
		delete(m.entries, key)
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{Value: value, StoredAt: m.now(), TTL: ttl}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) GenerateArtifact(_ context.Context, pollID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GenerateErr != nil {
		return m.GenerateErr
	}
	if pollID == "" {
		return errors.New("poll id is required")
	}
	m.artifacts[pollID] = true
	return nil
}

func (m *Memory) HasArtifact(_ context.Context, pollID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.artifacts[pollID], nil
}

// Age returns how old the entry under key is, and whether it exists.
func (m *Memory) Age(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return 0, false
	}
	return m.now().Sub(e.StoredAt), true
}

// SetStoredAt backdates an entry. Test hook for staleness detection.
func (m *Memory) SetStoredAt(key string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.StoredAt = at
		m.entries[key] = e
	}
}

var _ Store = (*Memory)(nil)
