// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package testutil provides shared helpers for the test suite: an
// embedded sqlite ledger per test, domain fixtures, and a mirror
// wrapper with injectable transient failures.
package testutil

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/pollmirror/db"
	"github.com/danielhkuo/pollmirror/ledger"
	"github.com/danielhkuo/pollmirror/mirror"
	"github.com/danielhkuo/pollmirror/models"
)

// SetupTestDB opens a fresh in-memory sqlite database with the full
// schema. Each call gets its own database.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return conn
}

// NewStore opens a test database and wraps it in a ledger store.
func NewStore(t *testing.T) *ledger.Store {
	t.Helper()
	return ledger.New(SetupTestDB(t))
}

// MakePoll builds a three-option poll fixture whose voting window
// matches the requested status relative to now.
func MakePoll(status string, now time.Time) *models.Poll {
	p := &models.Poll{
		ID:            uuid.NewString(),
		Question:      "Where should we eat?",
		Status:        status,
		Options:       []string{"Tacos", "Ramen", "Pizza"},
		OptionMarkers: []string{"🌮", "🍜", "🍕"},
		ChannelRef:    "chan-1",
		ServerRef:     "srv-1",
		CreatedAt:     now,
	}
	switch status {
	case models.StatusScheduled:
		p.OpenTime = now.Add(time.Hour)
		p.CloseTime = now.Add(2 * time.Hour)
	case models.StatusActive:
		p.OpenTime = now.Add(-time.Hour)
		p.CloseTime = now.Add(time.Hour)
	case models.StatusClosed:
		p.OpenTime = now.Add(-2 * time.Hour)
		p.CloseTime = now.Add(-time.Hour)
	}
	return p
}

// InsertPoll persists a fixture poll.
func InsertPoll(t *testing.T, store *ledger.Store, p *models.Poll) {
	t.Helper()
	if err := store.CreatePoll(context.Background(), p); err != nil {
		t.Fatalf("Failed to insert poll: %v", err)
	}
}

// InsertVote persists a vote row directly, bypassing the recorder.
// Used to stage drift scenarios (orphans, out-of-range rows).
func InsertVote(t *testing.T, store *ledger.Store, pollID, userRef string, optionIndex int, at time.Time) models.Vote {
	t.Helper()
	v := models.Vote{
		ID:          uuid.NewString(),
		PollID:      pollID,
		UserRef:     userRef,
		OptionIndex: optionIndex,
		VotedAt:     at,
	}
	if _, err := store.InsertVoteIfAbsent(context.Background(), &v); err != nil {
		t.Fatalf("Failed to insert vote: %v", err)
	}
	return v
}

// FlakyMirror wraps the in-memory mirror and fails a configured number
// of upcoming calls per operation with a transient error.
type FlakyMirror struct {
	*mirror.Memory

	mu       sync.Mutex
	failures map[string]int
}

func NewFlakyMirror(inner *mirror.Memory) *FlakyMirror {
	return &FlakyMirror{Memory: inner, failures: make(map[string]int)}
}

// FailNext makes the next n calls of op fail transiently. Op names
// match the Mirror method names.
func (f *FlakyMirror) FailNext(op string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = n
}

func (f *FlakyMirror) take(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[op] > 0 {
		f.failures[op]--
		return mirror.TransientError(op, errors.New("rate limited"))
	}
	return nil
}

func (f *FlakyMirror) PostMessage(ctx context.Context, loc mirror.Location, content string) (string, error) {
	if err := f.take("PostMessage"); err != nil {
		return "", err
	}
	return f.Memory.PostMessage(ctx, loc, content)
}

func (f *FlakyMirror) EditMessage(ctx context.Context, ref, content string) error {
	if err := f.take("EditMessage"); err != nil {
		return err
	}
	return f.Memory.EditMessage(ctx, ref, content)
}

func (f *FlakyMirror) AddMarker(ctx context.Context, ref, marker string) error {
	if err := f.take("AddMarker"); err != nil {
		return err
	}
	return f.Memory.AddMarker(ctx, ref, marker)
}

func (f *FlakyMirror) RemoveMarker(ctx context.Context, ref, marker string) error {
	if err := f.take("RemoveMarker"); err != nil {
		return err
	}
	return f.Memory.RemoveMarker(ctx, ref, marker)
}

func (f *FlakyMirror) RemoveMarkerUser(ctx context.Context, ref, marker, userRef string) error {
	if err := f.take("RemoveMarkerUser"); err != nil {
		return err
	}
	return f.Memory.RemoveMarkerUser(ctx, ref, marker, userRef)
}

func (f *FlakyMirror) ClearMarkers(ctx context.Context, ref string) error {
	if err := f.take("ClearMarkers"); err != nil {
		return err
	}
	return f.Memory.ClearMarkers(ctx, ref)
}

func (f *FlakyMirror) FetchMessage(ctx context.Context, ref string) (string, error) {
	if err := f.take("FetchMessage"); err != nil {
		return "", err
	}
	return f.Memory.FetchMessage(ctx, ref)
}

func (f *FlakyMirror) FetchMarkers(ctx context.Context, ref string) ([]string, error) {
	if err := f.take("FetchMarkers"); err != nil {
		return nil, err
	}
	return f.Memory.FetchMarkers(ctx, ref)
}

func (f *FlakyMirror) FetchMarkerUsers(ctx context.Context, ref, marker string) ([]string, error) {
	if err := f.take("FetchMarkerUsers"); err != nil {
		return nil, err
	}
	return f.Memory.FetchMarkerUsers(ctx, ref, marker)
}

var _ mirror.Mirror = (*FlakyMirror)(nil)
