// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package votes records voting intent against the ledger, enforcing the
// active-window gate and the single/multiple-choice row invariants.
package votes

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/pollmirror/artifacts"
	"github.com/danielhkuo/pollmirror/ledger"
	"github.com/danielhkuo/pollmirror/models"
)

// Result reports what an accepted vote did to the ledger.
type Result struct {
	// Updated: single-choice mode overwrote the user's previous row.
	Updated bool
	// Duplicate: multiple-choice mode saw the row already present.
	Duplicate bool
}

// Recorder applies votes against the ledger. Writes for the same
// (poll_id, user_ref) pair are serialized through a per-key lock so two
// racing votes can't lose an update; unrelated keys proceed
// independently. The recorder never talks to the presence mirror.
type Recorder struct {
	store *ledger.Store
	cache artifacts.Store // optional; cached tallies refreshed best-effort
	clock func() time.Time

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewRecorder(store *ledger.Store, cache artifacts.Store) *Recorder {
	return &Recorder{
		store: store,
		cache: cache,
		clock: time.Now,
		locks: make(map[string]*keyLock),
	}
}

// WithClock replaces the time source. Test hook.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	r.clock = clock
	return r
}

// RecordVote validates and applies one vote. Preconditions are checked
// before any mutation; rejections surface as models.ErrPollNotFound,
// models.ErrPollNotActive, models.ErrPollExpired, or
// models.ErrOptionOutOfRange.
func (r *Recorder) RecordVote(ctx context.Context, pollID, userRef string, optionIndex int) (Result, error) {
	poll, err := r.store.GetPoll(ctx, pollID)
	if err != nil {
		return Result{}, err
	}
	if poll.Status != models.StatusActive {
		return Result{}, models.ErrPollNotActive
	}
	now := r.clock()
	if !now.Before(poll.CloseTime) {
		return Result{}, models.ErrPollExpired
	}
	if optionIndex < 0 || optionIndex >= len(poll.Options) {
		return Result{}, models.ErrOptionOutOfRange
	}

	unlock := r.lockKey(pollID + "/" + userRef)
	defer unlock()

	vote := &models.Vote{
		ID:          uuid.NewString(),
		PollID:      pollID,
		UserRef:     userRef,
		OptionIndex: optionIndex,
		VotedAt:     now,
	}

	var res Result
	if poll.MultipleChoice {
		inserted, err := r.store.InsertVoteIfAbsent(ctx, vote)
		if err != nil {
			return Result{}, err
		}
		res.Duplicate = !inserted
	} else {
		updated, err := r.store.UpsertUserVote(ctx, vote)
		if err != nil {
			return Result{}, err
		}
		res.Updated = updated
	}

	r.refreshTally(ctx, poll)
	return res, nil
}

// RetractVote removes the (poll_id, user_ref, option_index) row, the
// path taken when a user withdraws their reaction. Retracting a vote
// that was never recorded is a no-op.
func (r *Recorder) RetractVote(ctx context.Context, pollID, userRef string, optionIndex int) error {
	poll, err := r.store.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if poll.Status != models.StatusActive {
		return models.ErrPollNotActive
	}

	unlock := r.lockKey(pollID + "/" + userRef)
	defer unlock()

	if err := r.store.DeleteUserVote(ctx, pollID, userRef, optionIndex); err != nil {
		return err
	}
	r.refreshTally(ctx, poll)
	return nil
}

// refreshTally rewrites the cached aggregate for the poll. Best-effort:
// a stale or missing entry is a drift class the reconciler repairs.
func (r *Recorder) refreshTally(ctx context.Context, poll *models.Poll) {
	if r.cache == nil {
		return
	}
	votes, err := r.store.LoadVotesForPoll(ctx, poll.ID)
	if err != nil {
		slog.Warn("failed to load votes for tally refresh", "poll_id", poll.ID, "error", err)
		return
	}
	payload, err := json.Marshal(models.Tally(poll, votes))
	if err != nil {
		slog.Warn("failed to encode tally", "poll_id", poll.ID, "error", err)
		return
	}
	if err := r.cache.Set(ctx, artifacts.TallyKey(poll.ID), payload, 0); err != nil {
		slog.Warn("failed to cache tally", "poll_id", poll.ID, "error", err)
	}
}

// lockKey acquires the per-key mutex and returns its release func.
// Locks are reference counted so the map doesn't grow with every voter
// the process has ever seen.
func (r *Recorder) lockKey(key string) func() {
	r.mu.Lock()
	l := r.locks[key]
	if l == nil {
		l = &keyLock{}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, key)
		}
		r.mu.Unlock()
	}
}
