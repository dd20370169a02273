// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package votes_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielhkuo/pollmirror/artifacts"
	"github.com/danielhkuo/pollmirror/models"
	"github.com/danielhkuo/pollmirror/testutil"
	"github.com/danielhkuo/pollmirror/votes"
)

func testNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func TestRecordVote_Accepted(t *testing.T) {
	store := testutil.NewStore(t)
	now := testNow()
	p := testutil.MakePoll(models.StatusActive, now)
	testutil.InsertPoll(t, store, p)

	rec := votes.NewRecorder(store, nil).WithClock(func() time.Time { return now })

	res, err := rec.RecordVote(context.Background(), p.ID, "u1", 0)
	if err != nil {
		t.Fatalf("RecordVote failed: %v", err)
	}
	if res.Updated || res.Duplicate {
		t.Errorf("fresh vote flagged updated=%v duplicate=%v", res.Updated, res.Duplicate)
	}

	rows, _ := store.LoadVotesForPoll(context.Background(), p.ID)
	if len(rows) != 1 || rows[0].OptionIndex != 0 {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestRecordVote_Rejections(t *testing.T) {
	store := testutil.NewStore(t)
	now := testNow()
	ctx := context.Background()

	scheduled := testutil.MakePoll(models.StatusScheduled, now)
	closed := testutil.MakePoll(models.StatusClosed, now)
	active := testutil.MakePoll(models.StatusActive, now)
	testutil.InsertPoll(t, store, scheduled)
	testutil.InsertPoll(t, store, closed)
	testutil.InsertPoll(t, store, active)

	rec := votes.NewRecorder(store, nil).WithClock(func() time.Time { return now })

	if _, err := rec.RecordVote(ctx, "missing", "u1", 0); err != models.ErrPollNotFound {
		t.Errorf("missing poll: got %v", err)
	}
	if _, err := rec.RecordVote(ctx, scheduled.ID, "u1", 0); err != models.ErrPollNotActive {
		t.Errorf("scheduled poll: got %v", err)
	}
	if _, err := rec.RecordVote(ctx, closed.ID, "u1", 0); err != models.ErrPollNotActive {
		t.Errorf("closed poll: got %v", err)
	}
	if _, err := rec.RecordVote(ctx, active.ID, "u1", -1); err != models.ErrOptionOutOfRange {
		t.Errorf("negative index: got %v", err)
	}
	if _, err := rec.RecordVote(ctx, active.ID, "u1", 3); err != models.ErrOptionOutOfRange {
		t.Errorf("index past end: got %v", err)
	}

	if n, _ := store.CountVotes(ctx); n != 0 {
		t.Errorf("rejected votes left %d rows", n)
	}
}

// A vote one second before close_time lands; one second after is
// rejected even though the status row still says active.
func TestRecordVote_CloseBoundary(t *testing.T) {
	store := testutil.NewStore(t)
	now := testNow()
	p := testutil.MakePoll(models.StatusActive, now)
	testutil.InsertPoll(t, store, p)

	ctx := context.Background()
	clock := p.CloseTime.Add(-time.Second)
	rec := votes.NewRecorder(store, nil).WithClock(func() time.Time { return clock })

	if _, err := rec.RecordVote(ctx, p.ID, "early", 1); err != nil {
		t.Fatalf("vote before close rejected: %v", err)
	}

	clock = p.CloseTime.Add(time.Second)
	if _, err := rec.RecordVote(ctx, p.ID, "late", 1); err != models.ErrPollExpired {
		t.Errorf("vote after close: got %v, want ErrPollExpired", err)
	}

	rows, _ := store.LoadVotesForPoll(ctx, p.ID)
	if len(rows) != 1 || rows[0].UserRef != "early" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

// Single-choice polls keep at most one row per user: a revote replaces
// the previous selection instead of accumulating.
func TestRecordVote_SingleChoiceRevote(t *testing.T) {
	store := testutil.NewStore(t)
	now := testNow()
	p := testutil.MakePoll(models.StatusActive, now)
	testutil.InsertPoll(t, store, p)

	ctx := context.Background()
	rec := votes.NewRecorder(store, nil).WithClock(func() time.Time { return now })

	if _, err := rec.RecordVote(ctx, p.ID, "u1", 0); err != nil {
		t.Fatal(err)
	}
	res, err := rec.RecordVote(ctx, p.ID, "u1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Updated {
		t.Error("revote should report updated")
	}

	rows, _ := store.LoadVotesForPoll(ctx, p.ID)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after revote, got %d", len(rows))
	}
	if rows[0].OptionIndex != 1 {
		t.Errorf("option_index: got %d, want 1", rows[0].OptionIndex)
	}
}

func TestRecordVote_MultipleChoice(t *testing.T) {
	store := testutil.NewStore(t)
	now := testNow()
	p := testutil.MakePoll(models.StatusActive, now)
	p.MultipleChoice = true
	testutil.InsertPoll(t, store, p)

	ctx := context.Background()
	rec := votes.NewRecorder(store, nil).WithClock(func() time.Time { return now })

	for _, idx := range []int{0, 2} {
		if _, err := rec.RecordVote(ctx, p.ID, "u1", idx); err != nil {
			t.Fatalf("vote on option %d failed: %v", idx, err)
		}
	}

	res, err := rec.RecordVote(ctx, p.ID, "u1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Duplicate {
		t.Error("repeat selection should report duplicate")
	}

	rows, _ := store.LoadVotesForPoll(ctx, p.ID)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestRetractVote(t *testing.T) {
	store := testutil.NewStore(t)
	now := testNow()
	p := testutil.MakePoll(models.StatusActive, now)
	testutil.InsertPoll(t, store, p)

	ctx := context.Background()
	rec := votes.NewRecorder(store, nil).WithClock(func() time.Time { return now })

	if _, err := rec.RecordVote(ctx, p.ID, "u1", 2); err != nil {
		t.Fatal(err)
	}
	if err := rec.RetractVote(ctx, p.ID, "u1", 2); err != nil {
		t.Fatalf("RetractVote failed: %v", err)
	}
	if n, _ := store.CountVotes(ctx); n != 0 {
		t.Errorf("expected 0 rows after retract, got %d", n)
	}
}

func TestRecordVote_RefreshesTally(t *testing.T) {
	store := testutil.NewStore(t)
	cache := artifacts.NewMemory()
	now := testNow()
	p := testutil.MakePoll(models.StatusActive, now)
	testutil.InsertPoll(t, store, p)

	rec := votes.NewRecorder(store, cache).WithClock(func() time.Time { return now })
	if _, err := rec.RecordVote(context.Background(), p.ID, "u1", 1); err != nil {
		t.Fatal(err)
	}

	entry, err := cache.Get(context.Background(), artifacts.TallyKey(p.ID))
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("tally cache entry missing after vote")
	}
	var counts []int
	if err := json.Unmarshal(entry.Value, &counts); err != nil {
		t.Fatalf("bad tally payload: %v", err)
	}
	if len(counts) != 3 || counts[1] != 1 {
		t.Errorf("tally: got %v", counts)
	}
}

// Concurrent revotes by the same user on a single-choice poll must end
// with exactly one row.
func TestRecordVote_ConcurrentSameUser(t *testing.T) {
	store := testutil.NewStore(t)
	now := testNow()
	p := testutil.MakePoll(models.StatusActive, now)
	testutil.InsertPoll(t, store, p)

	rec := votes.NewRecorder(store, nil).WithClock(func() time.Time { return now })

	const workers = 8
	var wg sync.WaitGroup
	var accepted atomic.Int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if _, err := rec.RecordVote(context.Background(), p.ID, "u1", idx%3); err == nil {
				accepted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if accepted.Load() != workers {
		t.Errorf("accepted %d of %d votes", accepted.Load(), workers)
	}
	rows, _ := store.LoadVotesForPoll(context.Background(), p.ID)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after concurrent revotes, got %d", len(rows))
	}
}
