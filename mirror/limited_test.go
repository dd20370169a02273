// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package mirror_test

import (
	"context"
	"testing"
	"time"

	"github.com/danielhkuo/pollmirror/mirror"
	"github.com/danielhkuo/pollmirror/testutil"
)

func newLimited(inner mirror.Mirror) *mirror.Limited {
	// High rate and tiny backoff keep the tests off the wall clock.
	return mirror.NewLimited(inner, 1000, 1000).WithRetry(3, time.Millisecond)
}

func postFixture(t *testing.T, m *mirror.Memory) string {
	t.Helper()
	ref, err := m.PostMessage(context.Background(), mirror.Location{ServerRef: "s", ChannelRef: "c"}, "hello")
	if err != nil {
		t.Fatalf("PostMessage failed: %v", err)
	}
	return ref
}

func TestLimited_RetriesTransientFailures(t *testing.T) {
	inner := mirror.NewMemory("bot")
	flaky := testutil.NewFlakyMirror(inner)
	lim := newLimited(flaky)
	ref := postFixture(t, inner)

	flaky.FailNext("EditMessage", 2)
	if err := lim.EditMessage(context.Background(), ref, "edited"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}

	content, _ := inner.FetchMessage(context.Background(), ref)
	if content != "edited" {
		t.Errorf("content: got %q", content)
	}
}

func TestLimited_GivesUpAfterAttempts(t *testing.T) {
	inner := mirror.NewMemory("bot")
	flaky := testutil.NewFlakyMirror(inner)
	lim := newLimited(flaky)
	ref := postFixture(t, inner)

	flaky.FailNext("EditMessage", 5)
	err := lim.EditMessage(context.Background(), ref, "edited")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !mirror.IsTransient(err) {
		t.Errorf("final error should stay classified transient: %v", err)
	}

	content, _ := inner.FetchMessage(context.Background(), ref)
	if content != "hello" {
		t.Errorf("content should be untouched, got %q", content)
	}
}

// Permanent errors must not be retried: a missing message stays missing
// no matter how often the call repeats.
func TestLimited_NoRetryOnPermanent(t *testing.T) {
	inner := &countingMirror{Memory: mirror.NewMemory("bot")}
	lim := newLimited(inner)

	_, err := lim.FetchMessage(context.Background(), "no-such-ref")
	if err == nil {
		t.Fatal("expected error for missing message")
	}
	if mirror.IsTransient(err) {
		t.Errorf("missing message should be permanent: %v", err)
	}
	if inner.fetches != 1 {
		t.Errorf("permanent failure retried: %d calls", inner.fetches)
	}
}

func TestLimited_HonorsContextCancellation(t *testing.T) {
	inner := mirror.NewMemory("bot")
	flaky := testutil.NewFlakyMirror(inner)
	// Long backoff so cancellation lands inside the retry wait.
	lim := mirror.NewLimited(flaky, 1000, 1000).WithRetry(3, time.Minute)
	ref := postFixture(t, inner)

	ctx, cancel := context.WithCancel(context.Background())
	flaky.FailNext("EditMessage", 1)

	done := make(chan error, 1)
	go func() { done <- lim.EditMessage(ctx, ref, "edited") }()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected cancellation error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("EditMessage did not return after cancellation")
	}
}

type countingMirror struct {
	*mirror.Memory
	fetches int
}

func (c *countingMirror) FetchMessage(ctx context.Context, ref string) (string, error) {
	c.fetches++
	return c.Memory.FetchMessage(ctx, ref)
}
