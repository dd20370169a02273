// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package lifecycle_test

import (
	"strings"
	"testing"
	"time"

	"github.com/danielhkuo/pollmirror/lifecycle"
	"github.com/danielhkuo/pollmirror/models"
	"github.com/danielhkuo/pollmirror/testutil"
)

func renderFixture(status string) (*models.Poll, []models.Vote) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := testutil.MakePoll(status, now)
	votes := []models.Vote{
		{PollID: p.ID, UserRef: "u1", OptionIndex: 0, VotedAt: now},
		{PollID: p.ID, UserRef: "u2", OptionIndex: 0, VotedAt: now},
		{PollID: p.ID, UserRef: "u3", OptionIndex: 2, VotedAt: now},
	}
	return p, votes
}

func TestRenderMessage_Deterministic(t *testing.T) {
	p, votes := renderFixture(models.StatusActive)
	first := lifecycle.RenderMessage(p, votes)
	second := lifecycle.RenderMessage(p, votes)
	if first != second {
		t.Error("render output changed between calls with identical input")
	}
}

func TestRenderMessage_ActiveShowsCounts(t *testing.T) {
	p, votes := renderFixture(models.StatusActive)
	out := lifecycle.RenderMessage(p, votes)

	if !strings.Contains(out, "2 votes") {
		t.Errorf("counts missing: %q", out)
	}
	if !strings.Contains(out, "Voting closes") {
		t.Errorf("close time missing: %q", out)
	}
	if !strings.Contains(out, "🌮 Tacos") {
		t.Errorf("options missing: %q", out)
	}
}

func TestRenderMessage_AnonymousHidesCounts(t *testing.T) {
	p, votes := renderFixture(models.StatusActive)
	p.Anonymous = true
	out := lifecycle.RenderMessage(p, votes)

	if strings.Contains(out, "2 votes") {
		t.Errorf("anonymous active poll should hide counts: %q", out)
	}
	if !strings.Contains(out, "hidden until the poll closes") {
		t.Errorf("hidden notice missing: %q", out)
	}
}

func TestRenderMessage_ClosedShowsCountsEvenWhenAnonymous(t *testing.T) {
	p, votes := renderFixture(models.StatusClosed)
	p.Anonymous = true
	out := lifecycle.RenderMessage(p, votes)

	if !strings.Contains(out, "2 votes") {
		t.Errorf("closed poll should always show counts: %q", out)
	}
	if !strings.Contains(out, "Voting has closed") {
		t.Errorf("closed banner missing: %q", out)
	}
}

func TestRenderResults(t *testing.T) {
	p, votes := renderFixture(models.StatusClosed)
	out := lifecycle.RenderResults(p, votes)

	if !strings.Contains(out, "🏆 Tacos: 2 votes") {
		t.Errorf("winner line wrong: %q", out)
	}

	empty := lifecycle.RenderResults(p, nil)
	if !strings.Contains(empty, "No votes were cast.") {
		t.Errorf("empty result wrong: %q", empty)
	}
	if strings.Contains(empty, "🏆") {
		t.Errorf("no winner should be marked with zero votes: %q", empty)
	}
}
