// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"strings"
	"testing"
	"time"
)

func validPoll() *Poll {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &Poll{
		ID:            "p1",
		Question:      "Where should we eat?",
		Status:        StatusScheduled,
		Options:       []string{"Tacos", "Ramen"},
		OptionMarkers: []string{"🌮", "🍜"},
		OpenTime:      now,
		CloseTime:     now.Add(time.Hour),
		ChannelRef:    "chan-1",
	}
}

func TestPollValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Poll)
		wantErr string
	}{
		{"valid", func(*Poll) {}, ""},
		{"empty question", func(p *Poll) { p.Question = "" }, "question"},
		{"one option", func(p *Poll) {
			p.Options = p.Options[:1]
			p.OptionMarkers = p.OptionMarkers[:1]
		}, "between"},
		{"marker count mismatch", func(p *Poll) { p.OptionMarkers = p.OptionMarkers[:1] }, "markers"},
		{"duplicate option", func(p *Poll) { p.Options[1] = p.Options[0] }, "duplicate option"},
		{"duplicate marker", func(p *Poll) { p.OptionMarkers[1] = p.OptionMarkers[0] }, "duplicate marker"},
		{"empty option", func(p *Poll) { p.Options[0] = "" }, "empty"},
		{"window inverted", func(p *Poll) { p.CloseTime = p.OpenTime.Add(-time.Hour) }, "before"},
		{"window zero length", func(p *Poll) { p.CloseTime = p.OpenTime }, "before"},
		{"missing channel", func(p *Poll) { p.ChannelRef = "" }, "channel_ref"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPoll()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestImpliedStatus(t *testing.T) {
	p := validPoll()

	if got := p.ImpliedStatus(p.OpenTime.Add(-time.Second)); got != StatusScheduled {
		t.Errorf("before open: got %q", got)
	}
	if got := p.ImpliedStatus(p.OpenTime); got != StatusActive {
		t.Errorf("at open: got %q", got)
	}
	if got := p.ImpliedStatus(p.CloseTime.Add(-time.Second)); got != StatusActive {
		t.Errorf("before close: got %q", got)
	}
	if got := p.ImpliedStatus(p.CloseTime); got != StatusClosed {
		t.Errorf("at close: got %q", got)
	}
}

func TestStatusRank_Monotonic(t *testing.T) {
	if !(StatusRank(StatusScheduled) < StatusRank(StatusActive) &&
		StatusRank(StatusActive) < StatusRank(StatusClosed)) {
		t.Error("status ranks out of order")
	}
	if StatusRank("bogus") >= StatusRank(StatusScheduled) {
		t.Error("unknown status should rank lowest")
	}
}

func TestMarkerIndex(t *testing.T) {
	p := validPoll()
	if got := p.MarkerIndex("🍜"); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
	if got := p.MarkerIndex("🔥"); got != -1 {
		t.Errorf("unknown marker: got %d, want -1", got)
	}
}

func TestTally(t *testing.T) {
	p := validPoll()
	votes := []Vote{
		{OptionIndex: 0},
		{OptionIndex: 1},
		{OptionIndex: 1},
		{OptionIndex: 7},  // out of range, dropped
		{OptionIndex: -1}, // out of range, dropped
	}
	got := Tally(p, votes)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("tally: got %v, want [1 2]", got)
	}
}
