// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"errors"
	"fmt"
	"time"
)

// Poll status constants
const (
	StatusScheduled = "scheduled"
	StatusActive    = "active"
	StatusClosed    = "closed"
)

// Option count limits enforced at creation time
const (
	MinOptions = 2
	MaxOptions = 10
)

// Vote recording rejection reasons and lifecycle validation errors.
var (
	ErrPollNotFound        = errors.New("poll not found")
	ErrPollNotActive       = errors.New("poll is not active")
	ErrPollExpired         = errors.New("poll voting window has closed")
	ErrOptionOutOfRange    = errors.New("option index out of range")
	ErrPollNotClosed       = errors.New("poll is not closed")
	ErrInvalidReopenWindow = errors.New("reopen close time must be in the future")
)

// Poll is the durable ledger record for a single time-boxed poll.
// Options and OptionMarkers are parallel: marker i is the voting
// affordance for option i on the mirrored message.
type Poll struct {
	ID             string    `json:"id"`
	Question       string    `json:"question"`
	Status         string    `json:"status"`
	Options        []string  `json:"options"`
	OptionMarkers  []string  `json:"option_markers"`
	MultipleChoice bool      `json:"multiple_choice"`
	Anonymous      bool      `json:"anonymous"`
	OpenTime       time.Time `json:"open_time"`
	CloseTime      time.Time `json:"close_time"`
	PresenceRef    *string   `json:"presence_ref,omitempty"`
	ChannelRef     string    `json:"channel_ref"`
	ServerRef      string    `json:"server_ref"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks the creation-time invariants: option/marker counts and
// uniqueness, and a strictly ordered voting window.
func (p *Poll) Validate() error {
	if p.Question == "" {
		return errors.New("question is required")
	}
	if len(p.Options) < MinOptions || len(p.Options) > MaxOptions {
		return fmt.Errorf("poll must have between %d and %d options, got %d", MinOptions, MaxOptions, len(p.Options))
	}
	if len(p.OptionMarkers) != len(p.Options) {
		return fmt.Errorf("got %d markers for %d options", len(p.OptionMarkers), len(p.Options))
	}
	seenOpt := make(map[string]bool, len(p.Options))
	seenMarker := make(map[string]bool, len(p.OptionMarkers))
	for i, opt := range p.Options {
		if opt == "" {
			return fmt.Errorf("option %d is empty", i)
		}
		if seenOpt[opt] {
			return fmt.Errorf("duplicate option %q", opt)
		}
		seenOpt[opt] = true

		marker := p.OptionMarkers[i]
		if marker == "" {
			return fmt.Errorf("marker %d is empty", i)
		}
		if seenMarker[marker] {
			return fmt.Errorf("duplicate marker %q", marker)
		}
		seenMarker[marker] = true
	}
	if !p.OpenTime.Before(p.CloseTime) {
		return errors.New("open_time must be before close_time")
	}
	if p.ChannelRef == "" {
		return errors.New("channel_ref is required")
	}
	return nil
}

// ImpliedStatus returns the status the voting window implies at now.
// Status transitions are monotonic, so a persisted status ahead of the
// implied one (e.g. closed early by an admin) is not drift; only a
// persisted status lagging behind the implied one is.
func (p *Poll) ImpliedStatus(now time.Time) string {
	switch {
	case now.Before(p.OpenTime):
		return StatusScheduled
	case now.Before(p.CloseTime):
		return StatusActive
	default:
		return StatusClosed
	}
}

// StatusRank orders statuses along the monotonic transition path.
// Unknown statuses rank below scheduled.
func StatusRank(status string) int {
	switch status {
	case StatusScheduled:
		return 1
	case StatusActive:
		return 2
	case StatusClosed:
		return 3
	default:
		return 0
	}
}

// MarkerIndex returns the option index bound to marker, or -1 when the
// marker is not one of the poll's voting affordances.
func (p *Poll) MarkerIndex(marker string) int {
	for i, m := range p.OptionMarkers {
		if m == marker {
			return i
		}
	}
	return -1
}

// Vote is a single recorded choice. For single-choice polls at most one
// row exists per (poll_id, user_ref); for multiple-choice polls at most
// one row per (poll_id, user_ref, option_index).
type Vote struct {
	ID          string    `json:"id"`
	PollID      string    `json:"poll_id"`
	UserRef     string    `json:"user_ref"`
	OptionIndex int       `json:"option_index"`
	VotedAt     time.Time `json:"voted_at"`
}

// Tally counts votes per option index. Out-of-range rows are dropped
// here; deleting them is the reconciler's job, not the renderer's.
func Tally(poll *Poll, votes []Vote) []int {
	counts := make([]int, len(poll.Options))
	for _, v := range votes {
		if v.OptionIndex >= 0 && v.OptionIndex < len(counts) {
			counts[v.OptionIndex]++
		}
	}
	return counts
}
