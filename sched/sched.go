// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package sched holds pending open/close transition jobs and the runner
// that fires them when due.
package sched

import (
	"context"
	"time"
)

// JobKind names the transition a job fires.
type JobKind string

const (
	JobOpen  JobKind = "open"
	JobClose JobKind = "close"
)

// Job is one pending transition. A poll has at most one job per kind.
type Job struct {
	ID     string
	PollID string
	Kind   JobKind
	FireAt time.Time
}

// Scheduler is the transition scheduler surface. Job creation and
// cancellation are at-least-once: the reconciliation engine notices and
// corrects missing or stale jobs, so implementations may apply requests
// asynchronously.
type Scheduler interface {
	ScheduleJob(ctx context.Context, pollID string, fireAt time.Time, kind JobKind) (string, error)
	CancelJob(ctx context.Context, pollID string, kind JobKind) error
	ListPendingJobs(ctx context.Context) ([]Job, error)
}
