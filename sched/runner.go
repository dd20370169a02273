// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package sched

import (
	"context"
	"log/slog"
	"time"
)

// TransitionFunc applies one fired transition. It must be idempotent:
// the runner delivers at-least-once.
type TransitionFunc func(ctx context.Context, pollID string, kind JobKind) error

// Runner polls a Memory scheduler and fires due jobs into the lifecycle
// controller. A failed transition is re-enqueued with a short delay and
// retried; if it keeps failing the reconciliation engine will converge
// the poll anyway.
type Runner struct {
	sched      *Memory
	fire       TransitionFunc
	tick       time.Duration
	retryDelay time.Duration
}

func NewRunner(sched *Memory, fire TransitionFunc) *Runner {
	return &Runner{
		sched:      sched,
		fire:       fire,
		tick:       time.Second,
		retryDelay: 15 * time.Second,
	}
}

// Run blocks until ctx is canceled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.fireDue(ctx, now)
		}
	}
}

func (r *Runner) fireDue(ctx context.Context, now time.Time) {
	for _, job := range r.sched.popDue(now) {
		if err := r.fire(ctx, job.PollID, job.Kind); err != nil {
			slog.Warn("transition failed, re-enqueueing",
				"poll_id", job.PollID,
				"kind", job.Kind,
				"error", err,
			)
			if _, serr := r.sched.ScheduleJob(ctx, job.PollID, now.Add(r.retryDelay), job.Kind); serr != nil {
				slog.Error("failed to re-enqueue job", "poll_id", job.PollID, "error", serr)
			}
			continue
		}
		slog.Info("transition fired", "poll_id", job.PollID, "kind", job.Kind)
	}
}
