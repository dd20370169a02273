// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielhkuo/pollmirror/artifacts"
	"github.com/danielhkuo/pollmirror/ledger"
	"github.com/danielhkuo/pollmirror/lifecycle"
	"github.com/danielhkuo/pollmirror/mirror"
	"github.com/danielhkuo/pollmirror/models"
	"github.com/danielhkuo/pollmirror/sched"
	"github.com/danielhkuo/pollmirror/votes"
)

// Lifecycle is the slice of the lifecycle controller the engine uses to
// repair time-lagged statuses. Going through the controller keeps the
// mirror and scheduler propagation that a status change implies.
type Lifecycle interface {
	Open(ctx context.Context, pollID string) error
	Close(ctx context.Context, pollID, reason string) (lifecycle.CloseResult, error)
}

// VoteRecorder is the slice of the vote recorder the engine uses to
// turn observed reactions into vote rows with the recorder's own
// single/multiple-choice semantics.
type VoteRecorder interface {
	RecordVote(ctx context.Context, pollID, userRef string, optionIndex int) (votes.Result, error)
}

// Config bounds one reconciliation invocation.
type Config struct {
	// MaxIterations caps repair/re-detect rounds per Run.
	MaxIterations int
	// RepairWorkers bounds concurrent repair actions within one pass.
	RepairWorkers int
	// StaleAfter is the cached-tally staleness threshold.
	StaleAfter time.Duration
	// SelfUser is excluded from reaction-vote agreement: the bot's own
	// seed reactions are affordances, not votes.
	SelfUser string
}

// Engine detects and repairs drift between the ledger and the other
// three stores. It is the only component allowed to correct state; it
// never originates user intent.
type Engine struct {
	store     *ledger.Store
	mirror    mirror.Mirror
	sched     sched.Scheduler
	cache     artifacts.Store
	lifecycle Lifecycle
	recorder  VoteRecorder
	cfg       Config
	clock     func() time.Time
}

func New(store *ledger.Store, m mirror.Mirror, s sched.Scheduler, cache artifacts.Store, lc Lifecycle, rec VoteRecorder, cfg Config) *Engine {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 5
	}
	if cfg.RepairWorkers < 1 {
		cfg.RepairWorkers = 4
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	return &Engine{
		store:     store,
		mirror:    m,
		sched:     s,
		cache:     cache,
		lifecycle: lc,
		recorder:  rec,
		cfg:       cfg,
		clock:     time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// finding pairs a drift record with the action that repairs it. repair
// is nil when the drift is not repairable this pass (the record still
// reaches the report as residual).
type finding struct {
	drift  models.Drift
	repair func(ctx context.Context) error
}

// Run executes the bounded convergence loop: detect, and while findings
// remain, repair them all and re-detect, up to the iteration cap.
// Reaching the cap with drift still present is reported as residual,
// not returned as an error; the next scheduled run makes further
// progress. Only a ledger read failure aborts the run.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	start := e.clock()

	findings, checked, err := e.detect(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Checked:  checked,
		Detected: len(findings),
	}

	for {
		if len(findings) == 0 {
			break
		}
		repairable := 0
		for _, f := range findings {
			if f.repair != nil {
				repairable++
			}
		}
		if repairable == 0 {
			report.Residual = drifts(findings)
			break
		}
		if report.Iterations >= e.cfg.MaxIterations {
			report.Exhausted = true
			report.Residual = drifts(findings)
			break
		}

		report.Iterations++
		report.Repaired += e.repair(ctx, findings)

		findings, _, err = e.detect(ctx)
		if err != nil {
			return nil, err
		}
	}

	report.Duration = e.clock().Sub(start)

	slog.Info("reconciliation finished",
		"iterations", report.Iterations,
		"checked", report.Checked,
		"detected", report.Detected,
		"repaired", report.Repaired,
		"residual", len(report.Residual),
		"exhausted", report.Exhausted,
		"score", report.Score(),
	)
	for _, d := range report.Residual {
		slog.Warn("residual drift", "class", d.Class, "poll_id", d.PollID, "detail", d.Detail)
	}

	return report, nil
}

func drifts(findings []finding) []models.Drift {
	out := make([]models.Drift, len(findings))
	for i, f := range findings {
		out[i] = f.drift
	}
	return out
}
