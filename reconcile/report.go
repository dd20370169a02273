// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package reconcile

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize/english"

	"github.com/danielhkuo/pollmirror/models"
)

// Report is the operator-facing outcome of one reconciliation run.
// Checked and Detected describe the first detection pass; Repaired
// accumulates across iterations.
type Report struct {
	Iterations int
	Checked    int
	Detected   int
	Repaired   int
	Residual   []models.Drift
	Exhausted  bool
	Duration   time.Duration
}

// Converged reports whether the run ended with no actionable drift.
func (r *Report) Converged() bool {
	return len(r.Residual) == 0
}

// Score is the integrity/confidence signal in [0, 1]: the mean of the
// fraction of checked items found clean and the fraction of detected
// drift that was repaired. It is a health indicator for operators, not
// a pass/fail gate.
func (r *Report) Score() float64 {
	clean := 1.0
	if r.Checked > 0 {
		clean = 1.0 - float64(r.Detected)/float64(r.Checked)
	}
	repaired := 1.0
	if r.Detected > 0 {
		repaired = float64(r.Repaired) / float64(r.Detected)
	}
	score := (clamp01(clean) + clamp01(repaired)) / 2
	return clamp01(score)
}

// Summary renders a one-line operator summary.
func (r *Report) Summary() string {
	if r.Detected == 0 {
		return fmt.Sprintf("clean: %s checked in %s",
			english.Plural(r.Checked, "item", ""), r.Duration.Round(time.Millisecond))
	}
	return fmt.Sprintf("%s detected, %d repaired over %s, %s residual (score %.2f)",
		english.Plural(r.Detected, "drift finding", ""),
		r.Repaired,
		english.Plural(r.Iterations, "iteration", ""),
		english.Plural(len(r.Residual), "item", ""),
		r.Score())
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
