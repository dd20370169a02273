// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package reconcile

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// repair executes every repairable finding across a bounded worker
// pool and returns how many succeeded. Each action is isolated: a
// failure is logged and the item simply surfaces again in the next
// detection pass (or in the residual report), so no error ever crosses
// between repair actions.
func (e *Engine) repair(ctx context.Context, findings []finding) int {
	var g errgroup.Group
	g.SetLimit(e.cfg.RepairWorkers)

	var repaired atomic.Int64
	for _, f := range findings {
		f := f
		if f.repair == nil {
			continue
		}
		g.Go(func() error {
			if err := f.repair(ctx); err != nil {
				slog.Warn("repair failed",
					"class", f.drift.Class,
					"poll_id", f.drift.PollID,
					"detail", f.drift.Detail,
					"error", err,
				)
				return nil
			}
			repaired.Add(1)
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()

	return int(repaired.Load())
}
