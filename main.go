// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/danielhkuo/pollmirror/artifacts"
	"github.com/danielhkuo/pollmirror/cliparse"
	"github.com/danielhkuo/pollmirror/db"
	"github.com/danielhkuo/pollmirror/ledger"
	"github.com/danielhkuo/pollmirror/lifecycle"
	"github.com/danielhkuo/pollmirror/mirror"
	"github.com/danielhkuo/pollmirror/reconcile"
	"github.com/danielhkuo/pollmirror/sched"
	"github.com/danielhkuo/pollmirror/votes"
)

func main() {
	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	// Connect to the ledger database
	conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	// Create schema (tables)
	if err := db.CreateSchema(conn); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ready")

	store := ledger.New(conn)

	// The chat platform adapter plugs in here; the dev deployment runs
	// against the in-process mirror. Every caller shares one
	// rate-limited wrapper because the remote quota is global.
	limited := mirror.NewLimited(mirror.NewMemory(cfg.SelfUser), cfg.MirrorRate, cfg.MirrorBurst)

	scheduler := sched.NewMemory()
	cache := artifacts.NewMemory()
	recorder := votes.NewRecorder(store, cache)
	controller := lifecycle.NewController(store, limited, scheduler, cache)

	engine := reconcile.New(store, limited, scheduler, cache, controller, recorder, reconcile.Config{
		MaxIterations: cfg.MaxIterations,
		RepairWorkers: cfg.RepairWorkers,
		StaleAfter:    cfg.CacheStaleAfter,
		SelfUser:      cfg.SelfUser,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// Fire scheduled transitions
	runner := sched.NewRunner(scheduler, controller.HandleTransition)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runner.Run(ctx)
	}()

	// Reconcile on startup, then on the configured interval
	wg.Add(1)
	go func() {
		defer wg.Done()
		reconcileLoop(ctx, engine, cfg.ReconcileInterval)
	}()

	slog.Info("pollmirror running",
		"database", cfg.DatabaseType,
		"reconcile_interval", cfg.ReconcileInterval,
	)

	<-ctx.Done()
	slog.Info("shutting down")
	wg.Wait()
}

func reconcileLoop(ctx context.Context, engine *reconcile.Engine, interval time.Duration) {
	run := func() {
		report, err := engine.Run(ctx)
		if err != nil {
			slog.Error("reconciliation run failed", "error", err)
			return
		}
		slog.Info("reconciliation report", "summary", report.Summary())
	}

	// Startup run catches whatever drifted while the process was down.
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
