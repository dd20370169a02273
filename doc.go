// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the pollmirror controller.

Pollmirror manages time-boxed polls whose state is spread across four
independently-failing stores: the durable poll ledger, a rate-limited
presence mirror on a chat platform, a transition scheduler, and a
derived cache/artifact store. The controller keeps the four convergent
despite crashes, throttling, and partial failures mid-operation.

# Starting the Controller

	DATABASE_URL=file:polls.db CHANNEL_REF=chan-1 go run main.go

Or with flags:

	go run main.go -d "postgres://..." -t postgres -channel chan-1

# Configuration

Required settings:

  - DATABASE_URL (-d): sqlite path or PostgreSQL connection string
  - CHANNEL_REF (-channel): default mirror channel for new polls

Optional settings:

  - DATABASE_TYPE (-t): sqlite (default) or postgres
  - RECONCILE_INTERVAL (-reconcile-interval): default 5m
  - RECONCILE_ITERATIONS (-reconcile-iterations): iteration cap, default 5
  - REPAIR_WORKERS (-repair-workers): default 4
  - MIRROR_RATE / MIRROR_BURST: shared mirror token bucket, default 5/5
  - CACHE_STALE_AFTER (-cache-stale-after): default 2m
  - SELF_USER (-self-user): user ref of the bot's own reactions

# Architecture

Dependency-injected components, leaves first:

  - ledger: typed repository over the poll/vote tables
  - votes: vote recorder with per-(poll,user) write serialization
  - lifecycle: poll state machine and five-phase close orchestration
  - mirror: presence mirror interface with shared rate limiting
  - sched: transition scheduler and dispatch runner
  - artifacts: derived cache and result artifact store
  - reconcile: drift detection/repair convergence loop
  - models, cliparse, db, testutil: shared types and plumbing

See package documentation for each component.
*/
package main
