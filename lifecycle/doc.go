// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package lifecycle implements the poll state machine and its multi-phase
close orchestration.

# State Machine

	scheduled ──Open──▶ active ──Close──▶ closed
	                      ▲                 │
	                      └────Reopen───────┘

Transitions are monotonic except the administrative Reopen, which also
advances the close time. Open and Close are idempotent: re-invoking
either on a poll already past the transition reports success and does
no further work.

# Best-Effort-Forward Close

Close is five phases, not a two-phase commit. The ledger write in phase
3 is the single durability commit point; once it lands the poll is
closed for all purposes. Later phases (mirror edit, marker clearing,
result notification, artifact generation) are each isolated and their
failures are logged and left behind as drift, which the reconciliation
engine repairs on its next pass. Nothing ever rolls back phase 3.

# Rendering

RenderMessage is deterministic for a given ledger state. The
reconciliation engine re-renders the expected message body and compares
it byte-for-byte with what the mirror holds, so the renderer must not
consult the wall clock.
*/
package lifecycle
