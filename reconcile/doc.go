// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package reconcile detects and repairs drift between the poll ledger and
the three stores derived from it: the presence mirror, the transition
scheduler, and the cache/artifact store.

# Convergence Loop

One Run is a bounded fixed-point loop:

	detect
	while findings remain and iterations < cap:
	    repair all findings (bounded worker pool)
	    detect again

Detection must re-run after repairs because repairs interact: closing a
time-lagged poll creates an artifact expectation the cache phase only
sees on the next pass. Hitting the iteration cap with drift still
present ends the run with a residual report instead of looping further;
the next scheduled run picks up from there. This bounds the cost of a
single invocation, it does not guarantee full repair in one.

# Detection Phases

Five independent phases: ledger self-integrity (orphaned and
out-of-range votes, statuses lagging the voting window), ledger vs.
scheduler (exactly one pending job per non-terminal poll), ledger vs.
mirror (message exists, content matches, marker set matches), reaction
agreement (reacting users have matching vote rows), and ledger vs.
cache (artifacts for closed polls, fresh tallies for active ones).

# Authority

Reactions are authoritative while a poll is active: a stray reaction
becomes a vote row, recorded through the vote recorder so choice-mode
semantics hold. A user with reactions on several options of a
single-choice poll is resolved to one winner (the recorded choice when
it matches a reaction, else the last reacted option in marker order)
and the losing reactions are removed, so a repaired poll stays
repaired. Vote rows without a backing reaction are never deleted;
votes can legitimately arrive through other frontends. Once a poll
closes the ledger is authoritative and the markers are cleared.

# Failure Policy

The engine only corrects state, it never originates intent. A ledger
read failure aborts the run; an unreadable external store just skips
its items until the next run. Repair actions are idempotent and
isolated, run through the shared rate-limited mirror wrapper, and a
repair that exhausts its retries becomes residual drift rather than an
error.
*/
package reconcile
