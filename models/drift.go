// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "fmt"

// DriftClass identifies one kind of disagreement between the ledger and
// another store, or within the ledger itself.
type DriftClass string

const (
	// Ledger self-integrity
	DriftOrphanVote     DriftClass = "orphan_vote"
	DriftVoteOutOfRange DriftClass = "vote_out_of_range"
	DriftStatusLag      DriftClass = "status_lag"

	// Ledger vs. scheduler
	DriftMissingJob DriftClass = "missing_job"
	DriftStaleJob   DriftClass = "stale_job"

	// Ledger vs. presence mirror
	DriftMissingMessage DriftClass = "missing_message"
	DriftMessageContent DriftClass = "message_content"
	DriftMarkerSet      DriftClass = "marker_set"

	// Ledger vs. observed reactions
	DriftUnrecordedReaction DriftClass = "unrecorded_reaction"
	DriftReactionConflict   DriftClass = "reaction_conflict"

	// Ledger vs. derived cache / artifact store
	DriftMissingArtifact DriftClass = "missing_artifact"
	DriftStaleCache      DriftClass = "stale_cache"
)

// Drift is a single finding from a detection pass. It lives for one
// reconciliation iteration: produced by detection, consumed by the repair
// pass, then discarded. It is never persisted.
type Drift struct {
	Class      DriftClass
	PollID     string
	Detail     string
	Repairable bool
}

func (d Drift) String() string {
	return fmt.Sprintf("%s poll=%s %s", d.Class, d.PollID, d.Detail)
}
