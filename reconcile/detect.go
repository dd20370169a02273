// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielhkuo/pollmirror/artifacts"
	"github.com/danielhkuo/pollmirror/lifecycle"
	"github.com/danielhkuo/pollmirror/mirror"
	"github.com/danielhkuo/pollmirror/models"
	"github.com/danielhkuo/pollmirror/sched"
)

// detect runs all five detection phases and returns the findings plus
// the number of items examined. The phases are independent and
// order-insensitive. A ledger failure aborts detection; an external
// store that can't be read just has its items skipped this pass and
// re-checked on the next run.
func (e *Engine) detect(ctx context.Context) ([]finding, int, error) {
	now := e.clock()

	polls, err := e.store.ListPollsByStatus(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list polls: %w", err)
	}

	var findings []finding
	checked := 0

	f, c, err := e.detectLedger(ctx, polls, now)
	if err != nil {
		return nil, 0, err
	}
	findings, checked = append(findings, f...), checked+c

	f, c = e.detectScheduler(ctx, polls)
	findings, checked = append(findings, f...), checked+c

	f, c = e.detectMirror(ctx, polls)
	findings, checked = append(findings, f...), checked+c

	f, c = e.detectReactions(ctx, polls)
	findings, checked = append(findings, f...), checked+c

	f, c = e.detectCache(ctx, polls, now)
	findings, checked = append(findings, f...), checked+c

	return findings, checked, nil
}

// detectLedger finds drift the ledger can exhibit on its own: orphaned
// votes, votes outside the option range, and statuses lagging behind
// the voting window.
func (e *Engine) detectLedger(ctx context.Context, polls []*models.Poll, now time.Time) ([]finding, int, error) {
	var findings []finding

	totalVotes, err := e.store.CountVotes(ctx)
	if err != nil {
		return nil, 0, err
	}
	checked := totalVotes + len(polls)

	orphans, err := e.store.OrphanVotes(ctx)
	if err != nil {
		return nil, 0, err
	}
	for _, v := range orphans {
		findings = append(findings, finding{
			drift: models.Drift{
				Class:      models.DriftOrphanVote,
				PollID:     v.PollID,
				Detail:     fmt.Sprintf("vote %s references a nonexistent poll", v.ID),
				Repairable: true,
			},
			repair: func(ctx context.Context) error {
				return e.store.DeleteVote(ctx, v.ID)
			},
		})
	}

	outOfRange, err := e.store.OutOfRangeVotes(ctx)
	if err != nil {
		return nil, 0, err
	}
	for _, v := range outOfRange {
		findings = append(findings, finding{
			drift: models.Drift{
				Class:      models.DriftVoteOutOfRange,
				PollID:     v.PollID,
				Detail:     fmt.Sprintf("vote %s has option index %d outside the option range", v.ID, v.OptionIndex),
				Repairable: true,
			},
			repair: func(ctx context.Context) error {
				return e.store.DeleteVote(ctx, v.ID)
			},
		})
	}

	for _, p := range polls {
		implied := p.ImpliedStatus(now)
		// Early administrative closes put the status ahead of the
		// window; only a lagging status is drift.
		if models.StatusRank(implied) <= models.StatusRank(p.Status) {
			continue
		}
		pollID := p.ID
		var repair func(ctx context.Context) error
		switch implied {
		case models.StatusActive:
			repair = func(ctx context.Context) error {
				return e.lifecycle.Open(ctx, pollID)
			}
		case models.StatusClosed:
			repair = func(ctx context.Context) error {
				_, err := e.lifecycle.Close(ctx, pollID, "close time passed")
				return err
			}
		}
		findings = append(findings, finding{
			drift: models.Drift{
				Class:      models.DriftStatusLag,
				PollID:     pollID,
				Detail:     fmt.Sprintf("status %s lags the window-implied %s", p.Status, implied),
				Repairable: true,
			},
			repair: repair,
		})
	}

	return findings, checked, nil
}

// detectScheduler checks that every non-terminal poll has exactly one
// pending job for its next transition, and that no pending job points
// at a poll that no longer needs it.
func (e *Engine) detectScheduler(ctx context.Context, polls []*models.Poll) ([]finding, int) {
	jobs, err := e.sched.ListPendingJobs(ctx)
	if err != nil {
		slog.Warn("scheduler unreadable, skipping job checks", "error", err)
		return nil, 0
	}

	type jobKey struct {
		pollID string
		kind   sched.JobKind
	}
	pending := make(map[jobKey]sched.Job, len(jobs))
	for _, j := range jobs {
		pending[jobKey{j.PollID, j.Kind}] = j
	}

	var findings []finding
	accounted := make(map[jobKey]bool)

	for _, p := range polls {
		var wantKind sched.JobKind
		var wantAt time.Time
		switch p.Status {
		case models.StatusScheduled:
			wantKind, wantAt = sched.JobOpen, p.OpenTime
		case models.StatusActive:
			wantKind, wantAt = sched.JobClose, p.CloseTime
		default:
			continue // terminal: any leftover job is caught below
		}

		key := jobKey{p.ID, wantKind}
		pollID, kind, fireAt := p.ID, wantKind, wantAt

		job, ok := pending[key]
		if !ok {
			findings = append(findings, finding{
				drift: models.Drift{
					Class:      models.DriftMissingJob,
					PollID:     pollID,
					Detail:     fmt.Sprintf("no pending %s job", kind),
					Repairable: true,
				},
				repair: func(ctx context.Context) error {
					_, err := e.sched.ScheduleJob(ctx, pollID, fireAt, kind)
					return err
				},
			})
			continue
		}
		accounted[key] = true
		if !job.FireAt.Equal(wantAt) {
			findings = append(findings, finding{
				drift: models.Drift{
					Class:      models.DriftStaleJob,
					PollID:     pollID,
					Detail:     fmt.Sprintf("%s job fires at %s, ledger says %s", kind, job.FireAt, fireAt),
					Repairable: true,
				},
				repair: func(ctx context.Context) error {
					if err := e.sched.CancelJob(ctx, pollID, kind); err != nil {
						return err
					}
					_, err := e.sched.ScheduleJob(ctx, pollID, fireAt, kind)
					return err
				},
			})
		}
	}

	for _, j := range jobs {
		key := jobKey{j.PollID, j.Kind}
		if accounted[key] {
			continue
		}
		pollID, kind := j.PollID, j.Kind
		findings = append(findings, finding{
			drift: models.Drift{
				Class:      models.DriftStaleJob,
				PollID:     pollID,
				Detail:     fmt.Sprintf("pending %s job for a poll that doesn't need it", kind),
				Repairable: true,
			},
			repair: func(ctx context.Context) error {
				return e.sched.CancelJob(ctx, pollID, kind)
			},
		})
	}

	return findings, len(polls) + len(jobs)
}

// detectMirror checks that mirrored messages exist, display the
// ledger's state, and (for active polls) carry exactly the option
// markers as voting affordances.
func (e *Engine) detectMirror(ctx context.Context, polls []*models.Poll) ([]finding, int) {
	var findings []finding
	checked := 0

	for _, p := range polls {
		if p.Status != models.StatusActive && p.Status != models.StatusClosed {
			continue
		}
		if p.PresenceRef == nil {
			if p.Status == models.StatusActive {
				checked++
				findings = append(findings, finding{
					drift: models.Drift{
						Class:      models.DriftMissingMessage,
						PollID:     p.ID,
						Detail:     "active poll was never mirrored",
						Repairable: true,
					},
					repair: e.repostMessage(p),
				})
			}
			continue
		}

		ref := *p.PresenceRef
		checked++
		content, err := e.mirror.FetchMessage(ctx, ref)
		switch {
		case errors.Is(err, mirror.ErrMessageNotFound):
			findings = append(findings, finding{
				drift: models.Drift{
					Class:      models.DriftMissingMessage,
					PollID:     p.ID,
					Detail:     "mirrored message is gone",
					Repairable: true,
				},
				repair: e.repostMessage(p),
			})
			continue
		case err != nil:
			// Unreachable this pass; re-checked next run.
			slog.Warn("mirror unreadable, skipping message check", "poll_id", p.ID, "error", err)
			continue
		}

		votes, err := e.store.LoadVotesForPoll(ctx, p.ID)
		if err != nil {
			slog.Warn("failed to load votes for mirror check", "poll_id", p.ID, "error", err)
			continue
		}
		expected := lifecycle.RenderMessage(p, votes)
		if content != expected {
			poll := p
			findings = append(findings, finding{
				drift: models.Drift{
					Class:      models.DriftMessageContent,
					PollID:     p.ID,
					Detail:     "mirrored message does not match ledger state",
					Repairable: true,
				},
				repair: func(ctx context.Context) error {
					votes, err := e.store.LoadVotesForPoll(ctx, poll.ID)
					if err != nil {
						return err
					}
					return e.mirror.EditMessage(ctx, ref, lifecycle.RenderMessage(poll, votes))
				},
			})
		}

		if p.Status != models.StatusActive {
			continue
		}
		checked++
		present, err := e.mirror.FetchMarkers(ctx, ref)
		if err != nil {
			slog.Warn("mirror unreadable, skipping marker check", "poll_id", p.ID, "error", err)
			continue
		}
		if f, drifted := e.markerSetFinding(p, ref, present); drifted {
			findings = append(findings, f)
		}
	}

	return findings, checked
}

// markerSetFinding compares the markers present on the message with the
// poll's option markers and builds one repair that adds the missing and
// removes the extraneous.
func (e *Engine) markerSetFinding(p *models.Poll, ref string, present []string) (finding, bool) {
	want := make(map[string]bool, len(p.OptionMarkers))
	for _, m := range p.OptionMarkers {
		want[m] = true
	}
	have := make(map[string]bool, len(present))
	for _, m := range present {
		have[m] = true
	}

	var missing, extra []string
	for _, m := range p.OptionMarkers {
		if !have[m] {
			missing = append(missing, m)
		}
	}
	for _, m := range present {
		if !want[m] {
			extra = append(extra, m)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return finding{}, false
	}

	return finding{
		drift: models.Drift{
			Class:      models.DriftMarkerSet,
			PollID:     p.ID,
			Detail:     fmt.Sprintf("%d markers missing, %d extraneous", len(missing), len(extra)),
			Repairable: true,
		},
		repair: func(ctx context.Context) error {
			for _, m := range missing {
				if err := e.mirror.AddMarker(ctx, ref, m); err != nil {
					return err
				}
			}
			for _, m := range extra {
				if err := e.mirror.RemoveMarker(ctx, ref, m); err != nil {
					return err
				}
			}
			return nil
		},
	}, true
}

// detectReactions compares the users who reacted with each option
// marker against the recorded voters for that option. Reactions are
// authoritative while a poll is active: a reacting user with no vote
// row gets one recorded through the vote recorder. Vote rows without a
// backing reaction are left alone; votes may arrive through other
// frontends.
//
// On a single-choice poll a user reacting with several markers is a
// conflict: recording one would orphan the others and the next pass
// would flag them again, forever. The repair picks one winner per user
// and removes that user's remaining option-marker reactions in the
// same action, so the state it leaves is the state the next detection
// pass expects.
func (e *Engine) detectReactions(ctx context.Context, polls []*models.Poll) ([]finding, int) {
	var findings []finding
	checked := 0

	for _, p := range polls {
		if p.Status != models.StatusActive || p.PresenceRef == nil {
			continue
		}
		ref := *p.PresenceRef

		voters, err := e.store.VotersByOption(ctx, p.ID)
		if err != nil {
			slog.Warn("failed to load voters for reaction check", "poll_id", p.ID, "error", err)
			continue
		}

		reacted := make(map[string][]int)
		var order []string
		readable := true
		for i, marker := range p.OptionMarkers {
			users, err := e.mirror.FetchMarkerUsers(ctx, ref, marker)
			if err != nil {
				// A partial view could crown the wrong winner on a
				// single-choice poll; skip the whole poll this pass.
				slog.Warn("mirror unreadable, skipping reaction check",
					"poll_id", p.ID, "marker", marker, "error", err)
				readable = false
				break
			}
			for _, u := range users {
				if u == e.cfg.SelfUser {
					continue
				}
				if _, seen := reacted[u]; !seen {
					order = append(order, u)
				}
				reacted[u] = append(reacted[u], i)
			}
		}
		if !readable {
			continue
		}

		for _, u := range order {
			idxs := reacted[u]
			checked += len(idxs)
			if p.MultipleChoice {
				findings = append(findings, e.multiChoiceFindings(p, u, idxs, voters)...)
				continue
			}
			if f, drifted := e.singleChoiceFinding(p, ref, u, idxs, voters); drifted {
				findings = append(findings, f)
			}
		}
	}

	return findings, checked
}

// multiChoiceFindings records a vote row for every reacted option the
// user has no row for. Reactions on distinct options never conflict in
// this mode.
func (e *Engine) multiChoiceFindings(p *models.Poll, userRef string, idxs []int, voters map[int]map[string]bool) []finding {
	var findings []finding
	for _, i := range idxs {
		if voters[i][userRef] {
			continue
		}
		pollID, optionIndex := p.ID, i
		marker := p.OptionMarkers[i]
		user := userRef
		findings = append(findings, finding{
			drift: models.Drift{
				Class:      models.DriftUnrecordedReaction,
				PollID:     pollID,
				Detail:     fmt.Sprintf("user %s reacted %s with no recorded vote", user, marker),
				Repairable: true,
			},
			repair: func(ctx context.Context) error {
				_, err := e.recorder.RecordVote(ctx, pollID, user, optionIndex)
				return err
			},
		})
	}
	return findings
}

// singleChoiceFinding reconciles one user's reactions on a
// single-choice poll. The winner is the user's already-recorded choice
// when one of the reactions matches it; otherwise the last reacted
// option in marker order (cross-marker reaction recency is not
// observable through the mirror, so the winner must at least be
// deterministic). Losing reactions are removed in the same repair.
func (e *Engine) singleChoiceFinding(p *models.Poll, ref, userRef string, idxs []int, voters map[int]map[string]bool) (finding, bool) {
	current, hasVote := -1, false
	for i := range p.Options {
		if voters[i][userRef] {
			current, hasVote = i, true
			break
		}
	}

	keep := idxs[len(idxs)-1]
	if hasVote {
		for _, i := range idxs {
			if i == current {
				keep = i
				break
			}
		}
	}

	var drop []string
	for _, i := range idxs {
		if i != keep {
			drop = append(drop, p.OptionMarkers[i])
		}
	}

	needRecord := !hasVote || current != keep
	if !needRecord && len(drop) == 0 {
		return finding{}, false
	}

	class := models.DriftUnrecordedReaction
	detail := fmt.Sprintf("user %s reacted %s with no recorded vote", userRef, p.OptionMarkers[keep])
	if len(drop) > 0 {
		class = models.DriftReactionConflict
		detail = fmt.Sprintf("user %s reacted with %d markers on a single-choice poll", userRef, len(idxs))
	}

	pollID, keepIdx, user := p.ID, keep, userRef
	return finding{
		drift: models.Drift{
			Class:      class,
			PollID:     pollID,
			Detail:     detail,
			Repairable: true,
		},
		repair: func(ctx context.Context) error {
			if needRecord {
				if _, err := e.recorder.RecordVote(ctx, pollID, user, keepIdx); err != nil {
					return err
				}
			}
			for _, marker := range drop {
				if err := e.mirror.RemoveMarkerUser(ctx, ref, marker, user); err != nil {
					return err
				}
			}
			return nil
		},
	}, true
}

// detectCache checks that closed polls have their result artifact and
// that active polls' cached tallies are fresh enough.
func (e *Engine) detectCache(ctx context.Context, polls []*models.Poll, now time.Time) ([]finding, int) {
	var findings []finding
	checked := 0

	for _, p := range polls {
		switch p.Status {
		case models.StatusClosed:
			checked++
			has, err := e.cache.HasArtifact(ctx, p.ID)
			if err != nil {
				slog.Warn("artifact store unreadable, skipping check", "poll_id", p.ID, "error", err)
				continue
			}
			if has {
				continue
			}
			pollID := p.ID
			findings = append(findings, finding{
				drift: models.Drift{
					Class:      models.DriftMissingArtifact,
					PollID:     pollID,
					Detail:     "closed poll has no result artifact",
					Repairable: true,
				},
				repair: func(ctx context.Context) error {
					return e.cache.GenerateArtifact(ctx, pollID)
				},
			})

		case models.StatusActive:
			checked++
			entry, err := e.cache.Get(ctx, artifacts.TallyKey(p.ID))
			if err != nil {
				slog.Warn("cache unreadable, skipping check", "poll_id", p.ID, "error", err)
				continue
			}
			if entry != nil && now.Sub(entry.StoredAt) <= e.cfg.StaleAfter {
				continue
			}
			detail := "cached tally is missing"
			if entry != nil {
				detail = fmt.Sprintf("cached tally is %s old", now.Sub(entry.StoredAt).Round(time.Second))
			}
			poll := p
			findings = append(findings, finding{
				drift: models.Drift{
					Class:      models.DriftStaleCache,
					PollID:     poll.ID,
					Detail:     detail,
					Repairable: true,
				},
				repair: func(ctx context.Context) error {
					votes, err := e.store.LoadVotesForPoll(ctx, poll.ID)
					if err != nil {
						return err
					}
					payload, err := json.Marshal(models.Tally(poll, votes))
					if err != nil {
						return err
					}
					return e.cache.Set(ctx, artifacts.TallyKey(poll.ID), payload, 0)
				},
			})
		}
	}

	return findings, checked
}

// repostMessage rebuilds a missing mirrored message from the ledger and
// records the new presence ref. Active polls get their voting markers
// re-seeded.
func (e *Engine) repostMessage(p *models.Poll) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		votes, err := e.store.LoadVotesForPoll(ctx, p.ID)
		if err != nil {
			return err
		}
		loc := mirror.Location{ServerRef: p.ServerRef, ChannelRef: p.ChannelRef}
		ref, err := e.mirror.PostMessage(ctx, loc, lifecycle.RenderMessage(p, votes))
		if err != nil {
			return err
		}
		if err := e.store.SetPresenceRef(ctx, p.ID, ref); err != nil {
			return err
		}
		if p.Status == models.StatusActive {
			for _, marker := range p.OptionMarkers {
				if err := e.mirror.AddMarker(ctx, ref, marker); err != nil {
					return err
				}
			}
		}
		return nil
	}
}
