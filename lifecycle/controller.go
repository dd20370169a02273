// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/pollmirror/artifacts"
	"github.com/danielhkuo/pollmirror/ledger"
	"github.com/danielhkuo/pollmirror/mirror"
	"github.com/danielhkuo/pollmirror/models"
	"github.com/danielhkuo/pollmirror/sched"
)

// Controller owns the poll state machine. Durable transitions commit to
// the ledger first; propagation to the presence mirror, the scheduler,
// and the cache is best-effort-forward, with the reconciliation engine
// as the backstop for any step that fails.
type Controller struct {
	store  *ledger.Store
	mirror mirror.Mirror
	sched  sched.Scheduler
	cache  artifacts.Store
	clock  func() time.Time
}

func NewController(store *ledger.Store, m mirror.Mirror, s sched.Scheduler, cache artifacts.Store) *Controller {
	return &Controller{
		store:  store,
		mirror: m,
		sched:  s,
		cache:  cache,
		clock:  time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (c *Controller) WithClock(clock func() time.Time) *Controller {
	c.clock = clock
	return c
}

// CreateParams describes a new poll.
type CreateParams struct {
	Question       string
	Options        []string
	Markers        []string
	MultipleChoice bool
	Anonymous      bool
	OpenTime       time.Time
	CloseTime      time.Time
	// OpenNow pins the open time to creation time and activates the
	// poll immediately instead of scheduling an open job.
	OpenNow    bool
	ChannelRef string
	ServerRef  string
}

// CreatePoll validates and persists a new poll, then either opens it
// immediately or schedules its open transition.
func (c *Controller) CreatePoll(ctx context.Context, params CreateParams) (*models.Poll, error) {
	now := c.clock()
	poll := &models.Poll{
		ID:             uuid.NewString(),
		Question:       params.Question,
		Status:         models.StatusScheduled,
		Options:        params.Options,
		OptionMarkers:  params.Markers,
		MultipleChoice: params.MultipleChoice,
		Anonymous:      params.Anonymous,
		OpenTime:       params.OpenTime,
		CloseTime:      params.CloseTime,
		ChannelRef:     params.ChannelRef,
		ServerRef:      params.ServerRef,
		CreatedAt:      now,
	}
	if params.OpenNow {
		poll.OpenTime = now
	}
	if err := poll.Validate(); err != nil {
		return nil, fmt.Errorf("invalid poll: %w", err)
	}

	if err := c.store.CreatePoll(ctx, poll); err != nil {
		return nil, err
	}
	slog.Info("poll created", "poll_id", poll.ID, "question", poll.Question, "open_now", params.OpenNow)

	if params.OpenNow {
		if err := c.Open(ctx, poll.ID); err != nil {
			return nil, err
		}
		return c.store.GetPoll(ctx, poll.ID)
	}

	if _, err := c.sched.ScheduleJob(ctx, poll.ID, poll.OpenTime, sched.JobOpen); err != nil {
		// At-least-once: the reconciler notices the missing job.
		slog.Warn("failed to schedule open job", "poll_id", poll.ID, "error", err)
	}
	return poll, nil
}

// Open transitions a scheduled poll to active, posts the mirrored
// message, and schedules the close transition. Calling Open on a poll
// that is already active or closed is an idempotent success.
func (c *Controller) Open(ctx context.Context, pollID string) error {
	poll, err := c.store.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if poll.Status != models.StatusScheduled {
		slog.Info("open skipped, poll already past scheduled", "poll_id", pollID, "status", poll.Status)
		return nil
	}

	ok, err := c.store.TransitionStatus(ctx, pollID, models.StatusScheduled, models.StatusActive)
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race to another opener; same outcome.
		return nil
	}
	poll.Status = models.StatusActive
	slog.Info("poll opened", "poll_id", pollID)

	if _, err := c.sched.ScheduleJob(ctx, pollID, poll.CloseTime, sched.JobClose); err != nil {
		slog.Warn("failed to schedule close job", "poll_id", pollID, "error", err)
	}
	if err := c.sched.CancelJob(ctx, pollID, sched.JobOpen); err != nil {
		slog.Warn("failed to cancel open job", "poll_id", pollID, "error", err)
	}

	c.postPresence(ctx, poll)
	return nil
}

// CloseResult reports the outcome of a Close call.
type CloseResult struct {
	AlreadyClosed bool
}

// Close runs the five-phase close procedure. Phases:
//
//  1. idempotency check against persisted status
//  2. snapshot poll + votes in one read
//  3. persist status = closed (the durability commit point)
//  4. mirror update: edit message to final tallies, then clear markers
//  5. side effects: result notification, artifact generation
//
// A phase-3 failure fails the call. Phase 4/5 failures are logged and
// left for the reconciliation engine; the call still succeeds because
// the durable transition already committed.
func (c *Controller) Close(ctx context.Context, pollID, reason string) (CloseResult, error) {
	// Phase 1: idempotency.
	poll, err := c.store.GetPoll(ctx, pollID)
	if err != nil {
		return CloseResult{}, err
	}
	if poll.Status == models.StatusClosed {
		slog.Info("close skipped, poll already closed", "poll_id", pollID, "reason", reason)
		return CloseResult{AlreadyClosed: true}, nil
	}

	// Phase 2: consistent snapshot for phases 4-5.
	poll, votes, err := c.store.Snapshot(ctx, pollID)
	if err != nil {
		return CloseResult{}, err
	}

	// Phase 3: durable commit.
	ok, err := c.store.TransitionStatus(ctx, pollID, poll.Status, models.StatusClosed)
	if err != nil {
		return CloseResult{}, err
	}
	if !ok {
		// Re-read: a concurrent closer winning the race is still success.
		current, err := c.store.GetPoll(ctx, pollID)
		if err != nil {
			return CloseResult{}, err
		}
		if current.Status == models.StatusClosed {
			return CloseResult{AlreadyClosed: true}, nil
		}
		return CloseResult{}, fmt.Errorf("poll %s changed status during close", pollID)
	}
	poll.Status = models.StatusClosed
	slog.Info("poll closed", "poll_id", pollID, "reason", reason, "votes", len(votes))

	if err := c.sched.CancelJob(ctx, pollID, sched.JobClose); err != nil {
		slog.Warn("failed to cancel close job", "poll_id", pollID, "error", err)
	}

	// Phase 4: mirror update. Edit before clearing markers so observers
	// never see live voting affordances next to final results. Each
	// sub-step is isolated.
	if poll.PresenceRef != nil {
		if err := c.mirror.EditMessage(ctx, *poll.PresenceRef, RenderMessage(poll, votes)); err != nil {
			slog.Warn("failed to edit mirrored message on close", "poll_id", pollID, "error", err)
		}
		if err := c.mirror.ClearMarkers(ctx, *poll.PresenceRef); err != nil {
			slog.Warn("failed to clear markers on close", "poll_id", pollID, "error", err)
		}
	}

	// Phase 5: side effects, each isolated from the others.
	loc := mirror.Location{ServerRef: poll.ServerRef, ChannelRef: poll.ChannelRef}
	if _, err := c.mirror.PostMessage(ctx, loc, RenderResults(poll, votes)); err != nil {
		slog.Warn("failed to post result notification", "poll_id", pollID, "error", err)
	}
	if err := c.cache.Invalidate(ctx, artifacts.TallyKey(pollID)); err != nil {
		slog.Warn("failed to invalidate tally cache", "poll_id", pollID, "error", err)
	}
	if err := c.cache.GenerateArtifact(ctx, pollID); err != nil {
		slog.Warn("failed to generate result artifact", "poll_id", pollID, "error", err)
	}

	return CloseResult{}, nil
}

// Reopen moves a closed poll back to active, administratively. When
// newCloseTime is nil the existing close time is kept; either way the
// effective close time must be in the future.
func (c *Controller) Reopen(ctx context.Context, pollID string, newCloseTime *time.Time) error {
	poll, err := c.store.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if poll.Status != models.StatusClosed {
		return models.ErrPollNotClosed
	}

	closeTime := poll.CloseTime
	if newCloseTime != nil {
		closeTime = *newCloseTime
	}
	if !closeTime.After(c.clock()) {
		return models.ErrInvalidReopenWindow
	}

	ok, err := c.store.ReopenPoll(ctx, pollID, closeTime)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrPollNotClosed
	}
	poll.Status = models.StatusActive
	poll.CloseTime = closeTime
	slog.Info("poll reopened", "poll_id", pollID, "close_time", closeTime)

	if _, err := c.sched.ScheduleJob(ctx, pollID, closeTime, sched.JobClose); err != nil {
		slog.Warn("failed to schedule close job", "poll_id", pollID, "error", err)
	}

	// Restore the voting surface; the reconciler repairs whatever fails.
	if poll.PresenceRef != nil {
		votes, err := c.store.LoadVotesForPoll(ctx, pollID)
		if err == nil {
			if err := c.mirror.EditMessage(ctx, *poll.PresenceRef, RenderMessage(poll, votes)); err != nil {
				slog.Warn("failed to edit mirrored message on reopen", "poll_id", pollID, "error", err)
			}
		}
		for _, marker := range poll.OptionMarkers {
			if err := c.mirror.AddMarker(ctx, *poll.PresenceRef, marker); err != nil {
				slog.Warn("failed to re-add marker on reopen", "poll_id", pollID, "marker", marker, "error", err)
			}
		}
	}
	return nil
}

// DeletePoll removes the poll and its votes from the ledger, cancels
// its jobs, and retires the mirrored message.
func (c *Controller) DeletePoll(ctx context.Context, pollID string) error {
	poll, err := c.store.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if err := c.store.DeletePoll(ctx, pollID); err != nil {
		return err
	}
	slog.Info("poll deleted", "poll_id", pollID)

	for _, kind := range []sched.JobKind{sched.JobOpen, sched.JobClose} {
		if err := c.sched.CancelJob(ctx, pollID, kind); err != nil {
			slog.Warn("failed to cancel job", "poll_id", pollID, "kind", kind, "error", err)
		}
	}
	if err := c.cache.Invalidate(ctx, artifacts.TallyKey(pollID)); err != nil {
		slog.Warn("failed to invalidate tally cache", "poll_id", pollID, "error", err)
	}
	if poll.PresenceRef != nil {
		if err := c.mirror.ClearMarkers(ctx, *poll.PresenceRef); err != nil {
			slog.Warn("failed to clear markers on delete", "poll_id", pollID, "error", err)
		}
		if err := c.mirror.EditMessage(ctx, *poll.PresenceRef, "This poll was deleted."); err != nil {
			slog.Warn("failed to retire mirrored message", "poll_id", pollID, "error", err)
		}
	}
	return nil
}

// HandleTransition is the sched.TransitionFunc the runner fires into.
func (c *Controller) HandleTransition(ctx context.Context, pollID string, kind sched.JobKind) error {
	switch kind {
	case sched.JobOpen:
		return c.Open(ctx, pollID)
	case sched.JobClose:
		_, err := c.Close(ctx, pollID, "scheduled close time reached")
		return err
	default:
		return fmt.Errorf("unknown job kind %q", kind)
	}
}

// postPresence posts the mirrored message for a newly active poll and
// seeds its voting markers. Best-effort; failures leave drift for the
// reconciliation engine.
func (c *Controller) postPresence(ctx context.Context, poll *models.Poll) {
	loc := mirror.Location{ServerRef: poll.ServerRef, ChannelRef: poll.ChannelRef}
	ref, err := c.mirror.PostMessage(ctx, loc, RenderMessage(poll, nil))
	if err != nil {
		slog.Warn("failed to post mirrored message", "poll_id", poll.ID, "error", err)
		return
	}
	if err := c.store.SetPresenceRef(ctx, poll.ID, ref); err != nil {
		slog.Error("failed to persist presence ref", "poll_id", poll.ID, "error", err)
		return
	}
	poll.PresenceRef = &ref
	for _, marker := range poll.OptionMarkers {
		if err := c.mirror.AddMarker(ctx, ref, marker); err != nil {
			slog.Warn("failed to seed marker", "poll_id", poll.ID, "marker", marker, "error", err)
		}
	}
}
