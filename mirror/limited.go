// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package mirror

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultAttempts    = 3
	defaultBackoff     = 250 * time.Millisecond
	defaultCallTimeout = 10 * time.Second
)

// Limited wraps a Mirror so every call shares one token bucket and
// transient failures are retried with exponential backoff. The remote
// API enforces a global per-route quota, so there is exactly one
// Limited per process and every caller goes through it.
type Limited struct {
	inner       Mirror
	limiter     *rate.Limiter
	attempts    int
	backoff     time.Duration
	callTimeout time.Duration
}

// NewLimited builds the shared rate-limited wrapper. rps is the steady
// call rate, burst the bucket size.
func NewLimited(inner Mirror, rps float64, burst int) *Limited {
	return &Limited{
		inner:       inner,
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		attempts:    defaultAttempts,
		backoff:     defaultBackoff,
		callTimeout: defaultCallTimeout,
	}
}

// WithRetry overrides the retry policy; used by tests to keep backoff
// out of the clock.
func (l *Limited) WithRetry(attempts int, backoff time.Duration) *Limited {
	l.attempts = attempts
	l.backoff = backoff
	return l
}

// do runs one mirror call under the shared budget: wait for a token,
// apply the per-call timeout, retry transient failures with doubling
// backoff. The final transient error is returned as-is so callers can
// classify it as residual drift.
func (l *Limited) do(ctx context.Context, call func(context.Context) error) error {
	var err error
	backoff := l.backoff
	for attempt := 0; attempt < l.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		if err = l.limiter.Wait(ctx); err != nil {
			return err
		}

		cctx, cancel := context.WithTimeout(ctx, l.callTimeout)
		err = call(cctx)
		cancel()

		if err == nil || !IsTransient(err) {
			return err
		}
	}
	return err
}

func (l *Limited) PostMessage(ctx context.Context, loc Location, content string) (string, error) {
	var ref string
	err := l.do(ctx, func(ctx context.Context) error {
		var err error
		ref, err = l.inner.PostMessage(ctx, loc, content)
		return err
	})
	return ref, err
}

func (l *Limited) EditMessage(ctx context.Context, ref, content string) error {
	return l.do(ctx, func(ctx context.Context) error {
		return l.inner.EditMessage(ctx, ref, content)
	})
}

func (l *Limited) AddMarker(ctx context.Context, ref, marker string) error {
	return l.do(ctx, func(ctx context.Context) error {
		return l.inner.AddMarker(ctx, ref, marker)
	})
}

func (l *Limited) RemoveMarker(ctx context.Context, ref, marker string) error {
	return l.do(ctx, func(ctx context.Context) error {
		return l.inner.RemoveMarker(ctx, ref, marker)
	})
}

func (l *Limited) RemoveMarkerUser(ctx context.Context, ref, marker, userRef string) error {
	return l.do(ctx, func(ctx context.Context) error {
		return l.inner.RemoveMarkerUser(ctx, ref, marker, userRef)
	})
}

func (l *Limited) ClearMarkers(ctx context.Context, ref string) error {
	return l.do(ctx, func(ctx context.Context) error {
		return l.inner.ClearMarkers(ctx, ref)
	})
}

func (l *Limited) FetchMessage(ctx context.Context, ref string) (string, error) {
	var content string
	err := l.do(ctx, func(ctx context.Context) error {
		var err error
		content, err = l.inner.FetchMessage(ctx, ref)
		return err
	})
	return content, err
}

func (l *Limited) FetchMarkers(ctx context.Context, ref string) ([]string, error) {
	var markers []string
	err := l.do(ctx, func(ctx context.Context) error {
		var err error
		markers, err = l.inner.FetchMarkers(ctx, ref)
		return err
	})
	return markers, err
}

func (l *Limited) FetchMarkerUsers(ctx context.Context, ref, marker string) ([]string, error) {
	var users []string
	err := l.do(ctx, func(ctx context.Context) error {
		var err error
		users, err = l.inner.FetchMarkerUsers(ctx, ref, marker)
		return err
	})
	return users, err
}

var _ Mirror = (*Limited)(nil)
