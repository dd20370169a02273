// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package mirror abstracts the chat platform where polls are displayed:
// posting and editing messages and managing the reaction markers that
// act as voting affordances. The mirror is a projection of ledger
// state, never a source of truth, except that user reactions on an
// active poll are treated as voting intent.
package mirror

import (
	"context"
	"errors"
	"fmt"
)

// Location identifies where a mirrored message lives in the external
// chat platform.
type Location struct {
	ServerRef  string
	ChannelRef string
}

// Mirror is the presence mirror surface the controller consumes. The
// real implementation wraps a chat platform client; its transport
// internals are out of scope here. All methods may fail transiently
// (rate limiting, network) or permanently (message deleted).
type Mirror interface {
	PostMessage(ctx context.Context, loc Location, content string) (string, error)
	EditMessage(ctx context.Context, ref, content string) error
	AddMarker(ctx context.Context, ref, marker string) error
	RemoveMarker(ctx context.Context, ref, marker string) error
	RemoveMarkerUser(ctx context.Context, ref, marker, userRef string) error
	ClearMarkers(ctx context.Context, ref string) error
	FetchMessage(ctx context.Context, ref string) (string, error)
	FetchMarkers(ctx context.Context, ref string) ([]string, error)
	FetchMarkerUsers(ctx context.Context, ref, marker string) ([]string, error)
}

// ErrMessageNotFound reports a presence ref that no longer resolves to
// a message. It is permanent: the message must be re-posted.
var ErrMessageNotFound = errors.New("mirrored message not found")

// Error wraps a mirror call failure with its retryability class.
type Error struct {
	Op        string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mirror %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// TransientError marks err as retryable (rate limited, network).
func TransientError(op string, err error) *Error {
	return &Error{Op: op, Transient: true, Err: err}
}

// PermanentError marks err as not worth retrying.
func PermanentError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var me *Error
	return errors.As(err, &me) && me.Transient
}
