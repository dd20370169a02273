// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package mirror

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Mirror. It backs the test suite and the
// single-binary dev deployment; production wires the chat platform
// adapter instead.
type Memory struct {
	// SelfUser is the user ref the bot's own seed reactions appear under.
	SelfUser string

	mu       sync.Mutex
	messages map[string]*memMessage
}

type memMessage struct {
	loc         Location
	content     string
	markerOrder []string
	markers     map[string][]string // marker -> user refs, reaction order
}

func NewMemory(selfUser string) *Memory {
	return &Memory{
		SelfUser: selfUser,
		messages: make(map[string]*memMessage),
	}
}

func (m *Memory) PostMessage(_ context.Context, loc Location, content string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := uuid.NewString()
	m.messages[ref] = &memMessage{
		loc:     loc,
		content: content,
		markers: make(map[string][]string),
	}
	return ref, nil
}

func (m *Memory) EditMessage(_ context.Context, ref, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[ref]
	if !ok {
		return PermanentError("EditMessage", ErrMessageNotFound)
	}
	msg.content = content
	return nil
}

func (m *Memory) AddMarker(ctx context.Context, ref, marker string) error {
	return m.react(ref, marker, m.SelfUser, "AddMarker")
}

func (m *Memory) RemoveMarker(_ context.Context, ref, marker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[ref]
	if !ok {
		return PermanentError("RemoveMarker", ErrMessageNotFound)
	}
	msg.dropMarker(marker)
	return nil
}

func (m *Memory) RemoveMarkerUser(_ context.Context, ref, marker, userRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[ref]
	if !ok {
		return PermanentError("RemoveMarkerUser", ErrMessageNotFound)
	}
	users := msg.markers[marker]
	for i, u := range users {
		if u == userRef {
			msg.markers[marker] = append(users[:i], users[i+1:]...)
			break
		}
	}
	if len(msg.markers[marker]) == 0 {
		msg.dropMarker(marker)
	}
	return nil
}

func (m *Memory) ClearMarkers(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[ref]
	if !ok {
		return PermanentError("ClearMarkers", ErrMessageNotFound)
	}
	msg.markers = make(map[string][]string)
	msg.markerOrder = nil
	return nil
}

func (m *Memory) FetchMessage(_ context.Context, ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[ref]
	if !ok {
		return "", PermanentError("FetchMessage", ErrMessageNotFound)
	}
	return msg.content, nil
}

func (m *Memory) FetchMarkers(_ context.Context, ref string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[ref]
	if !ok {
		return nil, PermanentError("FetchMarkers", ErrMessageNotFound)
	}
	markers := make([]string, len(msg.markerOrder))
	copy(markers, msg.markerOrder)
	return markers, nil
}

func (m *Memory) FetchMarkerUsers(_ context.Context, ref, marker string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[ref]
	if !ok {
		return nil, PermanentError("FetchMarkerUsers", ErrMessageNotFound)
	}
	users := make([]string, len(msg.markers[marker]))
	copy(users, msg.markers[marker])
	return users, nil
}

// React records a reaction by an arbitrary user, the way a real chat
// platform would deliver one. Test and dev entry point.
func (m *Memory) React(ref, marker, userRef string) error {
	return m.react(ref, marker, userRef, "React")
}

// Unreact removes a user's reaction.
func (m *Memory) Unreact(ref, marker, userRef string) error {
	return m.RemoveMarkerUser(context.Background(), ref, marker, userRef)
}

// DeleteMessage simulates the message being deleted out from under the
// controller.
func (m *Memory) DeleteMessage(ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, ref)
}

func (m *Memory) react(ref, marker, userRef, op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[ref]
	if !ok {
		return PermanentError(op, ErrMessageNotFound)
	}
	if _, exists := msg.markers[marker]; !exists {
		msg.markerOrder = append(msg.markerOrder, marker)
	}
	for _, u := range msg.markers[marker] {
		if u == userRef {
			return nil
		}
	}
	msg.markers[marker] = append(msg.markers[marker], userRef)
	return nil
}

func (msg *memMessage) dropMarker(marker string) {
	delete(msg.markers, marker)
	for i, m := range msg.markerOrder {
		if m == marker {
			msg.markerOrder = append(msg.markerOrder[:i], msg.markerOrder[i+1:]...)
			return
		}
	}
}

var _ Mirror = (*Memory)(nil)
