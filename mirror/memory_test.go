// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package mirror_test

import (
	"context"
	"errors"
	"testing"

	"github.com/danielhkuo/pollmirror/mirror"
)

func TestMemory_MessageRoundTrip(t *testing.T) {
	m := mirror.NewMemory("bot")
	ctx := context.Background()
	loc := mirror.Location{ServerRef: "s", ChannelRef: "c"}

	ref, err := m.PostMessage(ctx, loc, "first")
	if err != nil {
		t.Fatal(err)
	}
	if ref == "" {
		t.Fatal("empty message ref")
	}

	if err := m.EditMessage(ctx, ref, "second"); err != nil {
		t.Fatal(err)
	}
	content, err := m.FetchMessage(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if content != "second" {
		t.Errorf("content: got %q", content)
	}
}

func TestMemory_MissingMessageIsPermanent(t *testing.T) {
	m := mirror.NewMemory("bot")
	ctx := context.Background()

	_, err := m.FetchMessage(ctx, "nope")
	if !errors.Is(err, mirror.ErrMessageNotFound) {
		t.Fatalf("got %v, want ErrMessageNotFound", err)
	}
	if mirror.IsTransient(err) {
		t.Error("missing message classified transient")
	}

	if err := m.EditMessage(ctx, "nope", "x"); !errors.Is(err, mirror.ErrMessageNotFound) {
		t.Errorf("edit missing: got %v", err)
	}
	if err := m.AddMarker(ctx, "nope", "🌮"); !errors.Is(err, mirror.ErrMessageNotFound) {
		t.Errorf("add marker missing: got %v", err)
	}
}

func TestMemory_Markers(t *testing.T) {
	m := mirror.NewMemory("bot")
	ctx := context.Background()
	ref, _ := m.PostMessage(ctx, mirror.Location{ServerRef: "s", ChannelRef: "c"}, "poll")

	for _, marker := range []string{"🌮", "🍜", "🍕"} {
		if err := m.AddMarker(ctx, ref, marker); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.React(ref, "🍜", "u1"); err != nil {
		t.Fatal(err)
	}
	if err := m.React(ref, "🍜", "u1"); err != nil {
		t.Fatalf("repeat reaction should be a no-op, got %v", err)
	}

	markers, err := m.FetchMarkers(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if len(markers) != 3 || markers[0] != "🌮" || markers[1] != "🍜" {
		t.Errorf("markers lost insertion order: %v", markers)
	}

	users, err := m.FetchMarkerUsers(ctx, ref, "🍜")
	if err != nil {
		t.Fatal(err)
	}
	wantUsers := map[string]bool{"bot": true, "u1": true}
	if len(users) != 2 || !wantUsers[users[0]] || !wantUsers[users[1]] {
		t.Errorf("marker users: got %v", users)
	}

	if err := m.RemoveMarkerUser(ctx, ref, "🍜", "u1"); err != nil {
		t.Fatal(err)
	}
	users, _ = m.FetchMarkerUsers(ctx, ref, "🍜")
	if len(users) != 1 || users[0] != "bot" {
		t.Errorf("after user removal: got %v", users)
	}

	if err := m.RemoveMarker(ctx, ref, "🌮"); err != nil {
		t.Fatal(err)
	}
	markers, _ = m.FetchMarkers(ctx, ref)
	if len(markers) != 2 {
		t.Errorf("after marker removal: %v", markers)
	}

	if err := m.ClearMarkers(ctx, ref); err != nil {
		t.Fatal(err)
	}
	markers, _ = m.FetchMarkers(ctx, ref)
	if len(markers) != 0 {
		t.Errorf("markers survived clear: %v", markers)
	}
}
