package antispam

import (
	"testing"
	"time"
)

func TestRecordPrunesOutsideWindow(t *testing.T) {
	h := NewHistory(10 * time.Second)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	h.Record("u1", TrackedMessage{Content: "a", ChannelID: "c1", Timestamp: base})
	h.Record("u1", TrackedMessage{Content: "b", ChannelID: "c1", Timestamp: base.Add(3 * time.Second)})
	window := h.Record("u1", TrackedMessage{Content: "c", ChannelID: "c1", Timestamp: base.Add(11 * time.Second)})

	if len(window) != 2 {
		t.Fatalf("expected 2 messages inside window, got %d", len(window))
	}
	for _, msg := range window {
		if base.Add(11*time.Second).Sub(msg.Timestamp) >= 10*time.Second {
			t.Fatalf("message at %v is outside the window", msg.Timestamp)
		}
	}
}

func TestRecordReturnsCopy(t *testing.T) {
	h := NewHistory(10 * time.Second)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	window := h.Record("u1", TrackedMessage{Content: "a", ChannelID: "c1", Timestamp: base})
	window[0].Content = "mutated"

	next := h.Record("u1", TrackedMessage{Content: "b", ChannelID: "c1", Timestamp: base.Add(time.Second)})
	if next[0].Content != "a" {
		t.Fatalf("internal state mutated through returned slice: %q", next[0].Content)
	}
}

func TestClearIdempotent(t *testing.T) {
	h := NewHistory(10 * time.Second)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	h.Record("u1", TrackedMessage{Content: "a", ChannelID: "c1", Timestamp: base})
	h.Clear("u1")
	h.Clear("u1")

	if n := h.TrackedUsers(); n != 0 {
		t.Fatalf("expected no tracked users, got %d", n)
	}
	if window := h.Snapshot("u1", base); len(window) != 0 {
		t.Fatalf("expected empty window after clear, got %d entries", len(window))
	}
}

func TestChannelsFirstSeenOrder(t *testing.T) {
	h := NewHistory(time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	h.Record("u1", TrackedMessage{Content: "a", ChannelID: "c2", Timestamp: base})
	h.Record("u1", TrackedMessage{Content: "b", ChannelID: "c1", Timestamp: base.Add(time.Second)})
	h.Record("u1", TrackedMessage{Content: "c", ChannelID: "c2", Timestamp: base.Add(2 * time.Second)})

	channels := h.Channels("u1")
	if len(channels) != 2 || channels[0] != "c2" || channels[1] != "c1" {
		t.Fatalf("unexpected channel order: %v", channels)
	}
}

func TestSweepEvictsIdleUsers(t *testing.T) {
	h := NewHistory(10 * time.Second)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	h.Record("idle", TrackedMessage{Content: "a", ChannelID: "c1", Timestamp: base})
	h.Record("active", TrackedMessage{Content: "b", ChannelID: "c1", Timestamp: base.Add(25 * time.Second)})

	h.Sweep(base.Add(30 * time.Second))

	if n := h.TrackedUsers(); n != 1 {
		t.Fatalf("expected 1 tracked user after sweep, got %d", n)
	}
	if window := h.Snapshot("active", base.Add(30*time.Second)); len(window) != 1 {
		t.Fatalf("active user lost history: %d entries", len(window))
	}
}
