package antispam

import (
	"sync"
	"time"
)

// TrackedMessage is the per-message metadata kept for spam correlation.
type TrackedMessage struct {
	Content     string
	ChannelID   string
	Timestamp   time.Time
	Attachments int
	Embeds      int
}

// History holds a sliding window of recent messages per user. Entries older
// than the window are pruned on every Record, so a snapshot taken right after
// a Record call only contains messages inside the window.
type History struct {
	mu     sync.Mutex
	window time.Duration
	users  map[string][]TrackedMessage
}

func NewHistory(window time.Duration) *History {
	return &History{window: window, users: make(map[string][]TrackedMessage)}
}

// Record appends the message and returns the pruned window.
func (h *History) Record(userID string, msg TrackedMessage) []TrackedMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := append(h.users[userID], msg)
	entries = pruneBefore(entries, msg.Timestamp.Add(-h.window))
	h.users[userID] = entries

	snapshot := make([]TrackedMessage, len(entries))
	copy(snapshot, entries)
	return snapshot
}

func (h *History) Snapshot(userID string, now time.Time) []TrackedMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := pruneBefore(h.users[userID], now.Add(-h.window))
	h.users[userID] = entries

	snapshot := make([]TrackedMessage, len(entries))
	copy(snapshot, entries)
	return snapshot
}

func (h *History) Clear(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.users, userID)
}

// Channels returns the distinct channels present in a user's window, in
// first-seen order.
func (h *History) Channels(userID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[string]struct{})
	var channels []string
	for _, msg := range h.users[userID] {
		if _, ok := seen[msg.ChannelID]; ok {
			continue
		}
		seen[msg.ChannelID] = struct{}{}
		channels = append(channels, msg.ChannelID)
	}
	return channels
}

// Sweep prunes entries older than twice the window and drops users whose
// window emptied. It bounds memory for users who stop messaging without ever
// tripping a rule.
func (h *History) Sweep(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := now.Add(-2 * h.window)
	for userID, entries := range h.users {
		entries = pruneBefore(entries, cutoff)
		if len(entries) == 0 {
			delete(h.users, userID)
			continue
		}
		h.users[userID] = entries
	}
}

func (h *History) TrackedUsers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.users)
}

func pruneBefore(entries []TrackedMessage, cutoff time.Time) []TrackedMessage {
	idx := 0
	for _, entry := range entries {
		if entry.Timestamp.After(cutoff) {
			break
		}
		idx++
	}
	return entries[idx:]
}
