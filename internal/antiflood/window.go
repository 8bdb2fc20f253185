// Package antiflood counts messages per member inside a sliding time window
// and decides when a member crossed the configured rate limit.
package antiflood

import (
	"sync"
	"time"
)

// WindowSize is how far back a member's messages still count against them.
const WindowSize = 20 * time.Second

// Action is the tracker's decision for a single observed message.
type Action int

const (
	Allow Action = iota
	Mute
)

type memberKey struct {
	groupID int64
	userID  int64
}

type event struct {
	messageID int
	at        time.Time
}

// Tracker keeps the in-flight windows. State is kept in memory only: a
// restart forgives the current windows, which is acceptable for a rate
// limiter.
type Tracker struct {
	mu      sync.Mutex
	windows map[memberKey][]event
}

func NewTracker() *Tracker {
	return &Tracker{
		windows: map[memberKey][]event{},
	}
}

// Observe records one message and returns the decision together with the IDs
// of every message currently in the member's window (including this one).
// On Mute the window is reset so the member starts clean after the
// restriction. A limit below 1 disables tracking for the member.
func (t *Tracker) Observe(groupID, userID int64, messageID int, now time.Time, limit int) (Action, []int) {
	if limit < 1 {
		return Allow, nil
	}

	key := memberKey{groupID: groupID, userID: userID}

	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-WindowSize)
	window := t.windows[key][:0]
	for _, e := range t.windows[key] {
		if e.at.After(cutoff) {
			window = append(window, e)
		}
	}
	window = append(window, event{messageID: messageID, at: now})

	if len(window) > limit {
		ids := make([]int, 0, len(window))
		for _, e := range window {
			ids = append(ids, e.messageID)
		}
		delete(t.windows, key)
		return Mute, ids
	}

	t.windows[key] = window
	return Allow, nil
}

// Forget drops all windows of a group, e.g. when the bot leaves it.
func (t *Tracker) Forget(groupID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.windows {
		if key.groupID == groupID {
			delete(t.windows, key)
		}
	}
}
