package antiflood

import (
	"testing"
	"time"
)

func TestMuteTriggersAboveLimit(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	now := time.Unix(1000, 0)

	const limit = 3
	for i := 1; i <= limit; i++ {
		action, _ := tracker.Observe(-1, 5, i, now.Add(time.Duration(i)*time.Second), limit)
		if action != Allow {
			t.Fatalf("message %d within limit should be allowed", i)
		}
	}

	action, ids := tracker.Observe(-1, 5, limit+1, now.Add(4*time.Second), limit)
	if action != Mute {
		t.Fatalf("message over limit should mute")
	}
	if len(ids) != limit+1 {
		t.Fatalf("expected %d flood message ids, got %d", limit+1, len(ids))
	}

	// The window resets on mute: the next message starts a fresh count.
	action, _ = tracker.Observe(-1, 5, limit+2, now.Add(5*time.Second), limit)
	if action != Allow {
		t.Fatalf("window should be clean after a mute")
	}
}

func TestOldMessagesExpireFromWindow(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	now := time.Unix(2000, 0)

	const limit = 2
	tracker.Observe(-1, 9, 1, now, limit)
	tracker.Observe(-1, 9, 2, now.Add(time.Second), limit)

	// Past the window the earlier messages no longer count.
	action, _ := tracker.Observe(-1, 9, 3, now.Add(WindowSize+2*time.Second), limit)
	if action != Allow {
		t.Fatalf("expired messages must not count against the member")
	}
}

func TestMembersAndGroupsAreIndependent(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	now := time.Unix(3000, 0)

	const limit = 1
	tracker.Observe(-1, 5, 1, now, limit)
	if action, _ := tracker.Observe(-1, 6, 2, now, limit); action != Allow {
		t.Fatalf("another member must have their own window")
	}
	if action, _ := tracker.Observe(-2, 5, 3, now, limit); action != Allow {
		t.Fatalf("another group must have its own window")
	}
	if action, _ := tracker.Observe(-1, 5, 4, now, limit); action != Mute {
		t.Fatalf("the original member should be over the limit")
	}
}

func TestDisabledLimitAllowsEverything(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	now := time.Unix(4000, 0)

	for i := 0; i < 50; i++ {
		if action, _ := tracker.Observe(-1, 5, i, now, 0); action != Allow {
			t.Fatalf("limit 0 must never mute")
		}
	}
}

func TestForgetDropsGroupState(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	now := time.Unix(5000, 0)

	const limit = 1
	tracker.Observe(-1, 5, 1, now, limit)
	tracker.Forget(-1)
	if action, _ := tracker.Observe(-1, 5, 2, now, limit); action != Allow {
		t.Fatalf("forgotten window still counted")
	}
}
