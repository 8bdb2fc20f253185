package handlers

import (
	"context"
	"strings"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/axioma-ai-labs/guardy/internal/antiflood"
	"github.com/axioma-ai-labs/guardy/internal/db"
	"github.com/axioma-ai-labs/guardy/internal/sched"
)

func newTestAdmin(t *testing.T) (*Admin, *antiflood.Tracker) {
	t.Helper()
	svc, _ := newStubService(t)
	s := sched.NewScheduler()
	t.Cleanup(s.Stop)
	flood := antiflood.NewTracker()
	return NewAdmin(svc, s, flood), flood
}

func TestLeavingGroupDropsItsFloodWindows(t *testing.T) {
	t.Parallel()

	a, flood := newTestAdmin(t)
	const groupID = -100500

	now := time.Now()
	flood.Observe(groupID, 20, 1, now, 5)
	flood.Observe(groupID, 20, 2, now, 5)

	mcm := &api.ChatMemberUpdated{
		Chat:          api.Chat{ID: groupID, Title: "testers"},
		From:          api.User{ID: 5},
		NewChatMember: api.ChatMember{Status: "kicked", User: &api.User{ID: 1}},
	}
	proceed, err := a.handleOwnMembership(context.Background(), mcm)
	if err != nil {
		t.Fatalf("handleOwnMembership returned error: %v", err)
	}
	if proceed {
		t.Fatal("own membership updates must end the chain")
	}

	// A fresh window: the pre-removal messages no longer count.
	for i := 0; i < 5; i++ {
		if action, _ := flood.Observe(groupID, 20, 10+i, now, 5); action != antiflood.Allow {
			t.Fatalf("message %d muted against a window that should have been dropped", i)
		}
	}
}

func TestRulesFollowActiveProtections(t *testing.T) {
	t.Parallel()

	full := db.FullSecurityConfig(-1)
	lines := rulesLines(full)
	if len(lines) != 6 {
		t.Fatalf("full security must yield every rule, got %d: %v", len(lines), lines)
	}

	lines = rulesLines(db.DisabledConfig(-1))
	if len(lines) != 1 || !strings.Contains(lines[0], "disabled") {
		t.Fatalf("disabled moderation must yield the single disabled notice, got %v", lines)
	}

	partial := db.DisabledConfig(-1)
	partial.GuardyStatus = db.StatusEnabled
	partial.LinkRemoval = db.ChoiceYes
	lines = rulesLines(partial)
	if len(lines) != 2 {
		t.Fatalf("one protection must yield the base rule plus one, got %v", lines)
	}
	if !strings.Contains(lines[1], "links") {
		t.Fatalf("expected the link rule, got %q", lines[1])
	}
}
