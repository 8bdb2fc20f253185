package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/axioma-ai-labs/guardy/internal/db"
)

func newTestClient(t *testing.T) *sqliteClient {
	t.Helper()
	ctx := context.Background()
	client, err := NewSQLiteClient(ctx, t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestVoteCastIsIdempotentPerUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	const (
		groupID   = int64(-1001)
		messageID = 42
		voterID   = int64(7)
	)

	if err := client.InitVoting(ctx, groupID, messageID, 100); err != nil {
		t.Fatalf("init voting: %v", err)
	}
	// Re-opening the same voting must be a no-op.
	if err := client.InitVoting(ctx, groupID, messageID, 999); err != nil {
		t.Fatalf("reopen voting: %v", err)
	}

	result, err := client.AddVoter(ctx, groupID, messageID, voterID)
	if err != nil {
		t.Fatalf("add voter: %v", err)
	}
	if result != db.VoteAccepted {
		t.Fatalf("first vote not accepted: %v", result)
	}
	if err := client.IncrementVote(ctx, groupID, messageID, true); err != nil {
		t.Fatalf("increment vote: %v", err)
	}

	result, err = client.AddVoter(ctx, groupID, messageID, voterID)
	if err != nil {
		t.Fatalf("add voter twice: %v", err)
	}
	if result != db.VoteAlreadyCounted {
		t.Fatalf("second vote should be rejected: %v", result)
	}

	voted, err := client.HasVoted(ctx, groupID, messageID, voterID)
	if err != nil {
		t.Fatalf("has voted: %v", err)
	}
	if !voted {
		t.Fatalf("expected voter to be recorded")
	}

	rec, err := client.TakeVoting(ctx, groupID, messageID)
	if err != nil {
		t.Fatalf("take voting: %v", err)
	}
	if rec.AlertMessageID != 100 {
		t.Fatalf("reopen must not overwrite alert message id: got %d", rec.AlertMessageID)
	}
	if rec.VoteYes != 1 || rec.VoteNo != 0 {
		t.Fatalf("tally reflects duplicate vote: yes=%d no=%d", rec.VoteYes, rec.VoteNo)
	}
}

func TestTakeVotingConcludesExactlyOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	const (
		groupID   = int64(-2002)
		messageID = 77
	)
	if err := client.InitVoting(ctx, groupID, messageID, 5); err != nil {
		t.Fatalf("init voting: %v", err)
	}

	const concurrency = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		taken int
	)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := client.TakeVoting(ctx, groupID, messageID)
			if err != nil {
				if !errors.Is(err, db.ErrNotFound) {
					t.Errorf("unexpected take error: %v", err)
				}
				return
			}
			if rec == nil {
				t.Errorf("nil record with nil error")
				return
			}
			mu.Lock()
			taken++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if taken != 1 {
		t.Fatalf("expected exactly one successful take, got %d", taken)
	}

	if _, err := client.TakeVoting(ctx, groupID, messageID); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("late take should observe not found, got %v", err)
	}

	// A vote arriving after conclusion grows nothing: the voter row is
	// inserted against a dead key and the tally row is gone.
	if err := client.IncrementVote(ctx, groupID, messageID, true); err != nil {
		t.Fatalf("late increment: %v", err)
	}
	if _, err := client.TakeVoting(ctx, groupID, messageID); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("late increment must not resurrect the record, got %v", err)
	}
}

func TestGroupConfigUpsertAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)

	const groupID = int64(-3003)

	cfg, err := client.GetGroupConfig(ctx, groupID)
	if err != nil {
		t.Fatalf("get missing config: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config for unknown group")
	}

	if err := client.SetGroupConfig(ctx, db.FullSecurityConfig(groupID)); err != nil {
		t.Fatalf("set config: %v", err)
	}
	cfg, err = client.GetGroupConfig(ctx, groupID)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if cfg.GuardyStatus != db.StatusEnabled || cfg.HumanVerification != db.VerificationWeb {
		t.Fatalf("unexpected config after preset: %+v", cfg)
	}

	cfg.Antiflood = "3"
	if err := client.SetGroupConfig(ctx, cfg); err != nil {
		t.Fatalf("update config: %v", err)
	}
	cfg, err = client.GetGroupConfig(ctx, groupID)
	if err != nil {
		t.Fatalf("get updated config: %v", err)
	}
	limit, enabled := cfg.AntifloodLimit()
	if !enabled || limit != 3 {
		t.Fatalf("unexpected antiflood limit: %d enabled=%v", limit, enabled)
	}

	if err := client.DeleteGroupConfig(ctx, groupID); err != nil {
		t.Fatalf("delete config: %v", err)
	}
	cfg, err = client.GetGroupConfig(ctx, groupID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if cfg != nil {
		t.Fatalf("config should be gone after delete")
	}
}
