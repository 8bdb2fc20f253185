package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/axioma-ai-labs/guardy/internal/db"
)

// InitVoting opens a tally with zero counts. Opening an already-open voting
// is a no-op.
func (c *sqliteClient) InitVoting(ctx context.Context, groupID int64, messageID, alertMessageID int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO scam_votings (group_id, message_id, alert_message_id, vote_yes, vote_no)
		VALUES (?, ?, ?, 0, 0)
	`, groupID, messageID, alertMessageID)
	return err
}

// AddVoter is the one-vote-per-user gate: the primary key on
// (group, message, user) makes the insert an atomic compare-and-insert, so
// two concurrent votes from the same user cannot both pass.
func (c *sqliteClient) AddVoter(ctx context.Context, groupID int64, messageID int, userID int64) (db.VoteResult, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO scam_voters (group_id, message_id, user_id)
		VALUES (?, ?, ?)
	`, groupID, messageID, userID)
	if err != nil {
		return db.VoteAlreadyCounted, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return db.VoteAlreadyCounted, err
	}
	if affected == 0 {
		return db.VoteAlreadyCounted, nil
	}
	return db.VoteAccepted, nil
}

func (c *sqliteClient) HasVoted(ctx context.Context, groupID int64, messageID int, userID int64) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM scam_voters WHERE group_id = ? AND message_id = ? AND user_id = ?
	`, groupID, messageID, userID)
	return count > 0, err
}

func (c *sqliteClient) IncrementVote(ctx context.Context, groupID int64, messageID int, yes bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	column := "vote_no"
	if yes {
		column = "vote_yes"
	}
	_, err := c.db.ExecContext(ctx, `
		UPDATE scam_votings SET `+column+` = `+column+` + 1
		WHERE group_id = ? AND message_id = ?
	`, groupID, messageID)
	return err
}

// TakeVoting reads and deletes the tally in one transaction. The second
// caller observes ErrNotFound, which is what makes vote conclusion
// at-most-once even when a timer races a manual conclude.
func (c *sqliteClient) TakeVoting(ctx context.Context, groupID int64, messageID int) (*db.VotingRecord, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var rec db.VotingRecord
	err = tx.GetContext(ctx, &rec, `
		SELECT group_id, message_id, alert_message_id, vote_yes, vote_no, created_at
		FROM scam_votings
		WHERE group_id = ? AND message_id = ?
	`, groupID, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM scam_votings WHERE group_id = ? AND message_id = ?`, groupID, messageID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scam_voters WHERE group_id = ? AND message_id = ?`, groupID, messageID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &rec, nil
}
