package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/axioma-ai-labs/guardy/internal/db"
)

func (c *sqliteClient) GetVerification(ctx context.Context, groupID, userID int64) (*db.VerificationRecord, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var rec db.VerificationRecord
	err := c.db.GetContext(ctx, &rec, `
		SELECT group_id, user_id, group_title, group_username, welcome_message_id, kind, created_at
		FROM verifications
		WHERE group_id = ? AND user_id = ?
	`, groupID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// GetLatestVerification returns the freshest pending verification of a user
// across all groups.
func (c *sqliteClient) GetLatestVerification(ctx context.Context, userID int64) (*db.VerificationRecord, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var rec db.VerificationRecord
	err := c.db.GetContext(ctx, &rec, `
		SELECT group_id, user_id, group_title, group_username, welcome_message_id, kind, created_at
		FROM verifications
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// PutVerification upserts on (group, user): a repeated join supersedes the
// previous pending verification.
func (c *sqliteClient) PutVerification(ctx context.Context, rec *db.VerificationRecord) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO verifications (group_id, user_id, group_title, group_username, welcome_message_id, kind)
		VALUES (:group_id, :user_id, :group_title, :group_username, :welcome_message_id, :kind)
		ON CONFLICT(group_id, user_id) DO UPDATE SET
			group_title = excluded.group_title,
			group_username = excluded.group_username,
			welcome_message_id = excluded.welcome_message_id,
			kind = excluded.kind,
			created_at = CURRENT_TIMESTAMP
	`
	_, err := c.db.NamedExecContext(ctx, query, rec)
	return err
}

func (c *sqliteClient) DeleteVerification(ctx context.Context, groupID, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM verifications WHERE group_id = ? AND user_id = ?`, groupID, userID)
	return err
}
