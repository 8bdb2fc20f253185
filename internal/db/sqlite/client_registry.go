package sqlite

import (
	"context"

	"github.com/axioma-ai-labs/guardy/internal/db"
)

func (c *sqliteClient) GroupExists(ctx context.Context, groupID int64) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM groups WHERE group_id = ?`, groupID)
	return count > 0, err
}

func (c *sqliteClient) AddGroup(ctx context.Context, group *db.Group) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO groups (group_id, title, username, type, member_count, added_by)
		VALUES (:group_id, :title, :username, :type, :member_count, :added_by)
		ON CONFLICT(group_id) DO UPDATE SET
			title = excluded.title,
			username = excluded.username,
			type = excluded.type,
			member_count = excluded.member_count
	`
	_, err := c.db.NamedExecContext(ctx, query, group)
	return err
}

func (c *sqliteClient) DeleteGroup(ctx context.Context, groupID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM groups WHERE group_id = ?`, groupID)
	return err
}

func (c *sqliteClient) UserExists(ctx context.Context, userID int64) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users WHERE user_id = ?`, userID)
	return count > 0, err
}

func (c *sqliteClient) AddUser(ctx context.Context, user *db.User) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO users (user_id, username, first_name, last_name)
		VALUES (?, ?, ?, ?)
	`, user.UserID, user.Username, user.FirstName, user.LastName)
	return err
}
