package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/axioma-ai-labs/guardy/internal/db"
)

func (c *sqliteClient) GetGroupConfig(ctx context.Context, groupID int64) (*db.GroupConfig, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var cfg db.GroupConfig
	err := c.db.GetContext(ctx, &cfg, `
		SELECT group_id, guardy_status, link_removal, forwarded_removal, human_verification, bot_removal, antiflood, created_at, updated_at
		FROM group_configs
		WHERE group_id = ?
	`, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func (c *sqliteClient) SetGroupConfig(ctx context.Context, cfg *db.GroupConfig) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO group_configs (group_id, guardy_status, link_removal, forwarded_removal, human_verification, bot_removal, antiflood)
		VALUES (:group_id, :guardy_status, :link_removal, :forwarded_removal, :human_verification, :bot_removal, :antiflood)
		ON CONFLICT(group_id) DO UPDATE SET
			guardy_status = excluded.guardy_status,
			link_removal = excluded.link_removal,
			forwarded_removal = excluded.forwarded_removal,
			human_verification = excluded.human_verification,
			bot_removal = excluded.bot_removal,
			antiflood = excluded.antiflood,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := c.db.NamedExecContext(ctx, query, cfg)
	return err
}

func (c *sqliteClient) DeleteGroupConfig(ctx context.Context, groupID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM group_configs WHERE group_id = ?`, groupID)
	return err
}
