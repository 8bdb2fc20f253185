package bot

import (
	"context"
	"fmt"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/axioma-ai-labs/guardy/internal/config"
	"github.com/axioma-ai-labs/guardy/internal/db"
)

type service struct {
	bot *api.BotAPI
	db  db.Client

	adminChecks singleflight.Group
}

func NewService(bot *api.BotAPI, db db.Client) *service {
	return &service{
		bot: bot,
		db:  db,
	}
}

func (s *service) GetBot() *api.BotAPI {
	return s.bot
}

func (s *service) GetDB() db.Client {
	return s.db
}

// GetGroupConfig returns the stored configuration of a group, falling back
// to the disabled default when the group was never configured.
func (s *service) GetGroupConfig(ctx context.Context, groupID int64) (*db.GroupConfig, error) {
	cfg, err := s.db.GetGroupConfig(ctx, groupID)
	if err != nil {
		return nil, errors.WithMessage(err, "cant get group config")
	}
	if cfg == nil {
		cfg = db.DefaultGroupConfig(groupID)
	}
	return cfg, nil
}

func (s *service) SetGroupConfig(ctx context.Context, cfg *db.GroupConfig) error {
	return errors.WithMessage(s.db.SetGroupConfig(ctx, cfg), "cant set group config")
}

// IsGroupAdmin collapses concurrent lookups for the same member into one
// remote call; a burst of messages from one user costs a single request.
func (s *service) IsGroupAdmin(ctx context.Context, groupID, userID int64) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}
	result, err, _ := s.adminChecks.Do(fmt.Sprintf("%d:%d", groupID, userID), func() (interface{}, error) {
		member, err := s.bot.GetChatMember(api.GetChatMemberConfig{
			ChatConfigWithUser: api.ChatConfigWithUser{
				ChatConfig: api.ChatConfig{ChatID: groupID},
				UserID:     userID,
			},
		})
		if err != nil {
			return false, errors.WithMessage(err, "cant get chat member")
		}
		return member.IsCreator() || member.IsAdministrator(), nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func (s *service) GetLanguage(chat *api.Chat, user *api.User) string {
	if user != nil && user.LanguageCode != "" {
		return user.LanguageCode
	}
	return config.Get().DefaultLanguage
}
