package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/axioma-ai-labs/guardy/internal/db"
)

// ServiceBot defines bot-specific operations
type ServiceBot interface {
	GetBot() *api.BotAPI
}

// ServiceDB defines database-specific operations
type ServiceDB interface {
	GetDB() db.Client
}

// Service defines the core bot service interface
type Service interface {
	ServiceBot
	ServiceDB
	GetGroupConfig(ctx context.Context, groupID int64) (*db.GroupConfig, error)
	SetGroupConfig(ctx context.Context, cfg *db.GroupConfig) error
	IsGroupAdmin(ctx context.Context, groupID, userID int64) (bool, error)
	GetLanguage(chat *api.Chat, user *api.User) string
}

// Handler defines the interface for all update handlers in the system
type Handler interface {
	Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error)
}
