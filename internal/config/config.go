package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string   `env:"TOKEN,required"`
		BotURL           string   `env:"BOT_URL"`
		DefaultLanguage  string   `env:"LANG,default=en"`
		EnabledHandlers  []string `env:"HANDLERS,default=admin,gatekeeper,sentinel"`
		LogLevel         int      `env:"LOG_LEVEL,default=2"`
		DotPath          string   `env:"DOT_PATH,default=~/.guardy"`
		MetricsAddr      string   `env:"METRICS_ADDR,default=:2112"`
		LLM              LLM
		ScamControl      ScamControl
	}

	LLM struct {
		APIKey  string `env:"LLM_API_KEY"`
		Model   string `env:"LLM_API_MODEL,default=gpt-4o-mini"`
		BaseURL string `env:"LLM_API_URL,default=https://api.openai.com/v1"`
		Type    string `env:"LLM_API_TYPE,default=openai"`
	}

	ScamControl struct {
		ModelsDir       string  `env:"SCAM_MODELS_DIR,default=models"`
		ModelName       string  `env:"SCAM_MODEL_NAME,default=Titeiiko/OTIS-Official-Spam-Model"`
		AlertThreshold  float64 `env:"SCAM_ALERT_THRESHOLD,default=0.6"`
		AssistantGroups []int64 `env:"ASSISTANT_GROUPS"`

		VotingWindow     time.Duration `env:"SCAM_VOTING_WINDOW,default=60s"`
		AnnouncementTTL  time.Duration `env:"SCAM_ANNOUNCEMENT_TTL,default=10s"`
		AssistantTimeout time.Duration `env:"ASSISTANT_TIMEOUT,default=30s"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("GUARDY_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		home, err := os.UserHomeDir()
		if err != nil {
			globalErr = fmt.Errorf("get user home directory: %w", err)
			return
		}
		cfg.DotPath = strings.Replace(cfg.DotPath, "~", home, 1)
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}

// IsAssistantGroup reports whether the mention-triggered assistant is enabled
// for the chat.
func (sc ScamControl) IsAssistantGroup(chatID int64) bool {
	for _, id := range sc.AssistantGroups {
		if id == chatID {
			return true
		}
	}
	return false
}
