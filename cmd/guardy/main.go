package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/axioma-ai-labs/guardy/internal/adapters"
	"github.com/axioma-ai-labs/guardy/internal/adapters/llm/gemini"
	"github.com/axioma-ai-labs/guardy/internal/adapters/llm/openai"
	"github.com/axioma-ai-labs/guardy/internal/antiflood"
	"github.com/axioma-ai-labs/guardy/internal/bot"
	"github.com/axioma-ai-labs/guardy/internal/captcha"
	"github.com/axioma-ai-labs/guardy/internal/config"
	"github.com/axioma-ai-labs/guardy/internal/db/sqlite"
	"github.com/axioma-ai-labs/guardy/internal/handlers"
	"github.com/axioma-ai-labs/guardy/internal/infra"
	"github.com/axioma-ai-labs/guardy/internal/lifecycle"
	"github.com/axioma-ai-labs/guardy/internal/observability"
	"github.com/axioma-ai-labs/guardy/internal/sched"
	"github.com/axioma-ai-labs/guardy/internal/spam"
)

type component struct {
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (c component) Start(ctx context.Context) error {
	if c.start == nil {
		return nil
	}
	return c.start(ctx)
}

func (c component) Stop(ctx context.Context) error {
	if c.stop == nil {
		return nil
	}
	return c.stop(ctx)
}

func main() {
	log.SetFormatter(&config.GdFormatter{})
	log.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := observability.Init(ctx, cfg.MetricsAddr); err != nil {
		log.WithError(err).Fatalln("cant initialize observability")
	}

	dbClient, err := sqlite.NewSQLiteClient(ctx, cfg.DotPath, "guardy.db")
	if err != nil {
		log.WithError(err).Fatalln("cant open database")
	}

	tgbot, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		log.WithError(err).Fatalln("cant initialize bot api")
	}
	tgbot.Debug = false
	log.WithField("bot", tgbot.Self.UserName).Info("authorized")

	classifier, err := spam.NewModelClassifier(cfg.ScamControl.ModelsDir, cfg.ScamControl.ModelName)
	if err != nil {
		log.WithError(err).Warn("scam detection disabled")
	}

	var assistant handlers.Assistant
	if cfg.LLM.APIKey != "" {
		var model adapters.LLM
		switch cfg.LLM.Type {
		case "gemini":
			model = gemini.NewGemini(cfg.LLM.APIKey, cfg.LLM.Model, log.WithField("object", "Gemini"))
		default:
			model = openai.NewOpenAI(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, log.WithField("object", "OpenAI"))
		}
		assistant = handlers.NewLLMAssistant(model)
	}

	scheduler := sched.NewScheduler()
	service := bot.NewService(tgbot, dbClient)
	generator := captcha.NewGenerator(time.Now().UnixNano(), captcha.NewBitmapRenderer(time.Now().UnixNano()))
	flood := antiflood.NewTracker()

	bot.RegisterUpdateHandler("admin", handlers.NewAdmin(service, scheduler, flood))
	bot.RegisterUpdateHandler("gatekeeper", handlers.NewGatekeeper(service, generator, scheduler))
	bot.RegisterUpdateHandler("sentinel", handlers.NewSentinel(service, classifier, assistant, flood, scheduler, cfg.ScamControl))

	runtime := lifecycle.NewRuntime(
		component{stop: func(context.Context) error { scheduler.Stop(); return nil }},
		component{stop: func(context.Context) error { return dbClient.Close() }},
	)
	if err := runtime.Start(ctx); err != nil {
		log.WithError(err).Fatalln("cant start runtime")
	}

	go infra.GoRecoverable(-1, "process_updates", func() {
		defer cancel()

		updateConfig := api.NewUpdate(0)
		updateConfig.Timeout = 60
		processor := bot.NewUpdateProcessor(service)

		updates, errs := bot.GetUpdatesChans(ctx, tgbot, updateConfig)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if err := processor.Process(ctx, &update); err != nil {
					log.WithError(err).Errorln("cant process update")
				}
			case err := <-errs:
				if err != nil {
					log.WithError(err).Errorln("updates channel failed")
				}
				return
			}
		}
	})

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case <-infra.MonitorExecutable(ctx):
		log.Info("binary replaced, restarting")
		cancel()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := runtime.Stop(stopCtx); err != nil {
		log.WithError(err).Error("shutdown finished with errors")
	}
}
