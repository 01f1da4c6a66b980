package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"storefront-bot/internal/api"
	"storefront-bot/internal/config"
	"storefront-bot/internal/conversation"
	"storefront-bot/internal/logger"
	"storefront-bot/internal/role"
	"storefront-bot/internal/scheduler"
	"storefront-bot/internal/server"
	"storefront-bot/internal/storage"
	"storefront-bot/internal/telegram"
)

func main() {
	envErr := godotenv.Load(".env")

	cfg := config.New()
	logger.Init("storefront-bot", cfg.Debug)
	if envErr != nil {
		log.Debug().Err(envErr).Msg(".env file not loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg.APIBaseURL, cfg.APITimeout)
	convs := newConversationStore(ctx, cfg)

	var rec storage.Recorder
	if cfg.EventLogPath != "" {
		fr, err := storage.NewFileRecorder(cfg.EventLogPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.EventLogPath).Msg("dispatch journal disabled")
		} else {
			rec = fr
		}
	}

	bot, err := telegram.New(cfg.TelegramBotToken, client, role.NewResolver(client), convs, telegram.Options{
		Passcodes: map[role.Role]string{
			role.Admin:     cfg.AdminPasscode,
			role.Moderator: cfg.ModeratorPasscode,
		},
		ParseMode:     cfg.MessageParseMode,
		Recorder:      rec,
		WebhookSecret: cfg.WebhookSecretToken(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create bot")
	}

	sched := scheduler.New()
	// redis expires conversations through key TTLs
	if cfg.ConversationBackend != config.BackendRedis {
		if err := sched.Add(cfg.SweepSchedule, "conversation-sweep", func(ctx context.Context) error {
			if n := convs.Sweep(ctx, time.Now().Add(-cfg.ConversationTTL)); n > 0 {
				log.Info().Int("expired", n).Msg("stale conversations swept")
			}
			return nil
		}); err != nil {
			log.Fatal().Err(err).Msg("invalid sweep schedule")
		}
	}
	if cfg.AdminChatID != 0 {
		if err := sched.Add(cfg.ReportSchedule, "daily-report", func(ctx context.Context) error {
			return bot.SendDailyReport(ctx, cfg.AdminChatID)
		}); err != nil {
			log.Fatal().Err(err).Msg("invalid report schedule")
		}
	}
	if sched.HasJobs() {
		sched.Start()
		defer sched.Stop()
	}

	srv := server.New(server.Config{
		Addr:          cfg.HTTPAddr,
		WebhookPath:   cfg.WebhookPath,
		WebhookURL:    cfg.WebhookURL,
		WebhookSecret: cfg.WebhookSecretToken(),
	}, bot)
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	if cfg.WebhookURL != "" {
		if err := bot.RegisterWebhook(cfg.WebhookURL); err != nil {
			log.Error().Err(err).Msg("failed to register webhook, retry with GET /setwebhook")
		}
		<-ctx.Done()
	} else {
		if err := bot.RemoveWebhook(); err != nil {
			log.Warn().Err(err).Msg("failed to remove webhook")
		}
		bot.Start(ctx)
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	bot.Wait()
}

func newConversationStore(ctx context.Context, cfg *config.Config) conversation.Store {
	switch cfg.ConversationBackend {
	case config.BackendRedis:
		rdb, err := conversation.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("conversations stored in redis")
		return conversation.NewRedisStore(rdb, cfg.ConversationTTL)
	case config.BackendMemory, "":
		return conversation.NewMemoryStore()
	default:
		log.Fatal().Str("backend", string(cfg.ConversationBackend)).Msg("unknown conversation backend")
		return nil
	}
}
