package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/okoskine/inkwash/config"
	"github.com/okoskine/inkwash/internal/gemini"
	"github.com/okoskine/inkwash/internal/storage"
	"github.com/okoskine/inkwash/internal/studio"
	"github.com/okoskine/inkwash/internal/tgbot"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Load()
	if cfg.BotToken == "" {
		log.Fatal().Msg("BOT_TOKEN is not set")
	}

	tg, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telegram bot")
	}
	log.Info().Str("username", tg.Self.UserName).Msg("authorized on account")

	var descriptorCache studio.DescriptorCache
	if cfg.DBPath != "" {
		store, err := storage.NewDescriptorStore(cfg.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("dbPath", cfg.DBPath).Msg("failed to open descriptor store")
		}
		defer store.Close()
		descriptorCache = store
	}

	generator := studio.NewCachedGenerator(gemini.New(config.EnvCredentialProvider{}, gemini.Config{
		AuditModel:        cfg.AuditModel,
		ImageModel:        cfg.ImageModel,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}), descriptorCache)

	registry := studio.NewRegistry(cfg.SessionTTL, func() *studio.Session {
		return studio.NewSession(generator, studio.Options{
			RequestTimeout: cfg.RequestTimeout,
		})
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bot := tgbot.New(tg, registry)
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("gateway stopped with error")
	} else {
		log.Info().Msg("gateway stopped")
	}
}
