package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/okoskine/inkwash/config"
	"github.com/okoskine/inkwash/internal/gemini"
	"github.com/okoskine/inkwash/internal/server"
	"github.com/okoskine/inkwash/internal/storage"
	"github.com/okoskine/inkwash/internal/studio"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Load()

	var descriptorCache studio.DescriptorCache
	if cfg.DBPath != "" {
		store, err := storage.NewDescriptorStore(cfg.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("dbPath", cfg.DBPath).Msg("failed to open descriptor store")
		}
		defer store.Close()
		descriptorCache = store
		log.Info().Str("dbPath", cfg.DBPath).Msg("descriptor store initialized")
	}

	provider := config.EnvCredentialProvider{}
	if key, _ := provider.ActiveKey(); key == "" {
		log.Warn().Msg("GEMINI_API_KEY is not set; model requests will fail until supplied")
	}

	generator := studio.NewCachedGenerator(gemini.New(provider, gemini.Config{
		AuditModel:        cfg.AuditModel,
		ImageModel:        cfg.ImageModel,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}), descriptorCache)

	registry := studio.NewRegistry(cfg.SessionTTL, func() *studio.Session {
		return studio.NewSession(generator, studio.Options{
			RequestTimeout: cfg.RequestTimeout,
		})
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(registry).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("web studio started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}
