package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Pairline/internal/adapters/http"
	"github.com/dkeye/Pairline/internal/adapters/storage/memory"
	"github.com/dkeye/Pairline/internal/adapters/storage/sqlite"
	"github.com/dkeye/Pairline/internal/app"
	"github.com/dkeye/Pairline/internal/app/orch"
	"github.com/dkeye/Pairline/internal/config"
	"github.com/dkeye/Pairline/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.LoadAndWatch()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := config.ApplyLogLevel(cfg.LogLevel); err != nil {
		log.Warn().Err(err).Msg("keeping info log level")
	}
	if cfg.Mode == "release" {
		// Plain JSON lines in production.
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open message store")
	}

	hub := orch.New(store, app.SimplePolicy{}, orch.Options{
		StoreTimeout: cfg.Store.Timeout,
		RingTimeout:  cfg.Call.RingTimeout,
	})

	r := router.SetupRouter(ctx, cfg, hub, store, router.SessionAuthenticator{})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Pairline server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		// Hijacked websockets are not tracked by Shutdown; the hub closes them.
		hub.Shutdown()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("close message store")
	}
	log.Info().Msg("Server exited gracefully")
}

func openStore(cfg config.StoreConfig) (core.MessageStore, error) {
	switch cfg.Driver {
	case "memory":
		log.Warn().Str("module", "main").Msg("using in-memory message store, history is lost on restart")
		return memory.NewMessageStore(), nil
	default:
		return sqlite.Open(cfg.Path)
	}
}
