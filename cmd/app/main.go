// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"opsvision/internal/bootstrap"
	"opsvision/internal/config"
	"opsvision/internal/infra/api"
	pg "opsvision/internal/infra/db/postgres"
	"opsvision/internal/infra/logging"
	"opsvision/internal/infra/metrics"
	red "opsvision/internal/infra/redis"
	"opsvision/internal/infra/sched"
	"opsvision/internal/infra/worker"
	"opsvision/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no redaction)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := cfg.ValidateServer(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Store ----
	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("close store")
		}
	}()

	// ---- Gemini media + chat ----
	media, err := bootstrap.NewMedia(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("media")
	}
	chatAI, err := bootstrap.NewChatAI(cfg, media.Client, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("chat")
	}

	notifier, err := bootstrap.NewNotifier(cfg.Notify, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier")
	}

	// ---- Use cases ----
	videoUC := usecase.NewVideoUseCase(media.Poller, media.Files, media.Analyzer, store.Jobs, notifier,
		usecase.VideoOptions{DeleteAfterUse: cfg.AI.DeleteAfterUse, UploadDir: cfg.API.UploadDir}, logger)
	chatUC := usecase.NewChatUseCase(chatAI, bootstrap.DefaultChatModel(cfg, true))

	manuals, err := bootstrap.OpenManualStore(ctx, cfg.Manuals, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("manuals")
	}
	defer manuals.Close()
	manualUC := usecase.NewManualUseCase(manuals.Chunks, bootstrap.NewEmbedder(cfg, media.Client),
		usecase.NewImageUseCase(media.Analyzer), bootstrap.ManualOptions(cfg.Manuals), logger)

	// ---- HTTP ----
	var limiter api.Limiter
	if store.Redis != nil && cfg.API.RateLimit > 0 {
		limiter = red.NewRateLimiter(store.Redis)
	} else if cfg.API.RateLimit > 0 {
		logger.Warn().Msg("api.rate_limit is set but redis is not configured; rate limiting disabled")
	}
	server := api.NewServer(cfg.API, videoUC, chatUC, limiter, logger, api.WithManuals(manualUC))

	// ---- Workers ----
	pool := worker.NewPool(cfg.Worker.Count, logger)
	processor := worker.NewAnalysisProcessor(videoUC, cfg.Worker.Tick, logger)

	g, gctx := errgroup.WithContext(ctx)
	pool.Start(gctx)
	g.Go(func() error {
		processor.Start(gctx, pool)
		return nil
	})
	g.Go(func() error { return server.Run(gctx) })
	reaper := sched.NewStaleReaper(time.Minute, cfg.Worker.StaleAfter, store.Jobs, logger)
	g.Go(func() error {
		if err := reaper.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if store.Pool != nil {
		g.Go(func() error {
			pg.ReportPoolStats(gctx, store.Pool, 15*time.Second)
			return nil
		})
	}

	logger.Info().Str("version", version).Int("workers", pool.Size()).Msg("opsvision started")
	err = g.Wait()
	pool.Stop()
	if err != nil {
		logger.Error().Err(err).Msg("stopped with error")
		return
	}
	logger.Info().Msg("shutdown complete")
}
