package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fraxionlabs/fraxion-backend/internal/anchor"
	"github.com/fraxionlabs/fraxion-backend/internal/ledger"
	"github.com/fraxionlabs/fraxion-backend/pkg/config"
	"github.com/fraxionlabs/fraxion-backend/pkg/db"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
	"github.com/fraxionlabs/fraxion-backend/pkg/metrics"
	"github.com/fraxionlabs/fraxion-backend/pkg/migrate"
	"github.com/fraxionlabs/fraxion-backend/pkg/pubsub"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "anchor-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "anchor-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()

	flags, err := anchor.NewFlags(gormDB, logg, cfg.Anchor.FlagCacheTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create flag service", err)
		os.Exit(1)
	}

	anchorClient, err := anchor.NewHTTPClient(cfg.Anchor)
	if err != nil {
		logg.Error(context.Background(), "failed to create anchor client", err)
		os.Exit(1)
	}

	ledgerRepo := ledger.NewRepository(gormDB)
	backlogRepo := anchor.NewBacklogRepository(gormDB)

	// anchored events are only published when a pubsub project is wired
	var notifier anchor.Notifier
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()

		anchorNotifier, err := pubsub.NewAnchorNotifier(pubsubClient, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create anchor notifier", err)
			os.Exit(1)
		}
		notifier = anchorNotifier
	}

	processor, err := anchor.NewProcessor(anchor.ProcessorParams{
		DB:        gormDB,
		Client:    anchorClient,
		Ledger:    ledgerRepo,
		Backlog:   backlogRepo,
		Flags:     flags,
		Logger:    logg,
		Notifier:  notifier,
		BatchSize: cfg.Anchor.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create backlog processor", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient,
		Processor: processor,
		Backlog:   backlogRepo,
		Flags:     flags,
		Metrics:   metrics.NewAnchorMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create anchor worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting anchor worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "anchor worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "anchor worker shutting down gracefully")
}
