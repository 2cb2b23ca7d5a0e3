package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fraxionlabs/fraxion-backend/internal/inventory"
	"github.com/fraxionlabs/fraxion-backend/internal/ledger"
	"github.com/fraxionlabs/fraxion-backend/internal/listings"
	"github.com/fraxionlabs/fraxion-backend/internal/rates"
	"github.com/fraxionlabs/fraxion-backend/internal/reservation"
	"github.com/fraxionlabs/fraxion-backend/internal/worker"
	"github.com/fraxionlabs/fraxion-backend/pkg/bigquery"
	"github.com/fraxionlabs/fraxion-backend/pkg/config"
	"github.com/fraxionlabs/fraxion-backend/pkg/db"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
	"github.com/fraxionlabs/fraxion-backend/pkg/metrics"
	"github.com/fraxionlabs/fraxion-backend/pkg/migrate"
	"github.com/fraxionlabs/fraxion-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gormDB := dbClient.DB()
	ledgerRepo := ledger.NewRepository(gormDB)

	ratesClient, err := rates.NewHTTPClient(cfg.Rates)
	if err != nil {
		logg.Error(context.Background(), "failed to create rates client", err)
		os.Exit(1)
	}
	ratesService, err := rates.NewService(ratesClient, redisClient, logg, cfg.Rates.CacheTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create rates service", err)
		os.Exit(1)
	}

	engine, err := reservation.NewEngine(reservation.EngineParams{
		DB:           gormDB,
		Reservations: reservation.NewRepository(gormDB),
		Listings:     listings.NewRepository(gormDB),
		Inventory:    inventory.NewRepository(gormDB),
		Rates:        ratesService,
		Logger:       logg,
		HoldWindow:   cfg.Reservation.HoldWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation engine", err)
		os.Exit(1)
	}

	sweepJob, err := worker.NewReservationSweepJob(worker.ReservationSweepJobParams{
		Engine: engine,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep job", err)
		os.Exit(1)
	}

	auditJob, err := worker.NewIntegrityAuditJob(worker.IntegrityAuditJobParams{
		Records: ledgerRepo,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create audit job", err)
		os.Exit(1)
	}

	// warehouse export only runs when a GCP project is wired
	var exportJob worker.Job
	if cfg.GCP.ProjectID != "" {
		bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery client", err)
			}
		}()

		exportJob, err = worker.NewLedgerExportJob(worker.LedgerExportJobParams{
			DB:       gormDB,
			Records:  ledgerRepo,
			Inserter: bqClient,
			Table:    cfg.BigQuery.LedgerExportTable,
			Logger:   logg,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create export job", err)
			os.Exit(1)
		}
	}

	lock, err := worker.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := worker.NewService(worker.ServiceParams{
		Logger:   logg,
		Registry: worker.NewRegistry(sweepJob, auditJob, exportJob),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Reservation.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
