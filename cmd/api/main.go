package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fraxionlabs/fraxion-backend/api/controllers"
	"github.com/fraxionlabs/fraxion-backend/api/routes"
	"github.com/fraxionlabs/fraxion-backend/internal/anchor"
	"github.com/fraxionlabs/fraxion-backend/internal/checkout"
	"github.com/fraxionlabs/fraxion-backend/internal/inventory"
	"github.com/fraxionlabs/fraxion-backend/internal/ledger"
	"github.com/fraxionlabs/fraxion-backend/internal/listings"
	"github.com/fraxionlabs/fraxion-backend/internal/payments"
	"github.com/fraxionlabs/fraxion-backend/internal/rates"
	"github.com/fraxionlabs/fraxion-backend/internal/reservation"
	"github.com/fraxionlabs/fraxion-backend/pkg/config"
	"github.com/fraxionlabs/fraxion-backend/pkg/db"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
	"github.com/fraxionlabs/fraxion-backend/pkg/migrate"
	"github.com/fraxionlabs/fraxion-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	flags, err := anchor.NewFlags(gormDB, logg, cfg.Anchor.FlagCacheTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create flag service", err)
		os.Exit(1)
	}

	ledgerRepo := ledger.NewRepository(gormDB)
	ledgerService, err := ledger.NewService(ledgerRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	inventoryRepo := inventory.NewRepository(gormDB)
	listingRepo := listings.NewRepository(gormDB)
	reservationRepo := reservation.NewRepository(gormDB)
	backlogRepo := anchor.NewBacklogRepository(gormDB)

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
		Reservations: reservationRepo,
		Listings:     listingRepo,
		Inventory:    inventoryRepo,
		Rates:        ratesService,
		Logger:       logg,
		HoldWindow:   cfg.Reservation.HoldWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation engine", err)
		os.Exit(1)
	}

	anchorClient, err := anchor.NewHTTPClient(cfg.Anchor)
	if err != nil {
		logg.Error(context.Background(), "failed to create anchor client", err)
		os.Exit(1)
	}
	publisher, err := anchor.NewPublisher(anchor.PublisherParams{
		Client:            anchorClient,
		Ledger:            ledgerRepo,
		Backlog:           backlogRepo,
		Flags:             flags,
		Logger:            logg,
		DegradedThreshold: cfg.Anchor.DegradedThreshold,
		DegradedWindow:    cfg.Anchor.DegradedWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create anchor publisher", err)
		os.Exit(1)
	}

	paymentsClient, err := payments.NewHTTPClient(cfg.Payment)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment client", err)
		os.Exit(1)
	}
	verifier, err := payments.NewVerifier(paymentsClient, logg, cfg.Payment)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment verifier", err)
		os.Exit(1)
	}

	inventoryService, err := inventory.NewService(inventory.ServiceParams{
		DB:     gormDB,
		Ledger: ledgerService,
		Anchor: publisher,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	listingService, err := listings.NewService(listings.ServiceParams{
		DB:        gormDB,
		Listings:  listingRepo,
		Inventory: inventoryRepo,
		Ledger:    ledgerService,
		Anchor:    publisher,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create listing service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		DB:           gormDB,
		Engine:       engine,
		Reservations: reservationRepo,
		Listings:     listingRepo,
		Inventory:    inventoryRepo,
		Ledger:       ledgerService,
		Verifier:     verifier,
		Flags:        flags,
		Backlog:      backlogRepo,
		Anchor:       publisher,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:           cfg,
			Logger:           logg,
			ListingService:   listingService,
			ListingRepo:      listingRepo,
			CheckoutService:  checkoutService,
			InventoryService: inventoryService,
			LedgerRepo:       ledgerRepo,
			LedgerService:    ledgerService,
			Flags:            flags,
			RateLimiter:      redisClient,
			Pingers: map[string]controllers.Pinger{
				"postgres": dbClient,
				"redis":    redisClient,
			},
			Metrics: prometheus.DefaultGatherer,
		}),
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}
