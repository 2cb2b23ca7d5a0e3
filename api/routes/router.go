package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fraxionlabs/fraxion-backend/api/controllers"
	"github.com/fraxionlabs/fraxion-backend/api/middleware"
	"github.com/fraxionlabs/fraxion-backend/internal/anchor"
	checkoutsvc "github.com/fraxionlabs/fraxion-backend/internal/checkout"
	"github.com/fraxionlabs/fraxion-backend/internal/inventory"
	"github.com/fraxionlabs/fraxion-backend/internal/ledger"
	"github.com/fraxionlabs/fraxion-backend/internal/listings"
	"github.com/fraxionlabs/fraxion-backend/pkg/config"
	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

// RouterParams bundles everything the HTTP surface needs.
type RouterParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	ListingService   *listings.Service
	ListingRepo      listings.Repository
	CheckoutService  *checkoutsvc.Service
	InventoryService *inventory.Service
	LedgerRepo       ledger.Repository
	LedgerService    ledger.Service
	Flags            *anchor.Flags
	RateLimiter      RateLimiterStore
	Pingers          map[string]controllers.Pinger
	Metrics          prometheus.Gatherer
}

// RateLimiterStore is the counter backend for request throttling.
type RateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Pingers))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	apiPolicy := middleware.NewRateLimitPolicy("api", cfg.RateLimit.Window, cfg.RateLimit.Limit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(apiPolicy, params.RateLimiter, logg))

		r.Get("/market/status", controllers.SystemStatus(params.CheckoutService, logg))

		r.Route("/listings", func(r chi.Router) {
			r.Post("/", controllers.ListingCreate(params.ListingService, logg))
			r.Get("/{listingId}", controllers.ListingFetch(params.ListingRepo, logg))
			r.Post("/{listingId}/cancel", controllers.ListingCancel(params.ListingService, logg))
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", controllers.Reserve(params.CheckoutService, cfg.Reservation.HoldWindow, logg))
			r.Post("/{reservationId}/finalize", controllers.Finalize(params.CheckoutService, logg))
			r.Post("/{reservationId}/cancel", controllers.ReservationCancel(params.CheckoutService, logg))
		})

		r.Post("/gifts", controllers.Gift(params.CheckoutService, logg))
		r.Post("/consumptions", controllers.Consume(params.CheckoutService, logg))

		r.Get("/ledger/records/{recordId}", controllers.LedgerRecordFetch(params.LedgerRepo, params.LedgerService, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(apiPolicy, params.RateLimiter, logg))
		r.Use(middleware.RequireRole(string(enums.PrincipalRoleAdmin), logg))
		r.Post("/assets", controllers.AdminAssetIssue(params.InventoryService, logg))
		r.Post("/anchor/force-clear", controllers.AdminForceClearDegraded(params.Flags, logg))
	})

	return r
}
