package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evolv-devices/storefront-backend/api/controllers"
	"github.com/evolv-devices/storefront-backend/api/middleware"
	"github.com/evolv-devices/storefront-backend/internal/broadcast"
	checkoutsvc "github.com/evolv-devices/storefront-backend/internal/checkout"
	"github.com/evolv-devices/storefront-backend/internal/reconcile"
	"github.com/evolv-devices/storefront-backend/pkg/config"
	"github.com/evolv-devices/storefront-backend/pkg/db"
	"github.com/evolv-devices/storefront-backend/pkg/logger"
	"github.com/evolv-devices/storefront-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	checkoutService *checkoutsvc.Service,
	reconcileService *reconcile.Service,
	broadcastService *broadcast.Service,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.Idempotency(redisClient, logg)).
			Post("/checkout", controllers.Checkout(checkoutService, logg))
		r.With(middleware.Idempotency(redisClient, logg)).
			Post("/reservations", controllers.Reservation(checkoutService, logg))

		r.Get("/checkout/confirm", controllers.CheckoutConfirm(reconcileService, logg))
		r.Get("/reservations/confirm", controllers.ReservationConfirm(reconcileService, logg))
		r.Get("/sessions/{sessionID}/status", controllers.SessionStatus(reconcileService, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.Admin, logg))
			r.With(middleware.Idempotency(redisClient, logg)).
				Post("/broadcast", controllers.Broadcast(broadcastService, logg))
		})
	})

	return r
}
