// Package server exposes the billing engine over HTTP.
package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"prepaid-billing-go/internal/api"
	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/observability"
	"prepaid-billing-go/internal/sweep"
	"prepaid-billing-go/internal/topup"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("prepaid-billing-go/internal/server")

// UserIdHeader carries the user id resolved by the upstream auth layer.
const UserIdHeader = "X-User-Id"

// IdempotencyKeyHeader lets clients retry top-up creation without opening a second intent.
const IdempotencyKeyHeader = "Idempotency-Key"

// Services are the handlers' collaborators. TopUps is nil when no payment
// processor is configured.
type Services struct {
	Ledger    *api.LedgerService
	TopUps    *topup.Service
	Sweeper   *sweep.Sweeper
	Metrics   *observability.Metrics
	CronToken string
}

func NewRouter(svcs Services, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svcs.Ledger, logger))
	if svcs.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(svcs.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		// Signed by the processor, no user identity
		r.Post("/webhooks/stripe", stripeWebhookHandler(svcs.TopUps, logger))

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Post("/communications", communicationHandler(svcs.Ledger, logger))
			r.Post("/usage", usageHandler(svcs.Ledger, logger))

			r.Get("/wallet", walletHandler(svcs.Ledger, logger))
			r.Get("/wallet/transactions", transactionsHandler(svcs.Ledger, logger))
			r.Get("/wallet/sufficient", sufficientBalanceHandler(svcs.Ledger, logger))
			r.Post("/wallet/topups", createTopUpHandler(svcs.TopUps, logger))
			r.Post("/wallet/topups/{intentId}/confirm", confirmTopUpHandler(svcs.TopUps, logger))
		})

		r.Group(func(r chi.Router) {
			r.Use(requireCronToken(svcs.CronToken))

			r.Post("/billing/monthly", runSweepHandler(svcs.Sweeper, logger))
			r.Get("/billing/monthly", sweepStatusHandler(svcs.Sweeper, logger))
		})
	})

	return r
}

// requireUser places the upstream-resolved identity into the request context.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId := strings.TrimSpace(r.Header.Get(UserIdHeader))
		if userId == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(models.WithUserIdentity(r.Context(), userId)))
	})
}

func requireCronToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, http.StatusServiceUnavailable, "billing cron is not configured")
				return
			}
			provided, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
