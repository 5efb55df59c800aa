package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"prepaid-billing-go/internal/api"
	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/sweep"
	"prepaid-billing-go/internal/topup"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxWebhookBytes = 64 << 10

func healthzHandler(ledger *api.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ledger.HealthCheck(r.Context()); err != nil {
			logger.Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ============================================================
// Communications and usage
// ============================================================

type communicationRequest struct {
	Type            string          `json:"type"`
	Recipient       string          `json:"recipient"`
	DurationMinutes decimal.Decimal `json:"duration_minutes"`
	DurationSeconds int64           `json:"duration_seconds"`
	PageCount       int             `json:"page_count"`
	ReferenceId     string          `json:"reference_id"`
}

func communicationHandler(ledger *api.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/communications")
		defer span.End()

		var body communicationRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := ledger.RecordCommunicationCompleted(ctx, api.CommunicationEvent{
			UserId:          models.UserIdentity(ctx),
			Kind:            body.Type,
			Recipient:       body.Recipient,
			DurationMinutes: body.DurationMinutes,
			DurationSeconds: body.DurationSeconds,
			PageCount:       body.PageCount,
			ReferenceId:     body.ReferenceId,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

type usageRequest struct {
	Type            string     `json:"type"`
	Recipient       string     `json:"recipient"`
	DurationSeconds int64      `json:"duration_seconds"`
	PageCount       int        `json:"page_count"`
	ReferenceId     string     `json:"reference_id"`
	OccurredAt      *time.Time `json:"occurred_at"`
}

func usageHandler(ledger *api.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/usage")
		defer span.End()

		var body usageRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req := api.UsageRequest{
			UserId:          models.UserIdentity(ctx),
			Kind:            body.Type,
			Recipient:       body.Recipient,
			DurationSeconds: body.DurationSeconds,
			PageCount:       body.PageCount,
			ReferenceId:     body.ReferenceId,
		}
		if body.OccurredAt != nil {
			req.OccurredAt = *body.OccurredAt
		}

		event, err := ledger.RecordUsage(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, event)
	}
}

// ============================================================
// Wallet
// ============================================================

type walletResponse struct {
	*models.WalletBalance
	Transactions []models.TransactionRecord `json:"transactions"`
}

func walletHandler(ledger *api.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/wallet")
		defer span.End()

		userId := models.UserIdentity(ctx)
		balance, err := ledger.GetBalance(ctx, userId)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		transactions, err := ledger.GetTransactions(ctx, userId, 0)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, walletResponse{WalletBalance: balance, Transactions: transactions})
	}
}

type sufficientBalanceResponse struct {
	Amount     decimal.Decimal `json:"amount"`
	Sufficient bool            `json:"sufficient"`
}

func sufficientBalanceHandler(ledger *api.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/wallet/sufficient")
		defer span.End()

		amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "amount must be a decimal")
			return
		}

		ok, err := ledger.HasSufficientBalance(ctx, models.UserIdentity(ctx), amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sufficientBalanceResponse{Amount: amount, Sufficient: ok})
	}
}

func transactionsHandler(ledger *api.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/wallet/transactions")
		defer span.End()

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "limit must be an integer")
				return
			}
			limit = parsed
		}

		transactions, err := ledger.GetTransactions(ctx, models.UserIdentity(ctx), limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
	}
}

// ============================================================
// Top-ups
// ============================================================

func topUpsUnavailable(w http.ResponseWriter) {
	writeError(w, http.StatusServiceUnavailable, "payment processor is not configured")
}

func createTopUpHandler(topUps *topup.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if topUps == nil {
			topUpsUnavailable(w)
			return
		}
		ctx, span := tracer.Start(r.Context(), "POST /v1/wallet/topups")
		defer span.End()

		var body struct {
			AmountCents int64 `json:"amount_cents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		intent, err := topUps.CreateTopUp(ctx, models.UserIdentity(ctx), body.AmountCents, r.Header.Get(IdempotencyKeyHeader))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, intent)
	}
}

func confirmTopUpHandler(topUps *topup.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if topUps == nil {
			topUpsUnavailable(w)
			return
		}
		ctx, span := tracer.Start(r.Context(), "POST /v1/wallet/topups/{intentId}/confirm")
		defer span.End()

		result, err := topUps.ConfirmTopUp(ctx, models.UserIdentity(ctx), chi.URLParam(r, "intentId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// stripeWebhookHandler acknowledges every verified event. Only storage
// failures return 5xx, which makes the processor redeliver.
func stripeWebhookHandler(topUps *topup.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if topUps == nil {
			topUpsUnavailable(w)
			return
		}
		ctx, span := tracer.Start(r.Context(), "POST /v1/webhooks/stripe")
		defer span.End()

		signature := r.Header.Get("Stripe-Signature")
		if signature == "" {
			writeError(w, http.StatusBadRequest, "missing stripe-signature header")
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if _, err := topUps.HandleEvent(ctx, payload, signature); err != nil {
			if errors.Is(err, topup.ErrInvalidEvent) {
				writeError(w, http.StatusBadRequest, "webhook signature verification failed")
				return
			}
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}

// ============================================================
// Monthly billing
// ============================================================

func runSweepHandler(sweeper *sweep.Sweeper, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/billing/monthly")
		defer span.End()

		asOf := time.Now().UTC()
		if v := r.URL.Query().Get("as_of"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "as_of must be YYYY-MM-DD")
				return
			}
			asOf = parsed
		}

		result, err := sweeper.Run(ctx, asOf)
		if err != nil {
			logger.Error("monthly billing sweep failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "monthly billing sweep failed")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func sweepStatusHandler(sweeper *sweep.Sweeper, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/billing/monthly")
		defer span.End()

		period := sweep.BillingPeriod(time.Now())
		if v := r.URL.Query().Get("period"); v != "" {
			parsed, err := sweep.ParsePeriod(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			period = parsed
		}

		report, err := sweeper.Status(ctx, period)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
