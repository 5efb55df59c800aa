package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"prepaid-billing-go/internal/api"
	"prepaid-billing-go/internal/pricing"
	"prepaid-billing-go/internal/resilience"
	"prepaid-billing-go/internal/store"
	"prepaid-billing-go/internal/topup"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

type insufficientBalanceResponse struct {
	Error     string `json:"error"`
	Required  string `json:"required"`
	Available string `json:"available"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// handleServiceError maps service errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var insufficient *store.InsufficientBalanceError
	var invalidType *pricing.InvalidCommunicationTypeError
	var outOfRange *topup.AmountOutOfRangeError
	var processor *topup.PaymentProcessorError

	switch {
	case errors.As(err, &insufficient):
		logger.Warn("insufficient balance",
			zap.String("required", insufficient.Required.String()),
			zap.String("available", insufficient.Available.String()))
		writeJSON(w, http.StatusPaymentRequired, insufficientBalanceResponse{
			Error:     err.Error(),
			Required:  insufficient.Required.StringFixed(2),
			Available: insufficient.Available.StringFixed(2),
		})
	case errors.Is(err, store.ErrWalletNotFound), errors.Is(err, store.ErrUserNotFound), errors.Is(err, store.ErrRecordNotFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &invalidType):
		logger.Debug("invalid communication type", zap.String("kind", invalidType.Kind))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &outOfRange):
		logger.Debug("top-up amount out of range", zap.Int64("amount_cents", outOfRange.AmountCents))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, api.ErrInvalidRequest), errors.Is(err, pricing.ErrInvalidDetails),
		errors.Is(err, topup.ErrInvalidEvent), errors.Is(err, topup.ErrUserRequired),
		errors.Is(err, topup.ErrNotWalletTopUp), errors.Is(err, store.ErrInvalidAmount):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, topup.ErrIntentNotOwned):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &processor):
		switch {
		case processor.Timeout:
			logger.Error("payment processor timeout", zap.Error(err))
			writeError(w, http.StatusGatewayTimeout, "payment processor timed out")
		case resilience.IsBreakerOpen(processor.Err):
			logger.Error("payment processor circuit open", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "payment processor unavailable")
		default:
			logger.Error("payment processor error", zap.Error(err))
			writeError(w, http.StatusBadGateway, "payment processor error")
		}
	case errors.Is(err, store.ErrConcurrentModification):
		logger.Warn("concurrent modification", zap.Error(err))
		writeError(w, http.StatusConflict, "wallet is busy, please retry")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
