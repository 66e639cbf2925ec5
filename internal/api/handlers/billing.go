package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drople/metering/internal/middleware"
	"github.com/drople/metering/internal/models"
	"github.com/drople/metering/internal/services/billing"
)

// BillingHandler exposes the charge and credit operations and translates
// engine outcomes into customer-facing responses: rejected charges become
// friendly refusals, an inconsistent rollback becomes a generic retry
// message while the detail goes to the log.
type BillingHandler struct {
	engine *billing.Engine
	logger *zap.Logger
}

func NewBillingHandler(engine *billing.Engine, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{engine: engine, logger: logger}
}

type chargeRequest struct {
	AccountID  uuid.UUID  `json:"account_id"`
	Units      int64      `json:"units"`
	Category   string     `json:"category"`
	Multiplier float64    `json:"multiplier,omitempty"`
	ContextID  *uuid.UUID `json:"context_id,omitempty"`
}

type creditRequest struct {
	AccountID uuid.UUID `json:"account_id"`
	Amount    int64     `json:"amount"`
	Category  string    `json:"category,omitempty"`
}

func (h *BillingHandler) Charge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.AccountID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "account_id is required")
		return
	}

	category := models.UsageCategory(req.Category)
	result, err := h.engine.Charge(r.Context(), billing.ChargeRequest{
		AccountID:  req.AccountID,
		Units:      req.Units,
		Category:   category,
		Multiplier: req.Multiplier,
		ContextID:  req.ContextID,
	})
	if err != nil {
		h.chargeError(w, err)
		return
	}

	middleware.ChargesTotal.WithLabelValues(string(result.Mode), string(result.Outcome)).Inc()

	switch result.Outcome {
	case billing.OutcomeInsufficient:
		respondJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"result":  result,
			"message": billing.CustomerMessage(category),
		})
	case billing.OutcomeConflict:
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"result":  result,
			"message": "The balance changed while processing, please retry.",
		})
	default:
		respondJSON(w, http.StatusOK, result)
	}
}

func (h *BillingHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.AccountID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "account_id is required")
		return
	}

	result, err := h.engine.Credit(r.Context(), req.AccountID, req.Amount, models.UsageCategory(req.Category))
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidAmount):
			respondError(w, http.StatusBadRequest, "invalid_amount", "amount must be positive")
		case errors.Is(err, billing.ErrAccountNotFound):
			respondError(w, http.StatusNotFound, "account_not_found", "account does not exist")
		default:
			h.logger.Error("credit failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "internal_error", "please try again later")
		}
		return
	}

	middleware.CreditsTotal.Inc()
	respondJSON(w, http.StatusOK, result)
}

func (h *BillingHandler) chargeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "account_not_found", "account does not exist")
	case errors.Is(err, billing.ErrSponsorNotEligible):
		respondError(w, http.StatusUnprocessableEntity, "sponsor_not_eligible",
			"the linked superior account cannot sponsor charges")
	case errors.Is(err, billing.ErrInconsistent):
		// Balances need operator attention; the customer only gets a retry
		// hint.
		h.logger.Error("charge left balances inconsistent", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "please try again later")
	default:
		h.logger.Error("charge failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "please try again later")
	}
}
