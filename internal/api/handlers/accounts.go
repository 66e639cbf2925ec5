package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/drople/metering/internal/models"
	"github.com/drople/metering/internal/services/account"
	"github.com/drople/metering/internal/services/billing"
	"github.com/drople/metering/internal/services/notify"
	"github.com/drople/metering/internal/services/usage"
)

type AccountHandler struct {
	accounts      *account.Store
	usage         *usage.Recorder
	notifications *notify.Service
	logger        *zap.Logger
}

func NewAccountHandler(accounts *account.Store, usageRec *usage.Recorder, notifications *notify.Service, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accounts:      accounts,
		usage:         usageRec,
		notifications: notifications,
		logger:        logger,
	}
}

type createAccountRequest struct {
	Email      string     `json:"email"`
	Username   string     `json:"username"`
	Balance    int64      `json:"balance,omitempty"`
	SuperiorID *uuid.UUID `json:"superior_id,omitempty"`
	IsSponsor  bool       `json:"is_sponsor,omitempty"`
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.Email == "" || req.Username == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "email and username are required")
		return
	}
	if req.Balance < 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "balance must not be negative")
		return
	}

	acct := &models.Account{
		Email:      req.Email,
		Username:   req.Username,
		IsActive:   true,
		Balance:    req.Balance,
		SuperiorID: req.SuperiorID,
		IsSponsor:  req.IsSponsor,
	}
	if err := h.accounts.Create(r.Context(), acct); err != nil {
		h.logger.Error("account creation failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create account")
		return
	}
	respondJSON(w, http.StatusCreated, acct)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	acct, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, billing.ErrAccountNotFound) {
			respondError(w, http.StatusNotFound, "account_not_found", "account does not exist")
			return
		}
		h.logger.Error("account lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load account")
		return
	}
	respondJSON(w, http.StatusOK, acct)
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	accounts, err := h.accounts.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("account list failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list accounts")
		return
	}
	respondJSON(w, http.StatusOK, accounts)
}

func (h *AccountHandler) Usage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)
	records, err := h.usage.ListByAccount(r.Context(), id, limit, offset)
	if err != nil {
		h.logger.Error("usage list failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list usage")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (h *AccountHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)
	notifications, err := h.notifications.List(r.Context(), id, limit, offset)
	if err != nil {
		h.logger.Error("notification list failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list notifications")
		return
	}
	respondJSON(w, http.StatusOK, notifications)
}

func (h *AccountHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid notification id")
		return
	}
	if err := h.notifications.MarkRead(r.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(w, http.StatusNotFound, "notification_not_found", "notification does not exist")
			return
		}
		h.logger.Error("notification update failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to update notification")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (h *AccountHandler) accountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid account id")
		return uuid.Nil, false
	}
	return id, true
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
