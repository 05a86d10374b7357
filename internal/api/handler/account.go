package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kudzimusar/stolen-pay/internal/models"
	"github.com/kudzimusar/stolen-pay/internal/service"
	"go.uber.org/zap"
)

// AccountHandler handles HTTP requests for account state.
type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

func (h *AccountHandler) authorize(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return uuid.Nil, false
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account ID")
		return uuid.Nil, false
	}

	account, err := h.svc.GetBalance(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			RespondError(w, r, http.StatusNotFound, "account/not-found", "Account not found")
			return uuid.Nil, false
		}
		zap.L().Error("account lookup failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "account/read-failed", "Failed to read account")
		return uuid.Nil, false
	}
	if !isAdmin && account.UserID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return uuid.Nil, false
	}
	return accountID, true
}

// GetBalance handles GET /v1/accounts/{id}/balance.
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	account, err := h.svc.GetBalance(r.Context(), accountID)
	if err != nil {
		zap.L().Error("get balance failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "account/read-failed", "Failed to read account")
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

// GetLimits handles GET /v1/accounts/{id}/limits.
func (h *AccountHandler) GetLimits(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	windows, err := h.svc.GetLimits(r.Context(), accountID)
	if err != nil {
		zap.L().Error("get limits failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "account/limits-read-failed", "Failed to read limits")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": windows})
}

// GetRiskAudit handles GET /v1/accounts/{id}/risk-audit (admin only).
func (h *AccountHandler) GetRiskAudit(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account ID")
		return
	}
	limit, err := queryInt32(r, "limit", 50)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", err.Error())
		return
	}
	offset, err := queryInt32(r, "offset", 0)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-offset", err.Error())
		return
	}

	records, err := h.svc.GetRiskAudit(r.Context(), accountID, limit, offset)
	if err != nil {
		zap.L().Error("get risk audit failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "account/risk-audit-read-failed", "Failed to read risk audit log")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"items":  records,
		"limit":  limit,
		"offset": offset,
		"count":  len(records),
	})
}
