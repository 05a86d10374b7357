package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kudzimusar/stolen-pay/internal/models"
	"github.com/kudzimusar/stolen-pay/internal/service"
	"go.uber.org/zap"
)

// MultiSigHandler handles HTTP requests for multi-signature transactions.
type MultiSigHandler struct {
	svc *service.MultiSigService
}

func NewMultiSigHandler(svc *service.MultiSigService) *MultiSigHandler {
	return &MultiSigHandler{svc: svc}
}

// GetMultiSig handles GET /v1/multisig/{id}.
func (h *MultiSigHandler) GetMultiSig(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-multisig-id", "Invalid multisig transaction ID")
		return
	}

	ms, err := h.svc.Get(r.Context(), id, actorID)
	if err != nil {
		if errors.Is(err, models.ErrMultiSigNotFound) {
			RespondError(w, r, http.StatusNotFound, "multisig/not-found", "Multisig transaction not found")
			return
		}
		if errors.Is(err, models.ErrMultiSigUnauthorizedSigner) {
			RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
			return
		}
		zap.L().Error("get multisig failed", zap.Error(err), zap.String("multisig_id", id.String()))
		RespondError(w, r, http.StatusInternalServerError, "multisig/read-failed", "Failed to get multisig transaction")
		return
	}

	RespondJSON(w, http.StatusOK, ms)
}

type signRequest struct {
	Signature string `json:"signature"`
}

// Sign handles POST /v1/multisig/{id}/sign.
func (h *MultiSigHandler) Sign(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-multisig-id", "Invalid multisig transaction ID")
		return
	}

	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Signature) == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-signature", "signature is required")
		return
	}

	result, err := h.svc.Sign(r.Context(), id, actorID, req.Signature)
	if err != nil {
		h.respondSignError(w, r, id, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

func (h *MultiSigHandler) respondSignError(w http.ResponseWriter, r *http.Request, id uuid.UUID, err error) {
	switch {
	case errors.Is(err, models.ErrMultiSigNotFound):
		RespondError(w, r, http.StatusNotFound, "multisig/not-found", "Multisig transaction not found")
	case errors.Is(err, models.ErrMultiSigExpired):
		RespondError(w, r, http.StatusConflict, "multisig/expired", "Signing window has expired")
	case errors.Is(err, models.ErrMultiSigUnauthorizedSigner):
		RespondError(w, r, http.StatusForbidden, "multisig/unauthorized-signer", "Not an authorized signer for this transaction")
	case errors.Is(err, models.ErrMultiSigAlreadySigned):
		RespondError(w, r, http.StatusConflict, "multisig/already-signed", "Signer has already signed this transaction")
	case errors.Is(err, models.ErrMultiSigNotPending):
		RespondError(w, r, http.StatusConflict, "multisig/not-pending", "Transaction is not pending signatures")
	case errors.Is(err, models.ErrInsufficientBalance):
		RespondError(w, r, http.StatusUnprocessableEntity, "transfer/insufficient-balance", "Insufficient balance at execution time")
	default:
		zap.L().Error("sign multisig failed", zap.Error(err), zap.String("multisig_id", id.String()))
		RespondError(w, r, http.StatusInternalServerError, "multisig/sign-failed", "Failed to sign multisig transaction")
	}
}
