package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/kudzimusar/stolen-pay/internal/geo"
	"github.com/kudzimusar/stolen-pay/internal/models"
	"github.com/kudzimusar/stolen-pay/internal/service"
	"go.uber.org/zap"
)

// TransferHandler handles HTTP requests for transfers.
type TransferHandler struct {
	svc     *service.TransferService
	account *service.AccountService
}

func NewTransferHandler(svc *service.TransferService, account *service.AccountService) *TransferHandler {
	return &TransferHandler{svc: svc, account: account}
}

// CreateTransferRequest represents the request body for creating a transfer.
type CreateTransferRequest struct {
	SenderAccountID   string     `json:"sender_account_id"`
	Recipient         string     `json:"recipient"`
	AmountMicros      int64      `json:"amount_micros"`
	Currency          string     `json:"currency"`
	Description       string     `json:"description"`
	PaymentMethodID   string     `json:"payment_method_id"`
	RequireAnchor     bool       `json:"require_anchor"`
	RequireMultiSig   bool       `json:"require_multi_sig"`
	Location          *geo.Point `json:"location,omitempty"`
	Country           string     `json:"country"`
	DeviceFingerprint string     `json:"device_fingerprint"`
}

// transferResponse is the caller-facing view of a transfer result.
// Risk triggers and block reasons never leave the audit log; callers
// only see the score, tier, and a generic message.
type transferResponse struct {
	Status         string              `json:"status"`
	Transaction    *models.Transaction `json:"transaction,omitempty"`
	RiskScore      int                 `json:"risk_score"`
	RiskLevel      string              `json:"risk_level"`
	MultiSigID     *uuid.UUID          `json:"multisig_id,omitempty"`
	PendingSigners []uuid.UUID         `json:"pending_signers,omitempty"`
	Anchoring      string              `json:"anchoring,omitempty"`
	Message        string              `json:"message,omitempty"`
}

func newTransferResponse(res *models.TransferResult) transferResponse {
	return transferResponse{
		Status:         string(res.Status),
		Transaction:    res.Transaction,
		RiskScore:      res.RiskAssessment.Score,
		RiskLevel:      string(res.RiskAssessment.Level),
		MultiSigID:     res.MultiSigID,
		PendingSigners: res.PendingSigners,
		Anchoring:      string(res.Anchoring),
		Message:        res.Message,
	}
}

// CreateTransfer handles POST /v1/transfers.
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req CreateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.AmountMicros <= 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "Amount must be greater than zero")
		return
	}
	if req.Recipient == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-recipient", "recipient is required")
		return
	}
	if req.Currency == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-currency", "currency is required")
		return
	}
	senderID, err := uuid.Parse(req.SenderAccountID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid sender_account_id")
		return
	}
	paymentMethodID, err := uuid.Parse(req.PaymentMethodID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-payment-method-id", "Invalid payment_method_id")
		return
	}

	if !isAdmin {
		account, accErr := h.account.GetBalance(r.Context(), senderID)
		if accErr != nil {
			if errors.Is(accErr, models.ErrAccountNotFound) {
				RespondError(w, r, http.StatusNotFound, "account/not-found", "Account not found")
				return
			}
			RespondError(w, r, http.StatusInternalServerError, "transfer/account-read-failed", "Failed to verify account ownership")
			return
		}
		if account.UserID != actorID {
			RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
			return
		}
	}

	result, err := h.svc.Transfer(r.Context(), models.TransferRequest{
		SenderAccountID:     senderID,
		RecipientIdentifier: req.Recipient,
		AmountMicros:        req.AmountMicros,
		Currency:            req.Currency,
		Description:         req.Description,
		PaymentMethodID:     paymentMethodID,
		RequireAnchor:       req.RequireAnchor,
		RequireMultiSig:     req.RequireMultiSig,
		Location:            req.Location,
		Country:             req.Country,
		DeviceFingerprint:   req.DeviceFingerprint,
	})
	if err != nil {
		h.respondTransferError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusCreated, newTransferResponse(result))
}

func (h *TransferHandler) respondTransferError(w http.ResponseWriter, r *http.Request, err error) {
	if le, ok := models.IsLimitExceeded(err); ok {
		RespondError(w, r, http.StatusUnprocessableEntity, "transfer/limit-exceeded",
			fmt.Sprintf("%s transfer limit exceeded", le.Window))
		return
	}
	switch {
	case errors.Is(err, models.ErrInsufficientBalance):
		RespondError(w, r, http.StatusUnprocessableEntity, "transfer/insufficient-balance", "Insufficient balance")
	case errors.Is(err, models.ErrRecipientNotFound):
		RespondError(w, r, http.StatusNotFound, "transfer/recipient-not-found", "Recipient not found")
	case errors.Is(err, models.ErrSelfTransfer):
		RespondError(w, r, http.StatusBadRequest, "transfer/self-transfer", "Cannot transfer to the same account")
	case errors.Is(err, models.ErrInvalidPaymentMethod):
		RespondError(w, r, http.StatusBadRequest, "transfer/invalid-payment-method", "Invalid payment method")
	case errors.Is(err, models.ErrAccountNotFound):
		RespondError(w, r, http.StatusNotFound, "account/not-found", "Account not found")
	default:
		if status, slug, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, slug, msg)
			return
		}
		zap.L().Error("transfer failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "transfer/failed", "Transfer failed")
	}
}
