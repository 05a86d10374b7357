package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kudzimusar/stolen-pay/internal/anchor"
	"github.com/kudzimusar/stolen-pay/internal/domain"
	"github.com/kudzimusar/stolen-pay/internal/models"
	"github.com/kudzimusar/stolen-pay/internal/notify"
	"github.com/kudzimusar/stolen-pay/internal/observability"
	"go.uber.org/zap"
)

// TransferConfig carries the orchestrator's policy knobs.
type TransferConfig struct {
	// Approvers are the designated multisig signer accounts.
	Approvers []uuid.UUID
	// RequiredSignatures is the N in N-of-M approval.
	RequiredSignatures int32
	// MultiSigTTL is the signing window; sign calls fail after it.
	MultiSigTTL time.Duration
	// AnchorTimeout bounds the post-commit anchoring call.
	AnchorTimeout time.Duration
}

// TransferService sequences validation, fee calculation, risk scoring,
// the optional multi-signature gate, the atomic ledger mutation, and
// post-commit anchoring and notification.
type TransferService struct {
	store      Store
	resolver   RecipientResolver
	limits     *LimitValidator
	fees       *FeeCalculator
	risk       *RiskScorer
	anchorer   anchor.Anchorer
	dispatcher *notify.Dispatcher
	cfg        TransferConfig
	now        func() time.Time
}

// NewTransferService wires the pipeline stages together.
func NewTransferService(
	store Store,
	resolver RecipientResolver,
	limits *LimitValidator,
	fees *FeeCalculator,
	risk *RiskScorer,
	anchorer anchor.Anchorer,
	dispatcher *notify.Dispatcher,
	cfg TransferConfig,
) *TransferService {
	if cfg.RequiredSignatures < 1 {
		cfg.RequiredSignatures = 2
	}
	if cfg.MultiSigTTL <= 0 {
		cfg.MultiSigTTL = 24 * time.Hour
	}
	if cfg.AnchorTimeout <= 0 {
		cfg.AnchorTimeout = 10 * time.Second
	}
	return &TransferService{
		store:      store,
		resolver:   resolver,
		limits:     limits,
		fees:       fees,
		risk:       risk,
		anchorer:   anchorer,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithClock overrides the time source.
func (s *TransferService) WithClock(now func() time.Time) *TransferService {
	s.now = now
	return s
}

// Transfer runs one request through the pipeline. Validation failures
// (limits, balance, recipient, payment method) return an error before
// any balance mutation. A risk block is a deliberate terminal outcome
// surfaced as a structured result, not an error.
func (s *TransferService) Transfer(ctx context.Context, req models.TransferRequest) (*models.TransferResult, error) {
	if req.AmountMicros <= 0 {
		return nil, fmt.Errorf("invalid amount: %d", req.AmountMicros)
	}
	if req.RecipientIdentifier == "" {
		return nil, errors.New("recipient identifier is required")
	}

	recipientID, err := s.resolver.Resolve(ctx, req.RecipientIdentifier)
	if err != nil {
		if errors.Is(err, models.ErrRecipientNotFound) {
			return nil, models.ErrRecipientNotFound
		}
		return nil, fmt.Errorf("resolve recipient: %w", err)
	}
	if recipientID == req.SenderAccountID {
		return nil, models.ErrSelfTransfer
	}

	method, err := s.store.GetPaymentMethod(ctx, req.PaymentMethodID)
	if err != nil {
		if errors.Is(err, models.ErrInvalidPaymentMethod) {
			return nil, models.ErrInvalidPaymentMethod
		}
		return nil, fmt.Errorf("load payment method: %w", err)
	}
	if !method.Active || method.AccountID != req.SenderAccountID || !method.Category.Valid() {
		return nil, models.ErrInvalidPaymentMethod
	}

	if err := s.limits.Validate(ctx, req.SenderAccountID, req.Amount()); err != nil {
		return nil, err
	}

	fee := s.fees.Calculate(req.Amount(), domain.TxTypeTransfer, method.Category)

	assessment := s.risk.Assess(ctx, req, recipientID)
	observability.IncrementRiskTier(string(assessment.Level))

	if assessment.RecommendedAction == domain.ActionBlock {
		observability.IncrementTransferOutcome("blocked")
		zap.L().Warn("transfer blocked by risk assessment",
			zap.String("account_id", req.SenderAccountID.String()),
			zap.Int("score", assessment.Score),
			zap.Strings("triggers", assessment.Triggers),
		)
		return &models.TransferResult{
			Status:         domain.TransferBlocked,
			RiskAssessment: assessment,
			Message:        "additional verification required",
		}, nil
	}

	if assessment.RecommendedAction == domain.ActionReview || req.RequireMultiSig {
		return s.holdForSignatures(ctx, req, recipientID, fee, assessment)
	}

	tx, err := s.commit(ctx, uuid.New(), req, recipientID, fee)
	if err != nil {
		return nil, err
	}
	observability.IncrementTransferOutcome("completed")

	result := &models.TransferResult{
		Status:         domain.TransferCompleted,
		Transaction:    tx,
		RiskAssessment: assessment,
		Anchoring:      domain.AnchorSkipped,
	}
	if req.RequireAnchor {
		result.Anchoring = s.anchorTransaction(ctx, tx)
	}
	s.notifyParties(tx)
	return result, nil
}

// holdForSignatures parks the request as a MultiSigTransaction. No
// balances move until enough signatures are collected.
func (s *TransferService) holdForSignatures(ctx context.Context, req models.TransferRequest, recipientID uuid.UUID, fee models.FeeBreakdown, assessment models.RiskAssessment) (*models.TransferResult, error) {
	now := s.now()
	signers := make([]uuid.UUID, len(s.cfg.Approvers))
	copy(signers, s.cfg.Approvers)
	pending := make([]uuid.UUID, len(signers))
	copy(pending, signers)

	ms := &models.MultiSigTransaction{
		ID:                 uuid.New(),
		Request:            req,
		RecipientAccountID: recipientID,
		Fee:                fee,
		RequiredSignatures: s.cfg.RequiredSignatures,
		Signers:            signers,
		PendingSigners:     pending,
		Status:             domain.MultiSigPendingSignatures,
		ExpiresAt:          now.Add(s.cfg.MultiSigTTL),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateMultiSig(ctx, ms); err != nil {
		return nil, fmt.Errorf("create multisig transaction: %w", err)
	}
	observability.IncrementTransferOutcome("pending_signatures")

	id := ms.ID
	return &models.TransferResult{
		Status:         domain.TransferPendingSignatures,
		RiskAssessment: assessment,
		MultiSigID:     &id,
		PendingSigners: ms.PendingSigners,
	}, nil
}

// commit applies the ledger mutation through the store's single atomic
// transaction: the conditional debit guards against concurrent
// overdraw, the recipient credit, limit-counter increments, and the
// completed Transaction row all land together or not at all.
func (s *TransferService) commit(ctx context.Context, txID uuid.UUID, req models.TransferRequest, recipientID uuid.UUID, fee models.FeeBreakdown) (*models.Transaction, error) {
	tx, err := s.store.CommitTransfer(ctx, CommitParams{
		TransactionID:      txID,
		SenderAccountID:    req.SenderAccountID,
		RecipientAccountID: recipientID,
		AmountMicros:       req.AmountMicros,
		Currency:           req.Currency,
		Fee:                fee,
		Type:               domain.TxTypeTransfer,
		Description:        req.Description,
		DeviceFingerprint:  req.DeviceFingerprint,
		Location:           req.Location,
		Country:            req.Country,
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientBalance) {
			return nil, models.ErrInsufficientBalance
		}
		return nil, fmt.Errorf("commit transfer: %w", err)
	}
	return tx, nil
}

// anchorTransaction records the committed transaction externally.
// Failure degrades the result but never rolls back the transfer.
func (s *TransferService) anchorTransaction(ctx context.Context, tx *models.Transaction) domain.AnchorStatus {
	anchorCtx, cancel := context.WithTimeout(ctx, s.cfg.AnchorTimeout)
	defer cancel()

	ref, err := s.anchorer.Anchor(anchorCtx, tx)
	if err != nil {
		observability.IncrementAnchorResult("failed")
		zap.L().Warn("external anchoring failed",
			zap.Error(err),
			zap.String("transaction_id", tx.ID.String()),
		)
		return domain.AnchorFailed
	}

	if err := s.store.SetTransactionAnchor(ctx, tx.ID, ref); err != nil {
		observability.IncrementAnchorResult("failed")
		zap.L().Warn("persisting anchor reference failed",
			zap.Error(err),
			zap.String("transaction_id", tx.ID.String()),
			zap.String("anchor_ref", ref),
		)
		return domain.AnchorFailed
	}

	observability.IncrementAnchorResult("confirmed")
	tx.AnchorRef = &ref
	return domain.AnchorConfirmed
}

func (s *TransferService) notifyParties(tx *models.Transaction) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(
		notify.Event{
			AccountID:     tx.SenderAccountID,
			Kind:          "transfer.sent",
			TransactionID: tx.ID,
			AmountMicros:  tx.AmountMicros,
			Currency:      tx.Currency,
		},
		notify.Event{
			AccountID:     tx.RecipientAccountID,
			Kind:          "transfer.received",
			TransactionID: tx.ID,
			AmountMicros:  tx.AmountMicros,
			Currency:      tx.Currency,
		},
	)
}
