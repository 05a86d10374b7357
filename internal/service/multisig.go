package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kudzimusar/stolen-pay/internal/domain"
	"github.com/kudzimusar/stolen-pay/internal/models"
	"github.com/kudzimusar/stolen-pay/internal/observability"
	"go.uber.org/zap"
)

// MultiSigService collects signatures for held transfers and executes
// them once the signature threshold is reached.
type MultiSigService struct {
	store    Store
	transfer *TransferService
	now      func() time.Time
}

// NewMultiSigService creates the signing service. The transfer service
// supplies the shared commit, anchoring, and notification path.
func NewMultiSigService(store Store, transfer *TransferService) *MultiSigService {
	return &MultiSigService{store: store, transfer: transfer, now: time.Now}
}

// WithClock overrides the time source.
func (s *MultiSigService) WithClock(now func() time.Time) *MultiSigService {
	s.now = now
	return s
}

// Get returns a multisig transaction visible to one of its signers or
// the original sender.
func (s *MultiSigService) Get(ctx context.Context, id, viewerID uuid.UUID) (*models.MultiSigTransaction, error) {
	ms, err := s.store.GetMultiSig(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ms.IsSigner(viewerID) && ms.Request.SenderAccountID != viewerID {
		return nil, models.ErrMultiSigUnauthorizedSigner
	}
	return ms, nil
}

// Sign records one signature. When the threshold is reached, exactly
// one caller wins the ready_for_execution compare-and-set and executes
// the embedded transfer; everyone else observes the pending state.
//
// The signature payload is opaque to the core: it is recorded for the
// audit trail but cryptographic verification is the identity layer's
// concern.
func (s *MultiSigService) Sign(ctx context.Context, id, signerID uuid.UUID, signature string) (*models.SignResult, error) {
	if signature == "" {
		return nil, errors.New("signature is required")
	}

	ms, err := s.store.GetMultiSig(ctx, id)
	if err != nil {
		return nil, err
	}

	if ms.Status == domain.MultiSigExpired {
		return nil, models.ErrMultiSigExpired
	}
	if ms.Status != domain.MultiSigPendingSignatures {
		return nil, models.ErrMultiSigNotPending
	}
	if ms.Expired(s.now()) {
		// Lazy expiry: the sweep worker may not have reached this row yet.
		// The status-guarded write cannot stamp expired over a row a
		// concurrent final signature already moved past pending.
		if err := s.store.FinishMultiSig(ctx, id, domain.MultiSigExpired); err != nil {
			if errors.Is(err, models.ErrMultiSigInvalidTransition) {
				return nil, models.ErrMultiSigNotPending
			}
			zap.L().Warn("marking multisig expired failed",
				zap.Error(err),
				zap.String("multisig_id", id.String()),
			)
		}
		return nil, models.ErrMultiSigExpired
	}
	if !ms.IsSigner(signerID) {
		return nil, models.ErrMultiSigUnauthorizedSigner
	}
	if !ms.IsPendingSigner(signerID) {
		return nil, models.ErrMultiSigAlreadySigned
	}

	// The store revalidates status and membership under a row lock, so
	// two concurrent calls by the same signer cannot both count.
	updated, err := s.store.RecordSignature(ctx, id, signerID)
	if err != nil {
		return nil, err
	}

	if updated.CurrentSignatures < updated.RequiredSignatures {
		return &models.SignResult{
			Completed:      false,
			PendingSigners: updated.PendingSigners,
		}, nil
	}

	won, err := s.store.MarkMultiSigReady(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mark multisig ready: %w", err)
	}
	if !won {
		// A concurrent final signature is already executing the transfer.
		return &models.SignResult{Completed: false}, nil
	}

	return s.execute(ctx, updated)
}

// execute runs the held transfer through the shared commit path.
// Execution failure is terminal; no automatic retry.
func (s *MultiSigService) execute(ctx context.Context, ms *models.MultiSigTransaction) (*models.SignResult, error) {
	tx, err := s.transfer.commit(ctx, uuid.New(), ms.Request, ms.RecipientAccountID, ms.Fee)
	if err != nil {
		if finishErr := s.store.FinishMultiSig(ctx, ms.ID, domain.MultiSigExecutionFailed); finishErr != nil {
			zap.L().Error("marking multisig execution_failed failed",
				zap.Error(finishErr),
				zap.String("multisig_id", ms.ID.String()),
			)
		}
		observability.IncrementTransferOutcome("failed")
		return nil, fmt.Errorf("execute multisig transfer: %w", err)
	}

	if err := s.store.FinishMultiSig(ctx, ms.ID, domain.MultiSigExecuted); err != nil {
		// The transfer is committed; the stale status is an operational
		// defect, not a financial one.
		zap.L().Error("marking multisig executed failed",
			zap.Error(err),
			zap.String("multisig_id", ms.ID.String()),
			zap.String("transaction_id", tx.ID.String()),
		)
	}
	observability.IncrementTransferOutcome("completed")

	if ms.Request.RequireAnchor {
		s.transfer.anchorTransaction(ctx, tx)
	}
	s.transfer.notifyParties(tx)

	return &models.SignResult{Completed: true, Transaction: tx}, nil
}

// PendingCount reports how many transactions still await signatures.
func (s *MultiSigService) PendingCount(ctx context.Context) (int64, error) {
	return s.store.CountPendingMultiSigs(ctx)
}

// ExpirePending sweeps pending transactions past their expiry. Used by
// the background worker; no funds were held at creation, so expiry
// releases nothing.
func (s *MultiSigService) ExpirePending(ctx context.Context, batchSize int32) (int64, error) {
	expired, err := s.store.ExpireMultiSigs(ctx, s.now(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("expire multisig transactions: %w", err)
	}
	if expired > 0 {
		zap.L().Info("expired multisig transactions", zap.Int64("count", expired))
	}
	return expired, nil
}
