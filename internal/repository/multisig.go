package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kudzimusar/stolen-pay/internal/domain"
	"github.com/kudzimusar/stolen-pay/internal/models"
)

const multiSigColumns = `id, request, recipient_account_id,
	processing_fee_micros, platform_fee_micros, total_fee_micros,
	required_signatures, current_signatures, signers, pending_signers,
	status, expires_at, created_at, updated_at`

func (r *Repository) CreateMultiSig(ctx context.Context, ms *models.MultiSigTransaction) error {
	request, err := json.Marshal(ms.Request)
	if err != nil {
		return fmt.Errorf("failed to encode multisig request: %w", err)
	}
	signers, err := json.Marshal(ms.Signers)
	if err != nil {
		return fmt.Errorf("failed to encode signers: %w", err)
	}
	pending, err := json.Marshal(ms.PendingSigners)
	if err != nil {
		return fmt.Errorf("failed to encode pending signers: %w", err)
	}

	query := `INSERT INTO multisig_transactions
		(id, request, recipient_account_id,
		 processing_fee_micros, platform_fee_micros, total_fee_micros,
		 required_signatures, current_signatures, signers, pending_signers,
		 status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at`
	err = r.db.QueryRow(ctx, query,
		ms.ID, request, ms.RecipientAccountID,
		ms.Fee.ProcessingMicros, ms.Fee.PlatformMicros, ms.Fee.TotalMicros,
		ms.RequiredSignatures, ms.CurrentSignatures, signers, pending,
		ms.Status, ms.ExpiresAt,
	).Scan(&ms.CreatedAt, &ms.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create multisig transaction: %w", err)
	}
	return nil
}

func (r *Repository) GetMultiSig(ctx context.Context, id uuid.UUID) (*models.MultiSigTransaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM multisig_transactions WHERE id = $1`, multiSigColumns)
	ms, err := scanMultiSig(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrMultiSigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get multisig transaction: %w", err)
	}
	return ms, nil
}

// RecordSignature re-reads the row under a lock so membership checks and
// the signature write cannot interleave with a concurrent signer.
func (r *Repository) RecordSignature(ctx context.Context, id, signerID uuid.UUID) (*models.MultiSigTransaction, error) {
	var out *models.MultiSigTransaction
	err := r.runInTx(ctx, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`SELECT %s FROM multisig_transactions WHERE id = $1 FOR UPDATE`, multiSigColumns)
		ms, err := scanMultiSig(tx.QueryRow(ctx, query, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrMultiSigNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock multisig transaction: %w", err)
		}

		if ms.Status != domain.MultiSigPendingSignatures {
			return models.ErrMultiSigNotPending
		}
		if !ms.IsSigner(signerID) {
			return models.ErrMultiSigUnauthorizedSigner
		}
		if !ms.IsPendingSigner(signerID) {
			return models.ErrMultiSigAlreadySigned
		}

		remaining := make([]uuid.UUID, 0, len(ms.PendingSigners)-1)
		for _, s := range ms.PendingSigners {
			if s != signerID {
				remaining = append(remaining, s)
			}
		}
		pending, err := json.Marshal(remaining)
		if err != nil {
			return fmt.Errorf("failed to encode pending signers: %w", err)
		}

		update := `UPDATE multisig_transactions
			SET pending_signers = $2, current_signatures = current_signatures + 1, updated_at = NOW()
			WHERE id = $1
			RETURNING current_signatures, updated_at`
		if err := tx.QueryRow(ctx, update, id, pending).Scan(&ms.CurrentSignatures, &ms.UpdatedAt); err != nil {
			return fmt.Errorf("failed to record signature: %w", err)
		}
		ms.PendingSigners = remaining
		out = ms
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkMultiSigReady is the compare-and-set that elects the executing
// signer. Only the caller that flips the status sees true.
func (r *Repository) MarkMultiSigReady(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE multisig_transactions
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3 AND current_signatures >= required_signatures`
	tag, err := r.db.Exec(ctx, query, id, domain.MultiSigReadyForExecution, domain.MultiSigPendingSignatures)
	if err != nil {
		return false, fmt.Errorf("failed to mark multisig ready: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FinishMultiSig stamps a terminal status. The UPDATE is guarded by
// the legal predecessors of the target status, so an executed row can
// never regress to expired even under racing writers.
func (r *Repository) FinishMultiSig(ctx context.Context, id uuid.UUID, status domain.MultiSigStatus) error {
	from := domain.MultiSigPredecessors(status)
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	query := `UPDATE multisig_transactions
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)`
	tag, err := r.db.Exec(ctx, query, id, status, allowed)
	if err != nil {
		return fmt.Errorf("failed to finish multisig transaction: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = r.db.QueryRow(ctx, `SELECT status FROM multisig_transactions WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrMultiSigNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check multisig status: %w", err)
	}
	return models.ErrMultiSigInvalidTransition
}

// ExpireMultiSigs sweeps pending transactions past their deadline.
// SKIP LOCKED lets concurrent sweepers and signers pass each other
// without blocking.
func (r *Repository) ExpireMultiSigs(ctx context.Context, now time.Time, limit int32) (int64, error) {
	query := `UPDATE multisig_transactions
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM multisig_transactions
			WHERE status = $2 AND expires_at <= $3
			ORDER BY expires_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)`
	tag, err := r.db.Exec(ctx, query, domain.MultiSigExpired, domain.MultiSigPendingSignatures, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to expire multisig transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) CountPendingMultiSigs(ctx context.Context) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM multisig_transactions WHERE status = $1`
	if err := r.db.QueryRow(ctx, query, domain.MultiSigPendingSignatures).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending multisig transactions: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMultiSig(row rowScanner) (*models.MultiSigTransaction, error) {
	ms := &models.MultiSigTransaction{}
	var request, signers, pending []byte
	err := row.Scan(
		&ms.ID, &request, &ms.RecipientAccountID,
		&ms.Fee.ProcessingMicros, &ms.Fee.PlatformMicros, &ms.Fee.TotalMicros,
		&ms.RequiredSignatures, &ms.CurrentSignatures, &signers, &pending,
		&ms.Status, &ms.ExpiresAt, &ms.CreatedAt, &ms.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(request, &ms.Request); err != nil {
		return nil, fmt.Errorf("failed to decode multisig request: %w", err)
	}
	if err := json.Unmarshal(signers, &ms.Signers); err != nil {
		return nil, fmt.Errorf("failed to decode signers: %w", err)
	}
	if err := json.Unmarshal(pending, &ms.PendingSigners); err != nil {
		return nil, fmt.Errorf("failed to decode pending signers: %w", err)
	}
	return ms, nil
}
