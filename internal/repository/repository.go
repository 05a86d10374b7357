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
	"github.com/kudzimusar/stolen-pay/internal/geo"
	"github.com/kudzimusar/stolen-pay/internal/models"
	"github.com/kudzimusar/stolen-pay/internal/service"
)

func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account := &models.Account{}
	query := `SELECT id, user_id, currency, available_micros, escrow_micros, pending_micros, created_at, updated_at
		FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&account.ID, &account.UserID, &account.Currency,
		&account.AvailableMicros, &account.EscrowMicros, &account.PendingMicros,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (r *Repository) GetPaymentMethod(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error) {
	pm := &models.PaymentMethod{}
	query := `SELECT id, account_id, category, active, created_at FROM payment_methods WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&pm.ID, &pm.AccountID, &pm.Category, &pm.Active, &pm.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrInvalidPaymentMethod
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment method: %w", err)
	}
	return pm, nil
}

func (r *Repository) LimitWindows(ctx context.Context, accountID uuid.UUID) ([]models.LimitWindow, error) {
	windows, err := r.selectLimitWindows(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(windows) > 0 {
		return windows, nil
	}

	// First touch of an account with no configured limits: provision the
	// defaults. ON CONFLICT keeps concurrent first touches idempotent.
	insert := `INSERT INTO transaction_limits (account_id, window_type, limit_micros, current_micros, tx_count, reset_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, $4, NOW())
		ON CONFLICT (account_id, window_type) DO NOTHING`
	for _, w := range service.DefaultLimitWindows(accountID, time.Now()) {
		if _, err := r.db.Exec(ctx, insert, w.AccountID, w.Window, w.LimitMicros, w.ResetAt); err != nil {
			return nil, fmt.Errorf("failed to provision default limits: %w", err)
		}
	}
	return r.selectLimitWindows(ctx, accountID)
}

func (r *Repository) selectLimitWindows(ctx context.Context, accountID uuid.UUID) ([]models.LimitWindow, error) {
	query := `SELECT account_id, window_type, limit_micros, current_micros, tx_count, reset_at, updated_at
		FROM transaction_limits WHERE account_id = $1 ORDER BY window_type`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get limit windows: %w", err)
	}
	defer rows.Close()

	var windows []models.LimitWindow
	for rows.Next() {
		var w models.LimitWindow
		if err := rows.Scan(&w.AccountID, &w.Window, &w.LimitMicros, &w.CurrentMicros, &w.TxCount, &w.ResetAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan limit window: %w", err)
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

func (r *Repository) ResetLimitWindow(ctx context.Context, accountID uuid.UUID, window domain.LimitWindowType, expectedResetAt, newResetAt time.Time) (bool, error) {
	query := `UPDATE transaction_limits
		SET current_micros = 0, tx_count = 0, reset_at = $4, updated_at = NOW()
		WHERE account_id = $1 AND window_type = $2 AND reset_at = $3`
	tag, err := r.db.Exec(ctx, query, accountID, window, expectedResetAt, newResetAt)
	if err != nil {
		return false, fmt.Errorf("failed to reset limit window: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) AccountHistory(ctx context.Context, accountID uuid.UUID) (*models.AccountHistory, error) {
	hist := &models.AccountHistory{}

	summary := `SELECT COUNT(*), COALESCE(AVG(amount_micros), 0)::BIGINT
		FROM transactions
		WHERE sender_account_id = $1 AND status = $2`
	err := r.db.QueryRow(ctx, summary, accountID, domain.TxStatusCompleted).Scan(&hist.PriorTransactions, &hist.AverageMicros)
	if err != nil {
		return nil, fmt.Errorf("failed to get account history summary: %w", err)
	}

	fingerprints := `SELECT DISTINCT device_fingerprint
		FROM transactions
		WHERE sender_account_id = $1 AND status = $2 AND device_fingerprint <> ''`
	rows, err := r.db.Query(ctx, fingerprints, accountID, domain.TxStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to get known fingerprints: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		hist.KnownFingerprints = append(hist.KnownFingerprints, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fingerprints: %w", err)
	}

	latest := `SELECT lat, lon, country, created_at
		FROM transactions
		WHERE sender_account_id = $1 AND status = $2
		ORDER BY created_at DESC LIMIT 1`
	var (
		lat, lon  *float64
		country   *string
		createdAt time.Time
	)
	err = r.db.QueryRow(ctx, latest, accountID, domain.TxStatusCompleted).Scan(&lat, &lon, &country, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return hist, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest transaction context: %w", err)
	}
	if lat != nil && lon != nil {
		hist.LastKnownLocation = &geo.Point{Lat: *lat, Lon: *lon}
	}
	if country != nil {
		hist.LastKnownCountry = *country
	}
	hist.LastTransactionAt = &createdAt
	return hist, nil
}

func (r *Repository) RecentActivity(ctx context.Context, accountID uuid.UUID, since time.Time) (*models.RecentActivity, error) {
	activity := &models.RecentActivity{}
	query := `SELECT COALESCE(SUM(amount_micros), 0)::BIGINT, COUNT(*)
		FROM transactions
		WHERE sender_account_id = $1 AND status = $2 AND created_at >= $3`
	err := r.db.QueryRow(ctx, query, accountID, domain.TxStatusCompleted, since).Scan(&activity.SumMicros, &activity.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent activity: %w", err)
	}
	return activity, nil
}

func (r *Repository) AppendRiskAudit(ctx context.Context, rec *models.RiskAuditRecord) error {
	triggers, err := json.Marshal(rec.Assessment.Triggers)
	if err != nil {
		return fmt.Errorf("failed to encode triggers: %w", err)
	}
	query := `INSERT INTO fraud_audit_log
		(account_id, amount_micros, score, level, recommended_action, triggers, requires_manual_review, blocked_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at`
	err = r.db.QueryRow(ctx, query,
		rec.AccountID, rec.AmountMicros,
		rec.Assessment.Score, rec.Assessment.Level, rec.Assessment.RecommendedAction,
		triggers, rec.Assessment.RequiresManualReview, rec.Assessment.BlockedReason,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append risk audit: %w", err)
	}
	return nil
}

func (r *Repository) ListRiskAudit(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]models.RiskAuditRecord, error) {
	query := `SELECT id, account_id, amount_micros, score, level, recommended_action, triggers, requires_manual_review, blocked_reason, created_at
		FROM fraud_audit_log
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk audit: %w", err)
	}
	defer rows.Close()

	var records []models.RiskAuditRecord
	for rows.Next() {
		var (
			rec      models.RiskAuditRecord
			triggers []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.AccountID, &rec.AmountMicros,
			&rec.Assessment.Score, &rec.Assessment.Level, &rec.Assessment.RecommendedAction,
			&triggers, &rec.Assessment.RequiresManualReview, &rec.Assessment.BlockedReason,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan risk audit record: %w", err)
		}
		if len(triggers) > 0 {
			if err := json.Unmarshal(triggers, &rec.Assessment.Triggers); err != nil {
				return nil, fmt.Errorf("failed to decode triggers: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) CommitTransfer(ctx context.Context, p service.CommitParams) (*models.Transaction, error) {
	txn := &models.Transaction{
		ID:                 p.TransactionID,
		SenderAccountID:    p.SenderAccountID,
		RecipientAccountID: p.RecipientAccountID,
		AmountMicros:       p.AmountMicros,
		Currency:           p.Currency,
		Fee:                p.Fee,
		Type:               p.Type,
		Status:             domain.TxStatusCompleted,
		Description:        p.Description,
	}
	totalDebit := p.AmountMicros + p.Fee.TotalMicros

	err := r.runInTx(ctx, func(tx pgx.Tx) error {
		// Conditional debit is the concurrency gate: the balance check and
		// the decrement happen in one statement, so two racing transfers
		// can never both draw down the same funds.
		debit := `UPDATE accounts
			SET available_micros = available_micros - $2, updated_at = NOW()
			WHERE id = $1 AND available_micros >= $2`
		tag, err := tx.Exec(ctx, debit, p.SenderAccountID, totalDebit)
		if err != nil {
			return fmt.Errorf("failed to debit sender: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, p.SenderAccountID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check sender account: %w", err)
			}
			if !exists {
				return models.ErrAccountNotFound
			}
			return models.ErrInsufficientBalance
		}

		credit := `UPDATE accounts
			SET available_micros = available_micros + $2, updated_at = NOW()
			WHERE id = $1`
		tag, err = tx.Exec(ctx, credit, p.RecipientAccountID, p.AmountMicros)
		if err != nil {
			return fmt.Errorf("failed to credit recipient: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return models.ErrRecipientNotFound
		}

		// Rolling windows accrue the transfer amount; the per-transaction
		// ceiling is static and never accrues.
		accrue := `UPDATE transaction_limits
			SET current_micros = current_micros + $2, tx_count = tx_count + 1, updated_at = NOW()
			WHERE account_id = $1 AND window_type IN ($3, $4)`
		if _, err := tx.Exec(ctx, accrue, p.SenderAccountID, p.AmountMicros, domain.WindowDaily, domain.WindowMonthly); err != nil {
			return fmt.Errorf("failed to accrue limit counters: %w", err)
		}

		var lat, lon *float64
		if p.Location != nil {
			lat, lon = &p.Location.Lat, &p.Location.Lon
		}
		insert := `INSERT INTO transactions
			(id, sender_account_id, recipient_account_id, amount_micros, currency,
			 processing_fee_micros, platform_fee_micros, total_fee_micros,
			 type, status, description, device_fingerprint, lat, lon, country,
			 created_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
			RETURNING created_at, completed_at`
		err = tx.QueryRow(ctx, insert,
			txn.ID, txn.SenderAccountID, txn.RecipientAccountID, txn.AmountMicros, txn.Currency,
			txn.Fee.ProcessingMicros, txn.Fee.PlatformMicros, txn.Fee.TotalMicros,
			txn.Type, txn.Status, txn.Description, p.DeviceFingerprint, lat, lon, p.Country,
		).Scan(&txn.CreatedAt, &txn.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to record transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *Repository) SetTransactionAnchor(ctx context.Context, txID uuid.UUID, ref string) error {
	query := `UPDATE transactions SET anchor_ref = $2 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, txID, ref)
	if err != nil {
		return fmt.Errorf("failed to set transaction anchor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to set transaction anchor: transaction %s not found", txID)
	}
	return nil
}
