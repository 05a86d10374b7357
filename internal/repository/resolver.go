package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kudzimusar/stolen-pay/internal/models"
)

// Resolve maps a recipient identifier to an account id. A parseable
// uuid is treated as an account id directly; anything else is matched
// against the user's email, phone, or wallet handle.
func (r *Repository) Resolve(ctx context.Context, identifier string) (uuid.UUID, error) {
	if id, err := uuid.Parse(identifier); err == nil {
		query := `SELECT id FROM accounts WHERE id = $1`
		var accountID uuid.UUID
		err := r.db.QueryRow(ctx, query, id).Scan(&accountID)
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, models.ErrRecipientNotFound
		}
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to resolve account id: %w", err)
		}
		return accountID, nil
	}

	query := `SELECT a.id
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		WHERE u.email = $1 OR u.phone = $1 OR u.wallet_handle = $1
		LIMIT 1`
	var accountID uuid.UUID
	err := r.db.QueryRow(ctx, query, identifier).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, models.ErrRecipientNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve recipient: %w", err)
	}
	return accountID, nil
}
