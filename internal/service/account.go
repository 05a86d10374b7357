package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kudzimusar/stolen-pay/internal/models"
)

// AccountService serves account-scoped reads: balances, limit windows,
// and the fraud audit trail.
type AccountService struct {
	store Store
}

// NewAccountService creates the read service.
func NewAccountService(store Store) *AccountService {
	return &AccountService{store: store}
}

// GetBalance returns the account with its balances.
func (s *AccountService) GetBalance(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetLimits returns the account's limit windows, provisioning defaults
// for accounts that have none yet.
func (s *AccountService) GetLimits(ctx context.Context, accountID uuid.UUID) ([]models.LimitWindow, error) {
	windows, err := s.store.LimitWindows(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load limit windows: %w", err)
	}
	return windows, nil
}

// GetRiskAudit returns a page of the append-only assessment log.
func (s *AccountService) GetRiskAudit(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]models.RiskAuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	records, err := s.store.ListRiskAudit(ctx, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list risk audit: %w", err)
	}
	return records, nil
}
