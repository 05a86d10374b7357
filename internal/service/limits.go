package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kudzimusar/stolen-pay/internal/domain"
	"github.com/kudzimusar/stolen-pay/internal/models"
	"go.uber.org/zap"
)

// LimitValidator checks proposed transfer amounts against the
// account's rolling limit windows. It is side-effect free except for
// window resets, which are persisted even when a later gate rejects
// the transfer; counters are only incremented by the orchestrator
// after commit.
type LimitValidator struct {
	store Store
	now   func() time.Time
}

// NewLimitValidator creates a validator over the given store.
func NewLimitValidator(store Store) *LimitValidator {
	return &LimitValidator{store: store, now: time.Now}
}

// WithClock overrides the time source.
func (v *LimitValidator) WithClock(now func() time.Time) *LimitValidator {
	v.now = now
	return v
}

// Validate returns nil when the amount fits within every configured
// window, or a *models.LimitExceededError naming the first violated
// window in the fixed daily, monthly, per-transaction order. Expired
// windows are reset before comparison, never after.
func (v *LimitValidator) Validate(ctx context.Context, accountID uuid.UUID, amount domain.Money) error {
	windows, err := v.store.LimitWindows(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load limit windows: %w", err)
	}

	byType := make(map[domain.LimitWindowType]models.LimitWindow, len(windows))
	for _, w := range windows {
		byType[w.Window] = w
	}

	now := v.now()
	for _, wt := range domain.LimitWindowOrder {
		w, ok := byType[wt]
		if !ok {
			// Accounts without a row for this window are implicitly valid.
			continue
		}

		if wt != domain.WindowPerTransaction && !now.Before(w.ResetAt) {
			newReset := nextReset(wt, w.ResetAt, now)
			won, err := v.store.ResetLimitWindow(ctx, accountID, wt, w.ResetAt, newReset)
			if err != nil {
				return fmt.Errorf("reset %s window: %w", wt, err)
			}
			if !won {
				zap.L().Debug("limit window reset by concurrent validation",
					zap.String("account_id", accountID.String()),
					zap.String("window", string(wt)),
				)
			}
			w.CurrentMicros = 0
			w.TxCount = 0
			w.ResetAt = newReset
		}

		current := w.CurrentMicros
		if wt == domain.WindowPerTransaction {
			// Static ceiling on a single transfer; no rolling counter.
			current = 0
		}
		if current+amount.Amount > w.LimitMicros {
			return &models.LimitExceededError{
				Window:          wt,
				LimitMicros:     w.LimitMicros,
				AttemptedMicros: current + amount.Amount,
			}
		}
	}

	return nil
}

// nextReset advances the reset date by the window's period until it is
// in the future, so long-idle accounts settle in one reset instead of
// one per elapsed period.
func nextReset(wt domain.LimitWindowType, from, now time.Time) time.Time {
	period := 24 * time.Hour
	if wt == domain.WindowMonthly {
		period = 30 * 24 * time.Hour
	}
	next := from
	for !next.After(now) {
		next = next.Add(period)
	}
	return next
}

// DefaultLimitWindows is the lazily-provisioned limit set for accounts
// with no configured rows.
func DefaultLimitWindows(accountID uuid.UUID, now time.Time) []models.LimitWindow {
	return []models.LimitWindow{
		{
			AccountID:   accountID,
			Window:      domain.WindowDaily,
			LimitMicros: domain.FromMajorUnits(domain.DefaultDailyLimit, "").Amount,
			ResetAt:     now.Add(24 * time.Hour),
		},
		{
			AccountID:   accountID,
			Window:      domain.WindowMonthly,
			LimitMicros: domain.FromMajorUnits(domain.DefaultMonthlyLimit, "").Amount,
			ResetAt:     now.Add(30 * 24 * time.Hour),
		},
		{
			AccountID:   accountID,
			Window:      domain.WindowPerTransaction,
			LimitMicros: domain.FromMajorUnits(domain.DefaultSingleLimit, "").Amount,
			// Static ceiling; the reset date is effectively unbounded.
			ResetAt: now.AddDate(100, 0, 0),
		},
	}
}
