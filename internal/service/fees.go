package service

import (
	"github.com/kudzimusar/stolen-pay/internal/domain"
	"github.com/kudzimusar/stolen-pay/internal/models"
	"github.com/shopspring/decimal"
)

// FeeScheduleRow holds the fee parameters for one transaction type.
type FeeScheduleRow struct {
	Percentage decimal.Decimal
	FixedFee   decimal.Decimal
	MinFee     decimal.Decimal
	MaxFee     decimal.Decimal
}

// FeeSchedule maps transaction types to their fee parameters.
type FeeSchedule map[string]FeeScheduleRow

// DefaultFeeSchedule returns the platform's static fee schedule.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		domain.TxTypeTransfer: {
			Percentage: decimal.NewFromFloat(0.015),
			FixedFee:   decimal.Zero,
			MinFee:     decimal.NewFromFloat(0.10),
			MaxFee:     decimal.NewFromInt(35),
		},
		domain.TxTypeWithdrawal: {
			Percentage: decimal.NewFromFloat(0.02),
			FixedFee:   decimal.NewFromInt(1),
			MinFee:     decimal.NewFromInt(2),
			MaxFee:     decimal.NewFromInt(50),
		},
		domain.TxTypeDeposit: {
			Percentage: decimal.Zero,
			FixedFee:   decimal.Zero,
			MinFee:     decimal.Zero,
			MaxFee:     decimal.Zero,
		},
	}
}

// FeeCalculator computes processing and platform fees. Pure and
// deterministic; the only input beyond the arguments is the static
// schedule it was constructed with.
type FeeCalculator struct {
	schedule           FeeSchedule
	walletPlatformRate decimal.Decimal
	cardPlatformRate   decimal.Decimal
	bankPlatformRate   decimal.Decimal
}

// NewFeeCalculator creates a calculator over the given schedule.
func NewFeeCalculator(schedule FeeSchedule) *FeeCalculator {
	return &FeeCalculator{
		schedule:           schedule,
		walletPlatformRate: decimal.NewFromFloat(0.005),
		cardPlatformRate:   decimal.NewFromFloat(0.02),
		bankPlatformRate:   decimal.NewFromFloat(0.01),
	}
}

// Calculate returns the fee breakdown for an amount, transaction type,
// and payment-method category.
//
// Processing fee: amount*percentage + fixed, clamped to [min, max],
// rounded half-up to 2 decimal places. A missing schedule row yields a
// zero fee: the schedule fails open for unknown transaction types so a
// new type never silently blocks transfers (explicit policy).
//
// Platform fee: the wallet path charges min(rate*amount, processingFee),
// so the platform's cut never exceeds the processing fee; card and bank
// charge a flat percentage of the amount independently. The asymmetry is
// preserved observed behavior, not an accident of this implementation.
func (c *FeeCalculator) Calculate(amount domain.Money, txType string, category domain.PaymentMethodCategory) models.FeeBreakdown {
	amt := amount.ToDecimal()

	processing := decimal.Zero
	if row, ok := c.schedule[txType]; ok {
		raw := amt.Mul(row.Percentage).Add(row.FixedFee)
		processing = clamp(raw, row.MinFee, row.MaxFee)
	}
	processing = domain.RoundToCents(processing)
	if processing.IsNegative() {
		processing = decimal.Zero
	}

	var platform decimal.Decimal
	switch category {
	case domain.PaymentCategoryWallet:
		platform = amt.Mul(c.walletPlatformRate)
		if platform.GreaterThan(processing) {
			platform = processing
		}
	case domain.PaymentCategoryCard:
		platform = amt.Mul(c.cardPlatformRate)
	case domain.PaymentCategoryBank:
		platform = amt.Mul(c.bankPlatformRate)
	}
	platform = domain.RoundToCents(platform)
	if platform.IsNegative() {
		platform = decimal.Zero
	}

	return models.FeeBreakdown{
		ProcessingMicros: domain.FromDecimal(processing),
		PlatformMicros:   domain.FromDecimal(platform),
		TotalMicros:      domain.FromDecimal(processing.Add(platform)),
	}
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
