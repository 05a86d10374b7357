package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMoneyDecimalRoundTrip(t *testing.T) {
	m := NewMoney(92_000_000, "USD")
	d := m.ToDecimal()
	assert.Equal(t, "92", d.String())
	assert.Equal(t, int64(92_000_000), FromDecimal(d))
}

func TestFromMajorUnits(t *testing.T) {
	m := FromMajorUnits(15_000, "USD")
	assert.Equal(t, int64(15_000_000_000), m.Amount)
	assert.Equal(t, "USD", m.Currency)
}

func TestRoundToCents(t *testing.T) {
	// Half-up at the third decimal.
	assert.Equal(t, "0.5", RoundToCents(decimal.NewFromFloat(0.4995)).String())
	assert.Equal(t, "0.01", RoundToCents(decimal.NewFromFloat(0.005)).String())
	assert.Equal(t, "1.23", RoundToCents(decimal.NewFromFloat(1.234)).String())
}

func TestMoneyAdd(t *testing.T) {
	sum := NewMoney(1_500_000, "USD").Add(NewMoney(500_000, "USD"))
	assert.Equal(t, int64(2_000_000), sum.Amount)
	assert.Equal(t, "USD", sum.Currency)
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "92.50 USD", NewMoney(92_500_000, "USD").String())
	assert.Equal(t, "0.00 EUR", NewMoney(0, "EUR").String())
}

func TestMoneyIsPositive(t *testing.T) {
	assert.True(t, NewMoney(1, "USD").IsPositive())
	assert.False(t, NewMoney(0, "USD").IsPositive())
	assert.False(t, NewMoney(-1, "USD").IsPositive())
}
