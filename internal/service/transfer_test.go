package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kudzimusar/stolen-pay/internal/anchor"
	"github.com/kudzimusar/stolen-pay/internal/domain"
	"github.com/kudzimusar/stolen-pay/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// transferHarness bundles the pipeline over a memStore with a daytime
// clock so time-of-day and velocity rules stay quiet unless a test
// provokes them.
type transferHarness struct {
	store *memStore
	svc   *TransferService
}

func newHarness(t *testing.T, anchorer anchor.Anchorer, cfg TransferConfig, countries []string) *transferHarness {
	t.Helper()
	store := newMemStore()
	if anchorer == nil {
		anchorer = &stubAnchorer{ref: "anchor-ref"}
	}
	svc := NewTransferService(
		store,
		store,
		NewLimitValidator(store).WithClock(daytime),
		NewFeeCalculator(DefaultFeeSchedule()),
		testScorer(store, nil, countries),
		anchorer,
		nil,
		cfg,
	).WithClock(daytime)
	return &transferHarness{store: store, svc: svc}
}

func (h *transferHarness) request(sender, recipient *models.Account, method *models.PaymentMethod, amountMajor int64) models.TransferRequest {
	return models.TransferRequest{
		SenderAccountID:     sender.ID,
		RecipientIdentifier: recipient.ID.String(),
		AmountMicros:        domain.FromMajorUnits(amountMajor, "USD").Amount,
		Currency:            "USD",
		PaymentMethodID:     method.ID,
	}
}

func TestTransfer_CompletedMovesFunds(t *testing.T) {
	h := newHarness(t, nil, TransferConfig{}, nil)
	sender := establishedSender(h.store)
	recipient := h.store.addAccount(0)
	method := h.store.addMethod(sender.ID, domain.PaymentCategoryWallet)

	res, err := h.svc.Transfer(context.Background(), h.request(sender, recipient, method, 600))
	require.NoError(t, err)

	assert.Equal(t, domain.TransferCompleted, res.Status)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, domain.TxStatusCompleted, res.Transaction.Status)
	assert.Equal(t, domain.AnchorSkipped, res.Anchoring)

	// 600 at 1.5% = 9 processing, wallet platform 3; sender pays 612.
	assert.Equal(t, int64(12_000_000), res.Transaction.Fee.TotalMicros)
	assert.Equal(t, domain.FromMajorUnits(1_000_000-612, "").Amount, h.store.balance(sender.ID))
	assert.Equal(t, domain.FromMajorUnits(600, "").Amount, h.store.balance(recipient.ID))

	// Limit counters accrue the amount, not the fee.
	daily := h.store.limits[sender.ID][domain.WindowDaily]
	assert.Equal(t, domain.FromMajorUnits(600, "").Amount, daily.CurrentMicros)
	assert.Equal(t, int32(1), daily.TxCount)
}

func TestTransfer_BlockedLeavesBalancesAlone(t *testing.T) {
	h := newHarness(t, nil, TransferConfig{}, []string{"KP"})
	sender := h.store.addAccount(domain.FromMajorUnits(1_000_000, "").Amount)
	recipient := h.store.addAccount(0)
	method := h.store.addMethod(sender.ID, domain.PaymentCategoryWallet)

	// Thin history 15 + high amount 30 + new device 20 + high-risk
	// country 35 = 100, critical, within the daily limit so the risk
	// gate is what stops it.
	req := h.request(sender, recipient, method, 15_000)
	req.DeviceFingerprint = "fp-first-seen"
	req.Country = "KP"

	res, err := h.svc.Transfer(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.TransferBlocked, res.Status)
	assert.Nil(t, res.Transaction)
	assert.Equal(t, "additional verification required", res.Message)
	assert.Equal(t, domain.FromMajorUnits(1_000_000, "").Amount, h.store.balance(sender.ID))
	assert.Equal(t, int64(0), h.store.balance(recipient.ID))

	// The full trigger detail lands in the audit log, not the result
	// message.
	records, err := h.store.ListRiskAudit(context.Background(), sender.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Len(t, records[0].Assessment.Triggers, 4)
	assert.NotEmpty(t, records[0].Assessment.BlockedReason)
}

func TestTransfer_ReviewHoldsForSignatures(t *testing.T) {
	approvers := []uuid.UUID{uuid.New(), uuid.New()}
	h := newHarness(t, nil, TransferConfig{Approvers: approvers, RequiredSignatures: 2}, nil)
	sender := h.store.addAccount(domain.FromMajorUnits(100_000, "").Amount)
	recipient := h.store.addAccount(0)
	method := h.store.addMethod(sender.ID, domain.PaymentCategoryWallet)

	// Thin history 15 + high amount 30 = 45, medium tier.
	res, err := h.svc.Transfer(context.Background(), h.request(sender, recipient, method, 15_000))
	require.NoError(t, err)

	assert.Equal(t, domain.TransferPendingSignatures, res.Status)
	require.NotNil(t, res.MultiSigID)
	assert.ElementsMatch(t, approvers, res.PendingSigners)
	assert.Equal(t, domain.FromMajorUnits(100_000, "").Amount, h.store.balance(sender.ID))

	ms, err := h.store.GetMultiSig(context.Background(), *res.MultiSigID)
	require.NoError(t, err)
	assert.Equal(t, domain.MultiSigPendingSignatures, ms.Status)
	assert.Equal(t, int32(2), ms.RequiredSignatures)
	// Only the configured approvers sign; the sender cannot approve
	// their own held transfer.
	assert.ElementsMatch(t, approvers, ms.Signers)
	assert.False(t, ms.IsSigner(sender.ID))
	// The fee is locked in at hold time.
	assert.NotZero(t, ms.Fee.TotalMicros)
}

func TestTransfer_ExplicitMultiSigOnLowRisk(t *testing.T) {
	approvers := []uuid.UUID{uuid.New(), uuid.New()}
	h := newHarness(t, nil, TransferConfig{Approvers: approvers, RequiredSignatures: 2}, nil)
	sender := establishedSender(h.store)
	recipient := h.store.addAccount(0)
	method := h.store.addMethod(sender.ID, domain.PaymentCategoryWallet)

	req := h.request(sender, recipient, method, 600)
	req.RequireMultiSig = true

	res, err := h.svc.Transfer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferPendingSignatures, res.Status)
	assert.Equal(t, domain.RiskLevelLow, res.RiskAssessment.Level)
}

func TestTransfer_ConcurrentOverdraw(t *testing.T) {
	h := newHarness(t, nil, TransferConfig{}, nil)
	sender := h.store.addAccount(domain.FromMajorUnits(1_000, "").Amount)
	h.store.setHistory(sender.ID, models.AccountHistory{
		PriorTransactions: 10,
		AverageMicros:     domain.FromMajorUnits(5_000, "").Amount,
	})
	recipient := h.store.addAccount(0)
	method := h.store.addMethod(sender.ID, domain.PaymentCategoryWallet)

	// Each transfer costs 612 (600 + 12 fee); the 1 000 balance covers
	// exactly one.
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.Transfer(context.Background(), h.request(sender, recipient, method, 600))
		}(i)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if errors.Is(err, models.ErrInsufficientBalance) {
			failures++
		} else {
			require.NoError(t, err)
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, domain.FromMajorUnits(1_000-612, "").Amount, h.store.balance(sender.ID))
	assert.Equal(t, domain.FromMajorUnits(600, "").Amount, h.store.balance(recipient.ID))
}

func TestTransfer_AnchorConfirmed(t *testing.T) {
	h := newHarness(t, &stubAnchorer{ref: "chain-tx-42"}, TransferConfig{}, nil)
	sender := establishedSender(h.store)
	recipient := h.store.addAccount(0)
	method := h.store.addMethod(sender.ID, domain.PaymentCategoryWallet)

	req := h.request(sender, recipient, method, 600)
	req.RequireAnchor = true

	res, err := h.svc.Transfer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.AnchorConfirmed, res.Anchoring)
	require.NotNil(t, res.Transaction.AnchorRef)
	assert.Equal(t, "chain-tx-42", *res.Transaction.AnchorRef)
}

func TestTransfer_AnchorFailureDegrades(t *testing.T) {
	h := newHarness(t, &stubAnchorer{err: errors.New("anchor backend down")}, TransferConfig{}, nil)
	sender := establishedSender(h.store)
	recipient := h.store.addAccount(0)
	method := h.store.addMethod(sender.ID, domain.PaymentCategoryWallet)

	req := h.request(sender, recipient, method, 600)
	req.RequireAnchor = true

	res, err := h.svc.Transfer(context.Background(), req)
	require.NoError(t, err)

	// The transfer stands; only the anchoring outcome degrades.
	assert.Equal(t, domain.TransferCompleted, res.Status)
	assert.Equal(t, domain.AnchorFailed, res.Anchoring)
	assert.Nil(t, res.Transaction.AnchorRef)
	assert.Equal(t, domain.FromMajorUnits(600, "").Amount, h.store.balance(recipient.ID))
}

func TestTransfer_ValidationErrors(t *testing.T) {
	h := newHarness(t, nil, TransferConfig{}, nil)
	sender := establishedSender(h.store)
	recipient := h.store.addAccount(0)
	method := h.store.addMethod(sender.ID, domain.PaymentCategoryWallet)

	t.Run("self transfer", func(t *testing.T) {
		req := h.request(sender, sender, method, 100)
		_, err := h.svc.Transfer(context.Background(), req)
		assert.ErrorIs(t, err, models.ErrSelfTransfer)
	})

	t.Run("unknown recipient", func(t *testing.T) {
		req := h.request(sender, recipient, method, 100)
		req.RecipientIdentifier = "nobody@example.com"
		_, err := h.svc.Transfer(context.Background(), req)
		assert.ErrorIs(t, err, models.ErrRecipientNotFound)
	})

	t.Run("zero amount", func(t *testing.T) {
		req := h.request(sender, recipient, method, 0)
		_, err := h.svc.Transfer(context.Background(), req)
		assert.Error(t, err)
	})

	t.Run("someone else's payment method", func(t *testing.T) {
		foreign := h.store.addMethod(recipient.ID, domain.PaymentCategoryWallet)
		req := h.request(sender, recipient, foreign, 100)
		_, err := h.svc.Transfer(context.Background(), req)
		assert.ErrorIs(t, err, models.ErrInvalidPaymentMethod)
	})

	t.Run("inactive payment method", func(t *testing.T) {
		inactive := h.store.addMethod(sender.ID, domain.PaymentCategoryWallet)
		h.store.methods[inactive.ID].Active = false
		req := h.request(sender, recipient, inactive, 100)
		_, err := h.svc.Transfer(context.Background(), req)
		assert.ErrorIs(t, err, models.ErrInvalidPaymentMethod)
	})

	t.Run("limit exceeded", func(t *testing.T) {
		req := h.request(sender, recipient, method, domain.DefaultDailyLimit+1)
		_, err := h.svc.Transfer(context.Background(), req)
		le, ok := models.IsLimitExceeded(err)
		require.True(t, ok)
		assert.Equal(t, domain.WindowDaily, le.Window)
	})

	// None of the rejected attempts touched a balance.
	assert.Equal(t, domain.FromMajorUnits(1_000_000, "").Amount, h.store.balance(sender.ID))
	assert.Equal(t, int64(0), h.store.balance(recipient.ID))
}

func TestTransfer_InsufficientBalanceCoversFees(t *testing.T) {
	h := newHarness(t, nil, TransferConfig{}, nil)
	// Enough for the amount but not amount plus fee.
	sender := h.store.addAccount(domain.FromMajorUnits(600, "").Amount)
	h.store.setHistory(sender.ID, models.AccountHistory{
		PriorTransactions: 10,
		AverageMicros:     domain.FromMajorUnits(5_000, "").Amount,
	})
	recipient := h.store.addAccount(0)
	method := h.store.addMethod(sender.ID, domain.PaymentCategoryWallet)

	_, err := h.svc.Transfer(context.Background(), h.request(sender, recipient, method, 600))
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)
	assert.Equal(t, domain.FromMajorUnits(600, "").Amount, h.store.balance(sender.ID))
}
