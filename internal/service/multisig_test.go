package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kudzimusar/stolen-pay/internal/domain"
	"github.com/kudzimusar/stolen-pay/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// multiSigHarness holds a transfer parked at pending_signatures plus
// the signing service over the same store.
type multiSigHarness struct {
	store     *memStore
	svc       *MultiSigService
	sender    *models.Account
	recipient *models.Account
	approvers []uuid.UUID
	id        uuid.UUID
}

func newMultiSigHarness(t *testing.T) *multiSigHarness {
	t.Helper()
	approvers := []uuid.UUID{uuid.New(), uuid.New()}
	h := newHarness(t, nil, TransferConfig{Approvers: approvers, RequiredSignatures: 2}, nil)
	sender := h.store.addAccount(domain.FromMajorUnits(100_000, "").Amount)
	recipient := h.store.addAccount(0)
	method := h.store.addMethod(sender.ID, domain.PaymentCategoryWallet)

	req := h.request(sender, recipient, method, 15_000)
	res, err := h.svc.Transfer(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, domain.TransferPendingSignatures, res.Status)

	return &multiSigHarness{
		store:     h.store,
		svc:       NewMultiSigService(h.store, h.svc).WithClock(daytime),
		sender:    sender,
		recipient: recipient,
		approvers: approvers,
		id:        *res.MultiSigID,
	}
}

func TestMultiSig_SignUntilExecuted(t *testing.T) {
	h := newMultiSigHarness(t)
	before := h.store.balance(h.sender.ID)

	res, err := h.svc.Sign(context.Background(), h.id, h.approvers[0], "sig-a")
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Equal(t, []uuid.UUID{h.approvers[1]}, res.PendingSigners)
	assert.Equal(t, before, h.store.balance(h.sender.ID))

	res, err = h.svc.Sign(context.Background(), h.id, h.approvers[1], "sig-b")
	require.NoError(t, err)
	assert.True(t, res.Completed)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, domain.TxStatusCompleted, res.Transaction.Status)

	// 15 000 at 1.5% = 225 capped at 35; wallet platform capped at 35.
	assert.Equal(t, int64(70_000_000), res.Transaction.Fee.TotalMicros)
	assert.Equal(t, before-domain.FromMajorUnits(15_070, "").Amount, h.store.balance(h.sender.ID))
	assert.Equal(t, domain.FromMajorUnits(15_000, "").Amount, h.store.balance(h.recipient.ID))

	ms, err := h.store.GetMultiSig(context.Background(), h.id)
	require.NoError(t, err)
	assert.Equal(t, domain.MultiSigExecuted, ms.Status)
}

func TestMultiSig_DoubleSignRejected(t *testing.T) {
	h := newMultiSigHarness(t)

	_, err := h.svc.Sign(context.Background(), h.id, h.approvers[0], "sig-a")
	require.NoError(t, err)

	_, err = h.svc.Sign(context.Background(), h.id, h.approvers[0], "sig-a-again")
	assert.ErrorIs(t, err, models.ErrMultiSigAlreadySigned)
}

func TestMultiSig_StrangerCannotSign(t *testing.T) {
	h := newMultiSigHarness(t)

	_, err := h.svc.Sign(context.Background(), h.id, uuid.New(), "sig-x")
	assert.ErrorIs(t, err, models.ErrMultiSigUnauthorizedSigner)
}

func TestMultiSig_EmptySignatureRejected(t *testing.T) {
	h := newMultiSigHarness(t)

	_, err := h.svc.Sign(context.Background(), h.id, h.approvers[0], "")
	assert.Error(t, err)
}

func TestMultiSig_SignAfterExpiry(t *testing.T) {
	h := newMultiSigHarness(t)

	// The signing window has closed but the sweep has not run yet; the
	// sign call expires the row lazily.
	h.svc.WithClock(func() time.Time { return daytime().Add(25 * time.Hour) })

	_, err := h.svc.Sign(context.Background(), h.id, h.approvers[0], "sig-late")
	assert.ErrorIs(t, err, models.ErrMultiSigExpired)

	ms, err := h.store.GetMultiSig(context.Background(), h.id)
	require.NoError(t, err)
	assert.Equal(t, domain.MultiSigExpired, ms.Status)
	assert.Equal(t, domain.FromMajorUnits(100_000, "").Amount, h.store.balance(h.sender.ID))
}

func TestMultiSig_ExecutionFailureIsTerminal(t *testing.T) {
	h := newMultiSigHarness(t)

	_, err := h.svc.Sign(context.Background(), h.id, h.approvers[0], "sig-a")
	require.NoError(t, err)

	// Drain the sender between the hold and the final signature.
	h.store.mu.Lock()
	h.store.accounts[h.sender.ID].AvailableMicros = 0
	h.store.mu.Unlock()

	_, err = h.svc.Sign(context.Background(), h.id, h.approvers[1], "sig-b")
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)

	ms, err := h.store.GetMultiSig(context.Background(), h.id)
	require.NoError(t, err)
	assert.Equal(t, domain.MultiSigExecutionFailed, ms.Status)
	assert.Equal(t, int64(0), h.store.balance(h.recipient.ID))

	// Terminal: even a now-funded account cannot revive the hold.
	h.store.mu.Lock()
	h.store.accounts[h.sender.ID].AvailableMicros = domain.FromMajorUnits(100_000, "").Amount
	h.store.mu.Unlock()
	_, err = h.svc.Sign(context.Background(), h.id, h.approvers[1], "sig-b")
	assert.ErrorIs(t, err, models.ErrMultiSigNotPending)
}

func TestMultiSig_GetVisibility(t *testing.T) {
	h := newMultiSigHarness(t)

	ms, err := h.svc.Get(context.Background(), h.id, h.sender.ID)
	require.NoError(t, err)
	assert.Equal(t, h.id, ms.ID)

	ms, err = h.svc.Get(context.Background(), h.id, h.approvers[0])
	require.NoError(t, err)
	assert.Equal(t, int32(0), ms.CurrentSignatures)

	_, err = h.svc.Get(context.Background(), h.id, uuid.New())
	assert.ErrorIs(t, err, models.ErrMultiSigUnauthorizedSigner)

	_, err = h.svc.Get(context.Background(), uuid.New(), h.sender.ID)
	assert.ErrorIs(t, err, models.ErrMultiSigNotFound)
}

func TestMultiSig_ExpirePendingSweep(t *testing.T) {
	h := newMultiSigHarness(t)

	h.svc.WithClock(func() time.Time { return daytime().Add(25 * time.Hour) })
	expired, err := h.svc.ExpirePending(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	ms, err := h.store.GetMultiSig(context.Background(), h.id)
	require.NoError(t, err)
	assert.Equal(t, domain.MultiSigExpired, ms.Status)

	// Idempotent: a second sweep finds nothing pending.
	expired, err = h.svc.ExpirePending(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, int64(0), expired)
}

func TestMultiSig_ExecutedStatusNeverRegresses(t *testing.T) {
	h := newMultiSigHarness(t)

	_, err := h.svc.Sign(context.Background(), h.id, h.approvers[0], "sig-a")
	require.NoError(t, err)
	res, err := h.svc.Sign(context.Background(), h.id, h.approvers[1], "sig-b")
	require.NoError(t, err)
	require.True(t, res.Completed)

	// A straggling expiry write must not overwrite a row whose funds
	// already moved.
	err = h.store.FinishMultiSig(context.Background(), h.id, domain.MultiSigExpired)
	assert.ErrorIs(t, err, models.ErrMultiSigInvalidTransition)

	ms, err := h.store.GetMultiSig(context.Background(), h.id)
	require.NoError(t, err)
	assert.Equal(t, domain.MultiSigExecuted, ms.Status)
}

func TestMultiSig_ConcurrentFinalSignaturesExecuteOnce(t *testing.T) {
	approvers := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	th := newHarness(t, nil, TransferConfig{Approvers: approvers, RequiredSignatures: 2}, nil)
	sender := th.store.addAccount(domain.FromMajorUnits(100_000, "").Amount)
	recipient := th.store.addAccount(0)
	method := th.store.addMethod(sender.ID, domain.PaymentCategoryWallet)

	res, err := th.svc.Transfer(context.Background(), th.request(sender, recipient, method, 15_000))
	require.NoError(t, err)
	require.Equal(t, domain.TransferPendingSignatures, res.Status)
	id := *res.MultiSigID

	svc := NewMultiSigService(th.store, th.svc).WithClock(daytime)
	_, err = svc.Sign(context.Background(), id, approvers[0], "sig-a")
	require.NoError(t, err)

	// Two signers race to cross the threshold; the ready_for_execution
	// compare-and-set elects exactly one executor.
	results := make(chan *models.SignResult, 2)
	errs := make(chan error, 2)
	for _, signer := range approvers[1:] {
		signer := signer
		go func() {
			r, err := svc.Sign(context.Background(), id, signer, "sig-final")
			results <- r
			errs <- err
		}()
	}

	completed := 0
	for i := 0; i < 2; i++ {
		r := <-results
		err := <-errs
		if err != nil {
			// The loser may observe the row already past pending.
			assert.ErrorIs(t, err, models.ErrMultiSigNotPending)
			continue
		}
		if r.Completed {
			completed++
		}
	}
	assert.Equal(t, 1, completed)

	// Funds moved exactly once.
	assert.Equal(t, domain.FromMajorUnits(15_000, "").Amount, th.store.balance(recipient.ID))

	ms, err := th.store.GetMultiSig(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.MultiSigExecuted, ms.Status)
}

func TestMultiSigStatusTransitions(t *testing.T) {
	allowed := []struct {
		from, to domain.MultiSigStatus
	}{
		{domain.MultiSigPendingSignatures, domain.MultiSigReadyForExecution},
		{domain.MultiSigPendingSignatures, domain.MultiSigExpired},
		{domain.MultiSigReadyForExecution, domain.MultiSigExecuted},
		{domain.MultiSigReadyForExecution, domain.MultiSigExecutionFailed},
	}
	for _, tc := range allowed {
		assert.True(t, domain.CanTransitionMultiSig(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct {
		from, to domain.MultiSigStatus
	}{
		{domain.MultiSigExecuted, domain.MultiSigPendingSignatures},
		{domain.MultiSigExpired, domain.MultiSigReadyForExecution},
		{domain.MultiSigExecutionFailed, domain.MultiSigReadyForExecution},
		{domain.MultiSigPendingSignatures, domain.MultiSigExecuted},
	}
	for _, tc := range denied {
		assert.False(t, domain.CanTransitionMultiSig(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
