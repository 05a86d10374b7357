package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kudzimusar/stolen-pay/internal/domain"
	"github.com/kudzimusar/stolen-pay/internal/models"
)

// memStore is a mutex-guarded in-memory Store. Conditional updates
// mirror the semantics of the Postgres implementation so concurrency
// tests exercise the same guarantees.
type memStore struct {
	mu         sync.Mutex
	accounts   map[uuid.UUID]*models.Account
	methods    map[uuid.UUID]*models.PaymentMethod
	limits     map[uuid.UUID]map[domain.LimitWindowType]*models.LimitWindow
	history    map[uuid.UUID]*models.AccountHistory
	recent     map[uuid.UUID]*models.RecentActivity
	audits     []models.RiskAuditRecord
	txns       map[uuid.UUID]*models.Transaction
	multisigs  map[uuid.UUID]*models.MultiSigTransaction
	identities map[string]uuid.UUID

	failHistory bool
	failAudit   bool
	auditSeq    int64
}

func newMemStore() *memStore {
	return &memStore{
		accounts:   make(map[uuid.UUID]*models.Account),
		methods:    make(map[uuid.UUID]*models.PaymentMethod),
		limits:     make(map[uuid.UUID]map[domain.LimitWindowType]*models.LimitWindow),
		history:    make(map[uuid.UUID]*models.AccountHistory),
		recent:     make(map[uuid.UUID]*models.RecentActivity),
		txns:       make(map[uuid.UUID]*models.Transaction),
		multisigs:  make(map[uuid.UUID]*models.MultiSigTransaction),
		identities: make(map[string]uuid.UUID),
	}
}

func (m *memStore) addAccount(availableMicros int64) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct := &models.Account{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Currency:        "USD",
		AvailableMicros: availableMicros,
	}
	m.accounts[acct.ID] = acct
	m.identities[acct.ID.String()] = acct.ID
	return acct
}

func (m *memStore) addMethod(accountID uuid.UUID, category domain.PaymentMethodCategory) *models.PaymentMethod {
	m.mu.Lock()
	defer m.mu.Unlock()
	pm := &models.PaymentMethod{
		ID:        uuid.New(),
		AccountID: accountID,
		Category:  category,
		Active:    true,
	}
	m.methods[pm.ID] = pm
	return pm
}

func (m *memStore) setHistory(accountID uuid.UUID, h models.AccountHistory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[accountID] = &h
}

func (m *memStore) setRecent(accountID uuid.UUID, r models.RecentActivity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent[accountID] = &r
}

func (m *memStore) balance(accountID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[accountID].AvailableMicros
}

func (m *memStore) Resolve(_ context.Context, identifier string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.identities[identifier]
	if !ok {
		return uuid.Nil, models.ErrRecipientNotFound
	}
	return id, nil
}

func (m *memStore) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (m *memStore) GetPaymentMethod(_ context.Context, id uuid.UUID) (*models.PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pm, ok := m.methods[id]
	if !ok {
		return nil, models.ErrInvalidPaymentMethod
	}
	cp := *pm
	return &cp, nil
}

func (m *memStore) LimitWindows(_ context.Context, accountID uuid.UUID) ([]models.LimitWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byType, ok := m.limits[accountID]
	if !ok {
		byType = make(map[domain.LimitWindowType]*models.LimitWindow)
		for _, w := range DefaultLimitWindows(accountID, time.Now()) {
			cp := w
			byType[w.Window] = &cp
		}
		m.limits[accountID] = byType
	}
	out := make([]models.LimitWindow, 0, len(byType))
	for _, w := range byType {
		out = append(out, *w)
	}
	return out, nil
}

func (m *memStore) ResetLimitWindow(_ context.Context, accountID uuid.UUID, window domain.LimitWindowType, expectedResetAt, newResetAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byType, ok := m.limits[accountID]
	if !ok {
		return false, nil
	}
	w, ok := byType[window]
	if !ok || !w.ResetAt.Equal(expectedResetAt) {
		return false, nil
	}
	w.CurrentMicros = 0
	w.TxCount = 0
	w.ResetAt = newResetAt
	return true, nil
}

func (m *memStore) AccountHistory(_ context.Context, accountID uuid.UUID) (*models.AccountHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failHistory {
		return nil, errors.New("history store unavailable")
	}
	h, ok := m.history[accountID]
	if !ok {
		return &models.AccountHistory{}, nil
	}
	cp := *h
	return &cp, nil
}

func (m *memStore) RecentActivity(_ context.Context, accountID uuid.UUID, _ time.Time) (*models.RecentActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recent[accountID]
	if !ok {
		return &models.RecentActivity{}, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) AppendRiskAudit(_ context.Context, rec *models.RiskAuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAudit {
		return errors.New("audit store unavailable")
	}
	m.auditSeq++
	rec.ID = m.auditSeq
	m.audits = append(m.audits, *rec)
	return nil
}

func (m *memStore) ListRiskAudit(_ context.Context, accountID uuid.UUID, limit, offset int32) ([]models.RiskAuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RiskAuditRecord
	for i := len(m.audits) - 1; i >= 0; i-- {
		if m.audits[i].AccountID == accountID {
			out = append(out, m.audits[i])
		}
	}
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CommitTransfer(_ context.Context, p CommitParams) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sender, ok := m.accounts[p.SenderAccountID]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	recipient, ok := m.accounts[p.RecipientAccountID]
	if !ok {
		return nil, models.ErrRecipientNotFound
	}

	totalDebit := p.AmountMicros + p.Fee.TotalMicros
	if sender.AvailableMicros < totalDebit {
		return nil, models.ErrInsufficientBalance
	}
	sender.AvailableMicros -= totalDebit
	recipient.AvailableMicros += p.AmountMicros

	if byType, ok := m.limits[p.SenderAccountID]; ok {
		for _, wt := range []domain.LimitWindowType{domain.WindowDaily, domain.WindowMonthly} {
			if w, ok := byType[wt]; ok {
				w.CurrentMicros += p.AmountMicros
				w.TxCount++
			}
		}
	}

	now := time.Now()
	tx := &models.Transaction{
		ID:                 p.TransactionID,
		SenderAccountID:    p.SenderAccountID,
		RecipientAccountID: p.RecipientAccountID,
		AmountMicros:       p.AmountMicros,
		Currency:           p.Currency,
		Fee:                p.Fee,
		Type:               p.Type,
		Status:             domain.TxStatusCompleted,
		Description:        p.Description,
		CreatedAt:          now,
		CompletedAt:        &now,
	}
	m.txns[tx.ID] = tx
	cp := *tx
	return &cp, nil
}

func (m *memStore) SetTransactionAnchor(_ context.Context, txID uuid.UUID, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txns[txID]
	if !ok {
		return errors.New("transaction not found")
	}
	tx.AnchorRef = &ref
	return nil
}

func (m *memStore) CreateMultiSig(_ context.Context, ms *models.MultiSigTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := copyMultiSig(ms)
	m.multisigs[ms.ID] = cp
	return nil
}

func (m *memStore) GetMultiSig(_ context.Context, id uuid.UUID) (*models.MultiSigTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.multisigs[id]
	if !ok {
		return nil, models.ErrMultiSigNotFound
	}
	return copyMultiSig(ms), nil
}

func (m *memStore) RecordSignature(_ context.Context, id, signerID uuid.UUID) (*models.MultiSigTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.multisigs[id]
	if !ok {
		return nil, models.ErrMultiSigNotFound
	}
	if ms.Status != domain.MultiSigPendingSignatures {
		return nil, models.ErrMultiSigNotPending
	}
	if !ms.IsSigner(signerID) {
		return nil, models.ErrMultiSigUnauthorizedSigner
	}
	if !ms.IsPendingSigner(signerID) {
		return nil, models.ErrMultiSigAlreadySigned
	}
	remaining := make([]uuid.UUID, 0, len(ms.PendingSigners)-1)
	for _, s := range ms.PendingSigners {
		if s != signerID {
			remaining = append(remaining, s)
		}
	}
	ms.PendingSigners = remaining
	ms.CurrentSignatures++
	return copyMultiSig(ms), nil
}

func (m *memStore) MarkMultiSigReady(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.multisigs[id]
	if !ok {
		return false, nil
	}
	if ms.Status != domain.MultiSigPendingSignatures || ms.CurrentSignatures < ms.RequiredSignatures {
		return false, nil
	}
	ms.Status = domain.MultiSigReadyForExecution
	return true, nil
}

func (m *memStore) FinishMultiSig(_ context.Context, id uuid.UUID, status domain.MultiSigStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.multisigs[id]
	if !ok {
		return models.ErrMultiSigNotFound
	}
	if !domain.CanTransitionMultiSig(ms.Status, status) {
		return models.ErrMultiSigInvalidTransition
	}
	ms.Status = status
	return nil
}

func (m *memStore) ExpireMultiSigs(_ context.Context, now time.Time, limit int32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired int64
	for _, ms := range m.multisigs {
		if expired >= int64(limit) {
			break
		}
		if ms.Status == domain.MultiSigPendingSignatures && !now.Before(ms.ExpiresAt) {
			ms.Status = domain.MultiSigExpired
			expired++
		}
	}
	return expired, nil
}

func (m *memStore) CountPendingMultiSigs(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending int64
	for _, ms := range m.multisigs {
		if ms.Status == domain.MultiSigPendingSignatures {
			pending++
		}
	}
	return pending, nil
}

func copyMultiSig(ms *models.MultiSigTransaction) *models.MultiSigTransaction {
	cp := *ms
	cp.Signers = append([]uuid.UUID(nil), ms.Signers...)
	cp.PendingSigners = append([]uuid.UUID(nil), ms.PendingSigners...)
	return &cp
}

// stubAnchorer returns a fixed reference or error.
type stubAnchorer struct {
	ref string
	err error
}

func (a *stubAnchorer) Anchor(_ context.Context, _ *models.Transaction) (string, error) {
	return a.ref, a.err
}
