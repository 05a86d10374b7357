package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kudzimusar/stolen-pay/internal/domain"
	"github.com/kudzimusar/stolen-pay/internal/geo"
	"github.com/kudzimusar/stolen-pay/internal/models"
)

// Store defines the data access contract required by the transfer
// pipeline. The production implementation is backed by Postgres with
// atomic conditional updates on balances and signature counts; tests
// substitute an in-memory fake.
type Store interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetPaymentMethod(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error)

	// LimitWindows returns the account's limit rows, lazily provisioning
	// the default daily/monthly/per-transaction set when none exist.
	LimitWindows(ctx context.Context, accountID uuid.UUID) ([]models.LimitWindow, error)

	// ResetLimitWindow zeroes a window's counters and advances its reset
	// date, conditional on the row still carrying expectedResetAt. The
	// conditional guard makes concurrent resets idempotent: exactly one
	// caller wins, the rest observe the already-reset row.
	ResetLimitWindow(ctx context.Context, accountID uuid.UUID, window domain.LimitWindowType, expectedResetAt, newResetAt time.Time) (bool, error)

	AccountHistory(ctx context.Context, accountID uuid.UUID) (*models.AccountHistory, error)
	RecentActivity(ctx context.Context, accountID uuid.UUID, since time.Time) (*models.RecentActivity, error)

	// AppendRiskAudit persists one immutable fraud-audit record.
	AppendRiskAudit(ctx context.Context, rec *models.RiskAuditRecord) error
	ListRiskAudit(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]models.RiskAuditRecord, error)

	// CommitTransfer applies the ledger mutation as a single atomic
	// transaction: conditional debit of amount+fee guarded by the sender's
	// available balance, recipient credit, limit-counter increments, and
	// the completed Transaction row. Returns ErrInsufficientBalance when
	// the conditional debit matches no row.
	CommitTransfer(ctx context.Context, p CommitParams) (*models.Transaction, error)

	SetTransactionAnchor(ctx context.Context, txID uuid.UUID, ref string) error

	CreateMultiSig(ctx context.Context, ms *models.MultiSigTransaction) error
	GetMultiSig(ctx context.Context, id uuid.UUID) (*models.MultiSigTransaction, error)

	// RecordSignature atomically moves signerID from pending_signers to
	// the signed set and increments current_signatures, guarded by row
	// status and signer membership. Returns the updated row.
	RecordSignature(ctx context.Context, id, signerID uuid.UUID) (*models.MultiSigTransaction, error)

	// MarkMultiSigReady is the compare-and-set transition from
	// pending_signatures to ready_for_execution; exactly one concurrent
	// caller observes true and performs the commit.
	MarkMultiSigReady(ctx context.Context, id uuid.UUID) (bool, error)

	// FinishMultiSig stamps a status, guarded by the legal transition
	// table: a terminal row never regresses. Illegal writes return
	// ErrMultiSigInvalidTransition.
	FinishMultiSig(ctx context.Context, id uuid.UUID, status domain.MultiSigStatus) error

	// ExpireMultiSigs moves pending transactions past their expiry into
	// the expired status and reports how many rows changed.
	ExpireMultiSigs(ctx context.Context, now time.Time, limit int32) (int64, error)

	// CountPendingMultiSigs reports how many transactions still await
	// signatures, for the pending-transactions gauge.
	CountPendingMultiSigs(ctx context.Context) (int64, error)
}

// CommitParams carries everything the atomic ledger mutation needs.
// Device and location context rides along so future assessments can
// read it back as account history.
type CommitParams struct {
	TransactionID      uuid.UUID
	SenderAccountID    uuid.UUID
	RecipientAccountID uuid.UUID
	AmountMicros       int64
	Currency           string
	Fee                models.FeeBreakdown
	Type               string
	Description        string
	DeviceFingerprint  string
	Location           *geo.Point
	Country            string
}

// RecipientResolver resolves an external identifier (account id, email,
// phone, or wallet handle) to an account id. The core treats resolution
// as a black box.
type RecipientResolver interface {
	Resolve(ctx context.Context, identifier string) (uuid.UUID, error)
}
