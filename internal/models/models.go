package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/kudzimusar/stolen-pay/internal/domain"
	"github.com/kudzimusar/stolen-pay/internal/geo"
)

// Account is a party capable of sending and receiving funds.
// Balances are BIGINT micros; available_micros never goes negative
// after a committed mutation.
type Account struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	Currency        string    `json:"currency"`
	AvailableMicros int64     `json:"available_micros"`
	EscrowMicros    int64     `json:"escrow_micros"`
	PendingMicros   int64     `json:"pending_micros"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PaymentMethod is an opaque funding instrument owned by an account.
type PaymentMethod struct {
	ID        uuid.UUID                    `json:"id"`
	AccountID uuid.UUID                    `json:"account_id"`
	Category  domain.PaymentMethodCategory `json:"category"`
	Active    bool                         `json:"active"`
	CreatedAt time.Time                    `json:"created_at"`
}

// LimitWindow is a per-account, per-window spending cap row.
// Counters reset strictly when now >= ResetAt, never early.
type LimitWindow struct {
	AccountID     uuid.UUID              `json:"account_id"`
	Window        domain.LimitWindowType `json:"window"`
	LimitMicros   int64                  `json:"limit_micros"`
	CurrentMicros int64                  `json:"current_micros"`
	TxCount       int32                  `json:"tx_count"`
	ResetAt       time.Time              `json:"reset_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// TransferRequest is the ephemeral value object describing a proposed
// transfer. It is never persisted directly; it becomes a Transaction if
// it survives all gates, or the payload of a MultiSigTransaction if it
// needs signatures first.
type TransferRequest struct {
	SenderAccountID     uuid.UUID  `json:"sender_account_id"`
	RecipientIdentifier string     `json:"recipient_identifier"`
	AmountMicros        int64      `json:"amount_micros"`
	Currency            string     `json:"currency"`
	Description         string     `json:"description,omitempty"`
	PaymentMethodID     uuid.UUID  `json:"payment_method_id"`
	RequireAnchor       bool       `json:"require_anchor,omitempty"`
	RequireMultiSig     bool       `json:"require_multi_sig,omitempty"`
	Location            *geo.Point `json:"location,omitempty"`
	Country             string     `json:"country,omitempty"`
	DeviceFingerprint   string     `json:"device_fingerprint,omitempty"`
}

// Amount returns the requested amount as Money.
func (r TransferRequest) Amount() domain.Money {
	return domain.NewMoney(r.AmountMicros, r.Currency)
}

// FeeBreakdown is the derived fee for a transfer, embedded into the
// resulting Transaction.
type FeeBreakdown struct {
	ProcessingMicros int64 `json:"processing_micros"`
	PlatformMicros   int64 `json:"platform_micros"`
	TotalMicros      int64 `json:"total_micros"`
}

// RiskAssessment is the derived fraud verdict for a single request.
type RiskAssessment struct {
	Score                int               `json:"score"`
	Level                domain.RiskLevel  `json:"level"`
	Triggers             []string          `json:"triggers,omitempty"`
	RecommendedAction    domain.RiskAction `json:"recommended_action"`
	RequiresManualReview bool              `json:"requires_manual_review"`
	BlockedReason        string            `json:"blocked_reason,omitempty"`
}

// RiskAuditRecord is the append-only persisted form of an assessment.
// Records are keyed by account id and timestamp and are never updated
// or deleted.
type RiskAuditRecord struct {
	ID           int64          `json:"id"`
	AccountID    uuid.UUID      `json:"account_id"`
	AmountMicros int64          `json:"amount_micros"`
	Assessment   RiskAssessment `json:"assessment"`
	CreatedAt    time.Time      `json:"created_at"`
}

// MultiSigTransaction is a transfer waiting for N-of-M approver
// signatures before funds move. Invariant:
// CurrentSignatures == len(Signers) - len(PendingSigners).
type MultiSigTransaction struct {
	ID                 uuid.UUID             `json:"id"`
	Request            TransferRequest       `json:"request"`
	RecipientAccountID uuid.UUID             `json:"recipient_account_id"`
	Fee                FeeBreakdown          `json:"fee"`
	RequiredSignatures int32                 `json:"required_signatures"`
	CurrentSignatures  int32                 `json:"current_signatures"`
	Signers            []uuid.UUID           `json:"signers"`
	PendingSigners     []uuid.UUID           `json:"pending_signers"`
	Status             domain.MultiSigStatus `json:"status"`
	ExpiresAt          time.Time             `json:"expires_at"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// Expired reports whether the signing window has closed.
func (m *MultiSigTransaction) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// IsSigner reports whether id is one of the designated signers.
func (m *MultiSigTransaction) IsSigner(id uuid.UUID) bool {
	for _, s := range m.Signers {
		if s == id {
			return true
		}
	}
	return false
}

// IsPendingSigner reports whether id has not signed yet.
func (m *MultiSigTransaction) IsPendingSigner(id uuid.UUID) bool {
	for _, s := range m.PendingSigners {
		if s == id {
			return true
		}
	}
	return false
}

// Transaction is the committed ledger entry. Immutable once completed.
type Transaction struct {
	ID                 uuid.UUID    `json:"id"`
	SenderAccountID    uuid.UUID    `json:"sender_account_id"`
	RecipientAccountID uuid.UUID    `json:"recipient_account_id"`
	AmountMicros       int64        `json:"amount_micros"`
	Currency           string       `json:"currency"`
	Fee                FeeBreakdown `json:"fee"`
	Type               string       `json:"type"`
	Status             string       `json:"status"`
	Description        string       `json:"description,omitempty"`
	AnchorRef          *string      `json:"anchor_ref,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`
}

// AccountHistory summarises an account's prior activity for risk scoring.
type AccountHistory struct {
	PriorTransactions int        `json:"prior_transactions"`
	AverageMicros     int64      `json:"average_micros"`
	KnownFingerprints []string   `json:"known_fingerprints,omitempty"`
	LastKnownLocation *geo.Point `json:"last_known_location,omitempty"`
	LastKnownCountry  string     `json:"last_known_country,omitempty"`
	LastTransactionAt *time.Time `json:"last_transaction_at,omitempty"`
}

// HasFingerprint reports whether fp was seen on a prior transaction.
func (h *AccountHistory) HasFingerprint(fp string) bool {
	for _, known := range h.KnownFingerprints {
		if known == fp {
			return true
		}
	}
	return false
}

// RecentActivity is the trailing-24h aggregate used by the velocity rule.
type RecentActivity struct {
	SumMicros int64 `json:"sum_micros"`
	Count     int   `json:"count"`
}

// TransferResult is the caller-visible outcome of a transfer request.
type TransferResult struct {
	Status         domain.TransferStatus `json:"status"`
	Transaction    *Transaction          `json:"transaction,omitempty"`
	RiskAssessment RiskAssessment        `json:"risk_assessment"`
	MultiSigID     *uuid.UUID            `json:"multisig_id,omitempty"`
	PendingSigners []uuid.UUID           `json:"pending_signers,omitempty"`
	Anchoring      domain.AnchorStatus   `json:"anchoring,omitempty"`
	Message        string                `json:"message,omitempty"`
}

// SignResult is the outcome of a single sign call.
type SignResult struct {
	Completed      bool         `json:"completed"`
	Transaction    *Transaction `json:"transaction,omitempty"`
	PendingSigners []uuid.UUID  `json:"pending_signers,omitempty"`
}
