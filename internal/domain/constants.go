package domain

// Transaction types recognised by the fee schedule.
const (
	TxTypeTransfer   = "transfer"
	TxTypeWithdrawal = "withdrawal"
	TxTypeDeposit    = "deposit"
)

// Transaction statuses.
const (
	TxStatusPending   = "PENDING"
	TxStatusCompleted = "COMPLETED"
	TxStatusFailed    = "FAILED"
)

// PaymentMethodCategory is a closed set of payment-method variants.
// Fee logic branches on the category, never on free-form strings.
type PaymentMethodCategory string

const (
	PaymentCategoryWallet PaymentMethodCategory = "wallet"
	PaymentCategoryCard   PaymentMethodCategory = "card"
	PaymentCategoryBank   PaymentMethodCategory = "bank"
)

// Valid reports whether the category is one of the closed set.
func (c PaymentMethodCategory) Valid() bool {
	switch c {
	case PaymentCategoryWallet, PaymentCategoryCard, PaymentCategoryBank:
		return true
	}
	return false
}

// LimitWindowType identifies a spending-limit window.
type LimitWindowType string

const (
	WindowDaily          LimitWindowType = "daily"
	WindowMonthly        LimitWindowType = "monthly"
	WindowPerTransaction LimitWindowType = "per_transaction"
)

// LimitWindowOrder fixes the evaluation order so the first violated
// window is reported deterministically.
var LimitWindowOrder = []LimitWindowType{WindowDaily, WindowMonthly, WindowPerTransaction}

// Default limit thresholds, in platform base currency major units.
// Applied when an account has no limit rows provisioned yet.
const (
	DefaultDailyLimit   = 15_000
	DefaultMonthlyLimit = 100_000
	DefaultSingleLimit  = 50_000
)

// RiskLevel is the tier derived from the aggregate risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// RiskAction is the recommended handling for an assessed transfer.
type RiskAction string

const (
	ActionApprove RiskAction = "approve"
	ActionReview  RiskAction = "review"
	ActionBlock   RiskAction = "block"
)

// MultiSigStatus tracks the lifecycle of a multi-signature transaction.
// Transitions are monotonic; an executed transaction never regresses.
type MultiSigStatus string

const (
	MultiSigPendingSignatures MultiSigStatus = "pending_signatures"
	MultiSigReadyForExecution MultiSigStatus = "ready_for_execution"
	MultiSigExecuted          MultiSigStatus = "executed"
	MultiSigExecutionFailed   MultiSigStatus = "execution_failed"
	MultiSigExpired           MultiSigStatus = "expired"
)

// multiSigTransitions encodes the monotonic status machine: no path
// leads back from executed, execution_failed, or expired. Stores guard
// their status writes with this table.
var multiSigTransitions = map[MultiSigStatus]map[MultiSigStatus]struct{}{
	MultiSigPendingSignatures: {
		MultiSigReadyForExecution: {},
		MultiSigExpired:           {},
	},
	MultiSigReadyForExecution: {
		MultiSigExecuted:        {},
		MultiSigExecutionFailed: {},
	},
	MultiSigExecuted:        {},
	MultiSigExecutionFailed: {},
	MultiSigExpired:         {},
}

// CanTransitionMultiSig reports whether current -> next is a legal
// status transition.
func CanTransitionMultiSig(current, next MultiSigStatus) bool {
	nextStates, ok := multiSigTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// MultiSigPredecessors returns every status from which next is legally
// reachable.
func MultiSigPredecessors(next MultiSigStatus) []MultiSigStatus {
	var out []MultiSigStatus
	for from, nextStates := range multiSigTransitions {
		if _, ok := nextStates[next]; ok {
			out = append(out, from)
		}
	}
	return out
}

// TransferStatus is the caller-visible outcome of a transfer request.
type TransferStatus string

const (
	TransferBlocked           TransferStatus = "blocked"
	TransferPendingSignatures TransferStatus = "pending_signatures"
	TransferCompleted         TransferStatus = "completed"
)

// AnchorStatus reports the best-effort external anchoring outcome.
type AnchorStatus string

const (
	AnchorSkipped   AnchorStatus = "skipped"
	AnchorConfirmed AnchorStatus = "confirmed"
	AnchorFailed    AnchorStatus = "failed"
)
