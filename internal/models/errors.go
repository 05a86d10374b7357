package models

import (
	"errors"
	"fmt"

	"github.com/kudzimusar/stolen-pay/internal/domain"
)

// Error taxonomy for the transfer pipeline. Validation errors are
// returned before any state mutation and are safe to retry after
// correcting the input.
var (
	ErrInsufficientBalance        = errors.New("insufficient balance")
	ErrRecipientNotFound          = errors.New("recipient not found")
	ErrSelfTransfer               = errors.New("cannot transfer to the same account")
	ErrInvalidPaymentMethod       = errors.New("invalid payment method")
	ErrAccountNotFound            = errors.New("account not found")
	ErrMultiSigNotFound           = errors.New("multisig transaction not found")
	ErrMultiSigExpired            = errors.New("multisig transaction expired")
	ErrMultiSigUnauthorizedSigner = errors.New("signer is not authorized for this transaction")
	ErrMultiSigAlreadySigned      = errors.New("signer has already signed this transaction")
	ErrMultiSigNotPending         = errors.New("multisig transaction is not pending signatures")
	ErrMultiSigInvalidTransition  = errors.New("multisig status transition is not allowed")
)

// LimitExceededError identifies the first violated limit window.
type LimitExceededError struct {
	Window          domain.LimitWindowType
	LimitMicros     int64
	AttemptedMicros int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded", e.Window)
}

// IsLimitExceeded unwraps err into a LimitExceededError if possible.
func IsLimitExceeded(err error) (*LimitExceededError, bool) {
	var le *LimitExceededError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
