package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is a notification message keyed by account id.
type Event struct {
	AccountID     uuid.UUID
	Kind          string
	TransactionID uuid.UUID
	AmountMicros  int64
	Currency      string
}

// Notifier delivers a single notification event.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Dispatcher sends events fire-and-forget with a bounded timeout;
// delivery failure never affects the already-decided transfer outcome.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
}

// NewDispatcher wraps a notifier with async, timeout-bounded dispatch.
func NewDispatcher(notifier Notifier, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{notifier: notifier, timeout: timeout}
}

// Dispatch delivers the events on a background goroutine. The parent
// context is deliberately not used: the transfer has already completed
// and its cancellation must not suppress the notifications.
func (d *Dispatcher) Dispatch(events ...Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		for _, event := range events {
			if err := d.notifier.Notify(ctx, event); err != nil {
				zap.L().Warn("notification dispatch failed",
					zap.Error(err),
					zap.String("account_id", event.AccountID.String()),
					zap.String("kind", event.Kind),
				)
			}
		}
	}()
}

// LogNotifier is the local notifier implementation; it records the
// event in the structured log.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the event.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	zap.L().Info("notification",
		zap.String("account_id", event.AccountID.String()),
		zap.String("kind", event.Kind),
		zap.String("transaction_id", event.TransactionID.String()),
		zap.Int64("amount_micros", event.AmountMicros),
		zap.String("currency", event.Currency),
	)
	return nil
}
