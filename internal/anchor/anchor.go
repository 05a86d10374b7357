package anchor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/kudzimusar/stolen-pay/internal/models"
)

// Anchorer records a committed transaction reference in an external
// immutable store. Anchoring is best-effort: a failure never rolls back
// the already-committed transfer.
type Anchorer interface {
	// Anchor returns an external reference hash for the transaction.
	Anchor(ctx context.Context, tx *models.Transaction) (string, error)
}

// MockAnchorer simulates the external anchoring service. It introduces
// a short random delay and fails a configurable fraction of calls.
type MockAnchorer struct {
	// FailureRate is the probability of failure (0.0 to 1.0).
	FailureRate float64
}

// NewMockAnchorer creates an anchorer with a 10% failure rate.
func NewMockAnchorer() *MockAnchorer {
	return &MockAnchorer{FailureRate: 0.1}
}

// Anchor simulates anchoring with 50-250ms of latency. It respects
// context cancellation so the orchestrator's timeout bounds the call.
func (a *MockAnchorer) Anchor(ctx context.Context, tx *models.Transaction) (string, error) {
	delay := time.Duration(50+rand.Intn(200)) * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", fmt.Errorf("anchor call canceled: %w", ctx.Err())
	}

	if rand.Float64() < a.FailureRate {
		return "", fmt.Errorf("anchor service temporarily unavailable")
	}

	ref := fmt.Sprintf("ANCHOR-%s-%05d", time.Now().Format("20060102-150405"), rand.Intn(100000))
	return ref, nil
}
