// Package reputation supplies recipient risk scores from an external
// reputation collaborator. The provider's internal design is out of
// scope here; the static implementation backs tests and local runs.
package reputation

import (
	"context"

	"github.com/google/uuid"
)

// MaxScore caps a recipient's reputation contribution to the risk total.
const MaxScore = 50

// Provider returns a precomputed risk score (0-50) for an account.
type Provider interface {
	Score(ctx context.Context, accountID uuid.UUID) (int, error)
}

// StaticProvider serves scores from a fixed table, defaulting to zero
// for unknown accounts.
type StaticProvider struct {
	scores map[uuid.UUID]int
}

// NewStaticProvider creates a provider over a fixed score table.
func NewStaticProvider(scores map[uuid.UUID]int) *StaticProvider {
	if scores == nil {
		scores = make(map[uuid.UUID]int)
	}
	return &StaticProvider{scores: scores}
}

// Score returns the configured score clamped to [0, MaxScore].
func (p *StaticProvider) Score(ctx context.Context, accountID uuid.UUID) (int, error) {
	score := p.scores[accountID]
	if score < 0 {
		score = 0
	}
	if score > MaxScore {
		score = MaxScore
	}
	return score, nil
}
