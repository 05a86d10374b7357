package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kudzimusar/stolen-pay/internal/domain"
	"github.com/kudzimusar/stolen-pay/internal/geo"
	"github.com/kudzimusar/stolen-pay/internal/models"
	"github.com/kudzimusar/stolen-pay/internal/reputation"
	"go.uber.org/zap"
)

// Rule weights. Each rule independently adds to the score; several may
// fire on one request.
const (
	weightHighAmount      = 30 // amount > 10 000
	weightVeryHighAmount  = 50 // amount > 50 000, on top of weightHighAmount
	weightThinHistory     = 15 // fewer than 5 prior transactions
	weightAvgDeviation    = 25 // amount > 10x personal average
	weightVelocityAmount  = 40 // trailing-24h sum + amount > 25 000
	weightVelocityCount   = 20 // more than 10 transactions in 24h
	weightHighRiskCountry = 35
	weightLocationJump    = 25 // > 1000 km from last known location
	weightNewDevice       = 20
	weightOffHours        = 15 // before 06:00 or after 23:00
	weightSystemError     = 100

	highAmountMicros     = 10_000 * 1_000_000
	veryHighAmountMicros = 50_000 * 1_000_000
	velocitySumMicros    = 25_000 * 1_000_000
	velocityCountMax     = 10
	avgDeviationFactor   = 10
	locationJumpKm       = 1000.0
	recipientTriggerMin  = 30
)

// RiskScorer aggregates weighted fraud signals into a score, tier, and
// recommended action. Read-only against account history; every
// assessment is persisted to the append-only audit log.
type RiskScorer struct {
	store             Store
	reputation        reputation.Provider
	highRiskCountries map[string]struct{}
	now               func() time.Time
}

// NewRiskScorer creates a scorer over the given store and reputation
// provider. highRiskCountries holds upper-case ISO 3166-1 alpha-2 codes.
func NewRiskScorer(store Store, rep reputation.Provider, highRiskCountries []string) *RiskScorer {
	set := make(map[string]struct{}, len(highRiskCountries))
	for _, c := range highRiskCountries {
		set[c] = struct{}{}
	}
	return &RiskScorer{
		store:             store,
		reputation:        rep,
		highRiskCountries: set,
		now:               time.Now,
	}
}

// WithClock overrides the time source.
func (s *RiskScorer) WithClock(now func() time.Time) *RiskScorer {
	s.now = now
	return s
}

// Assess scores the request and persists the assessment. It never
// returns an error: internal failures produce a fail-closed critical
// assessment rather than a silent approval.
func (s *RiskScorer) Assess(ctx context.Context, req models.TransferRequest, recipientID uuid.UUID) models.RiskAssessment {
	assessment, err := s.score(ctx, req, recipientID)
	if err != nil {
		zap.L().Error("risk scoring failed; failing closed",
			zap.Error(err),
			zap.String("account_id", req.SenderAccountID.String()),
		)
		assessment = failClosed(err)
	}

	record := &models.RiskAuditRecord{
		AccountID:    req.SenderAccountID,
		AmountMicros: req.AmountMicros,
		Assessment:   assessment,
		CreatedAt:    s.now(),
	}
	if auditErr := s.store.AppendRiskAudit(ctx, record); auditErr != nil {
		zap.L().Error("risk audit write failed; failing closed",
			zap.Error(auditErr),
			zap.String("account_id", req.SenderAccountID.String()),
		)
		// An unauditable assessment is treated like any other internal
		// failure: block rather than approve.
		return failClosed(auditErr)
	}

	return assessment
}

func (s *RiskScorer) score(ctx context.Context, req models.TransferRequest, recipientID uuid.UUID) (models.RiskAssessment, error) {
	history, err := s.store.AccountHistory(ctx, req.SenderAccountID)
	if err != nil {
		return models.RiskAssessment{}, fmt.Errorf("load account history: %w", err)
	}
	recent, err := s.store.RecentActivity(ctx, req.SenderAccountID, s.now().Add(-24*time.Hour))
	if err != nil {
		return models.RiskAssessment{}, fmt.Errorf("load recent activity: %w", err)
	}
	repScore, err := s.reputation.Score(ctx, recipientID)
	if err != nil {
		return models.RiskAssessment{}, fmt.Errorf("load recipient reputation: %w", err)
	}

	score := 0
	var triggers []string
	hit := func(weight int, trigger string) {
		score += weight
		triggers = append(triggers, trigger)
	}

	// 1. Amount thresholds; the very-high rule stacks on the high rule.
	if req.AmountMicros > highAmountMicros {
		hit(weightHighAmount, "amount exceeds high-value threshold")
	}
	if req.AmountMicros > veryHighAmountMicros {
		hit(weightVeryHighAmount, "amount exceeds very-high-value threshold")
	}

	// 2. History thinness.
	if history.PriorTransactions < 5 {
		hit(weightThinHistory, "account has fewer than 5 prior transactions")
	}

	// 3. Deviation from the personal average. Skipped for accounts with
	// no prior transactions (no average to deviate from).
	if history.PriorTransactions > 0 && history.AverageMicros > 0 &&
		req.AmountMicros > avgDeviationFactor*history.AverageMicros {
		hit(weightAvgDeviation, "amount exceeds 10x account average")
	}

	// 4. Velocity over the trailing 24 hours.
	if recent.SumMicros+req.AmountMicros > velocitySumMicros {
		hit(weightVelocityAmount, "24h spend velocity exceeded")
	}
	if recent.Count > velocityCountMax {
		hit(weightVelocityCount, "24h transaction count exceeded")
	}

	// 5. Geography.
	if req.Country != "" {
		if _, risky := s.highRiskCountries[req.Country]; risky {
			hit(weightHighRiskCountry, "request from high-risk country")
		}
	}
	if req.Location != nil && history.LastKnownLocation != nil {
		if geo.DistanceKm(*req.Location, *history.LastKnownLocation) > locationJumpKm {
			hit(weightLocationJump, "location far from last known location")
		}
	}

	// 6. Device novelty.
	if req.DeviceFingerprint != "" && !history.HasFingerprint(req.DeviceFingerprint) {
		hit(weightNewDevice, "unrecognized device fingerprint")
	}

	// 7. Time of day.
	if hour := s.now().Hour(); hour < 6 || hour >= 23 {
		hit(weightOffHours, "transfer outside normal hours")
	}

	// 8. Recipient reputation contributes its precomputed score directly.
	if repScore > 0 {
		score += repScore
		if repScore > recipientTriggerMin {
			triggers = append(triggers, "high-risk recipient")
		}
	}

	return tiered(score, triggers), nil
}

// tiered maps an aggregate score to its tier and recommended action.
func tiered(score int, triggers []string) models.RiskAssessment {
	a := models.RiskAssessment{Score: score, Triggers: triggers}
	switch {
	case score <= 30:
		a.Level = domain.RiskLevelLow
		a.RecommendedAction = domain.ActionApprove
	case score <= 50:
		a.Level = domain.RiskLevelMedium
		a.RecommendedAction = domain.ActionReview
		a.RequiresManualReview = true
	case score <= 80:
		a.Level = domain.RiskLevelHigh
		a.RecommendedAction = domain.ActionReview
		a.RequiresManualReview = true
	default:
		a.Level = domain.RiskLevelCritical
		a.RecommendedAction = domain.ActionBlock
		a.RequiresManualReview = true
		a.BlockedReason = "aggregate risk score above critical threshold"
	}
	return a
}

func failClosed(err error) models.RiskAssessment {
	return models.RiskAssessment{
		Score:                weightSystemError,
		Level:                domain.RiskLevelCritical,
		Triggers:             []string{fmt.Sprintf("risk system error: %v", err)},
		RecommendedAction:    domain.ActionBlock,
		RequiresManualReview: true,
		BlockedReason:        "risk assessment unavailable",
	}
}
