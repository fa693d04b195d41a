// Package routing ranks payment providers for a transaction by probed
// latency, risk rating and availability.
package routing

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/internal/observability"
	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories"
	"github.com/upb/payment-control-plane/services/providers"
)

// ErrNoCandidate is returned when no configured provider can be scored
var ErrNoCandidate = errors.New("no routing candidate")

// UnavailableLatency is the latency scored for a provider whose probe failed.
const UnavailableLatency = 9999 * time.Millisecond

// Health is the result of probing one provider
type Health struct {
	Status  models.ProviderStatus
	Latency *time.Duration
}

// HealthCheck pings p and measures the wall-clock time of the call.
func HealthCheck(ctx context.Context, p providers.Provider) Health {
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Health{Status: models.ProviderDown}
	}
	latency := time.Since(start)
	return Health{Status: models.ProviderUp, Latency: &latency}
}

// ScoreInput is what a provider is scored on
type ScoreInput struct {
	Latency   time.Duration
	Risk      float64
	Available bool
}

// ScoreProvider starts at 100 and subtracts cumulative penalties for slow,
// risky and unavailable providers.
func ScoreProvider(in ScoreInput) float64 {
	score := 100.0

	if in.Latency > 500*time.Millisecond {
		score -= 20
	}
	if in.Latency > 1000*time.Millisecond {
		score -= 40
	}

	if in.Risk > 70 {
		score -= 30
	}
	if in.Risk > 90 {
		score -= 50
	}

	if !in.Available {
		score -= 100
	}

	return score
}

// Service chooses providers using a routing policy
type Service struct {
	registry  *providers.Registry
	policy    models.RoutingPolicy
	decisions repositories.RouteDecisionRepository
	logger    *zap.Logger
}

// NewService creates a routing service. decisions may be nil.
func NewService(registry *providers.Registry, policy models.RoutingPolicy, decisions repositories.RouteDecisionRepository, logger *zap.Logger) *Service {
	return &Service{
		registry:  registry,
		policy:    policy,
		decisions: decisions,
		logger:    logger,
	}
}

// Candidates returns the providers mapped to the transaction's merchant
// category followed by those mapped to its country, without duplicates.
func (s *Service) Candidates(tx models.TransactionRequest) []string {
	var names []string
	seen := make(map[string]bool)
	for _, list := range [][]string{s.policy.MCC[tx.MCC], s.policy.Country[tx.Country]} {
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// Choose probes every registered candidate and returns the highest scoring
// one. Ties go to the earlier candidate. A risk set on tx replaces each
// provider's own rating.
func (s *Service) Choose(ctx context.Context, tx models.TransactionRequest) (*models.RoutingResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "routing.choose")
	defer span.End()

	var best *models.RoutingResult
	for _, name := range s.Candidates(tx) {
		provider, err := s.registry.GetProvider(name)
		if err != nil {
			s.logger.Debug("routing candidate not registered", zap.String("provider", name))
			continue
		}

		health := HealthCheck(ctx, provider)
		latency := UnavailableLatency
		if health.Latency != nil {
			latency = *health.Latency
		}
		risk := provider.Risk()
		if tx.Risk != nil {
			risk = *tx.Risk
		}

		score := ScoreProvider(ScoreInput{
			Latency:   latency,
			Risk:      risk,
			Available: health.Status == models.ProviderUp,
		})

		s.logger.Debug("provider scored",
			zap.String("correlation_id", tx.CorrelationID),
			zap.String("provider", name),
			zap.String("status", string(health.Status)),
			zap.Duration("latency", latency),
			zap.Float64("risk", risk),
			zap.Float64("score", score))

		if best == nil || score > best.Score {
			best = &models.RoutingResult{
				Provider: name,
				Score:    score,
				Status:   health.Status,
				Latency:  health.Latency,
			}
		}
	}

	if best == nil {
		span.SetStatus(codes.Error, ErrNoCandidate.Error())
		return nil, ErrNoCandidate
	}

	span.SetAttributes(
		attribute.String("routing.provider", best.Provider),
		attribute.Float64("routing.score", best.Score),
	)
	return best, nil
}

// Failover chooses a provider and, when the primary scores under the
// policy's failover threshold, re-queries with a lowered risk. The backup
// is returned if one is found, otherwise the weak primary. The decision log
// is not written; callers Record the choice once the transaction is decided.
func (s *Service) Failover(ctx context.Context, tx models.TransactionRequest) (*models.RoutingResult, error) {
	primary, err := s.Choose(ctx, tx)
	if err != nil {
		return nil, err
	}

	result := primary
	if primary.Score < s.policy.FailoverScore() {
		s.logger.Info("primary provider weak, searching failover",
			zap.String("correlation_id", tx.CorrelationID),
			zap.String("provider", primary.Provider),
			zap.Float64("score", primary.Score))

		backup, err := s.Choose(ctx, tx.WithRisk(s.policy.FailoverRiskOverride()))
		if err == nil {
			backup.Failover = true
			result = backup
		}
	}
	return result, nil
}

// Record appends a routing choice to the decision log. Store failures are
// logged and otherwise ignored.
func (s *Service) Record(ctx context.Context, tx models.TransactionRequest, result *models.RoutingResult) {
	if s.decisions == nil {
		return
	}
	decision := &models.RouteDecision{
		CorrelationID: tx.CorrelationID,
		Provider:      result.Provider,
		Score:         result.Score,
		Failover:      result.Failover,
		Timestamp:     time.Now(),
	}
	if err := s.decisions.Append(ctx, decision); err != nil {
		s.logger.Error("failed to record route decision",
			zap.String("correlation_id", tx.CorrelationID),
			zap.Error(err))
	}
}

// Decisions returns the most recent routing decisions, oldest first.
func (s *Service) Decisions(ctx context.Context, limit int) ([]*models.RouteDecision, error) {
	if s.decisions == nil {
		return nil, nil
	}
	return s.decisions.List(ctx, limit)
}
