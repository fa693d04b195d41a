// Package fusion combines routing, compliance and ledger results into a
// single authorization decision.
package fusion

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/internal/observability"
	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/services/routing"
)

// Score thresholds for the fused decision.
const (
	ApproveScore = 80
	ReviewScore  = 40

	largeAmount = 10000
)

// Router picks a provider for a transaction and logs the pick once the
// transaction is decided.
type Router interface {
	Failover(ctx context.Context, tx models.TransactionRequest) (*models.RoutingResult, error)
	Record(ctx context.Context, tx models.TransactionRequest, result *models.RoutingResult)
}

// Screener produces the compliance verdict for a transaction.
type Screener interface {
	Evaluate(ctx context.Context, tx models.TransactionRequest) (*models.ComplianceResult, error)
}

// Poster validates and posts a transaction to the ledger.
type Poster interface {
	Execute(ctx context.Context, tx models.TransactionRequest) (*models.LedgerResult, error)
}

// NeuralScore sums the weighted signals of a decision context.
func NeuralScore(dc models.DecisionContext) float64 {
	score := 0.0

	if dc.Routing != nil {
		score += dc.Routing.Score
	}

	if dc.Compliance != nil {
		switch dc.Compliance.Status {
		case models.ComplianceClear:
			score += 50
		case models.ComplianceFlagged:
			score -= 100
		}
	}

	if dc.Ledger != nil && len(dc.Ledger.Entries) == 2 {
		score += 30
	} else {
		score -= 50
	}

	if dc.Transaction.AmountFloat() > largeAmount {
		score -= 20
	}

	return score
}

// Fuse maps a neural score to a decision and its reason.
func Fuse(score float64) (models.Decision, string) {
	switch {
	case score >= ApproveScore:
		return models.DecisionApprove, "High neural confidence"
	case score >= ReviewScore:
		return models.DecisionReview, "Medium confidence, manual check suggested"
	default:
		return models.DecisionDecline, "Low neural confidence"
	}
}

// Engine runs routing, compliance and ledger in that order and fuses them.
type Engine struct {
	router   Router
	screener Screener
	poster   Poster
	logger   *zap.Logger
}

// NewEngine creates a fusion engine.
func NewEngine(router Router, screener Screener, poster Poster, logger *zap.Logger) *Engine {
	return &Engine{
		router:   router,
		screener: screener,
		poster:   poster,
		logger:   logger,
	}
}

// Execute builds the decision context for tx and fuses it. A missing
// routing candidate is scored as zero. Compliance and ledger errors,
// including ledger validation failures, are returned to the caller.
func (e *Engine) Execute(ctx context.Context, tx models.TransactionRequest) (*models.FusionOutcome, error) {
	ctx, span := observability.Tracer().Start(ctx, "fusion.execute")
	defer span.End()

	dc := models.DecisionContext{
		Timestamp:   time.Now(),
		Transaction: tx,
	}

	routed, err := e.router.Failover(ctx, tx)
	switch {
	case errors.Is(err, routing.ErrNoCandidate):
		e.logger.Warn("no routing candidate", zap.String("correlation_id", tx.CorrelationID))
	case err != nil:
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	default:
		dc.Routing = routed
	}

	dc.Compliance, err = e.screener.Evaluate(ctx, tx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	dc.Ledger, err = e.poster.Execute(ctx, tx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	dc.NeuralScore = NeuralScore(dc)
	decision, reason := Fuse(dc.NeuralScore)
	if dc.Routing != nil {
		e.router.Record(ctx, tx, dc.Routing)
	}

	span.SetAttributes(
		attribute.String("fusion.decision", string(decision)),
		attribute.Float64("fusion.neural_score", dc.NeuralScore),
	)
	e.logger.Info("transaction decided",
		zap.String("correlation_id", tx.CorrelationID),
		zap.String("decision", string(decision)),
		zap.Float64("neural_score", dc.NeuralScore))

	return &models.FusionOutcome{
		Context:  dc,
		Decision: decision,
		Reason:   reason,
	}, nil
}
