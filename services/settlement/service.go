// Package settlement selects a settlement chain and submits to it, with a
// single bridge fallback on failure.
package settlement

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/internal/observability"
	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/services"
)

var defaultBridges = map[string]string{"solana": "ethereum"}

// Service settles approved transactions on a chain.
type Service struct {
	policy    models.ChainPolicy
	fees      FeeProbe
	submitter Submitter
	logger    *zap.Logger
}

// NewService creates a settlement service.
func NewService(policy models.ChainPolicy, fees FeeProbe, submitter Submitter, logger *zap.Logger) *Service {
	return &Service{
		policy:    policy,
		fees:      fees,
		submitter: submitter,
		logger:    logger,
	}
}

// ChooseChain picks the high-risk chain for risky countries, the low-fee
// chain while its fee is under the threshold, and the fallback chain
// otherwise. A failed fee probe counts as expensive.
func (s *Service) ChooseChain(ctx context.Context, tx models.TransactionRequest) string {
	if tx.CountryRisk > s.policy.RiskThreshold() {
		return s.policy.HighRiskCountry
	}

	fee, err := s.fees.Fee(ctx, s.policy.LowFeePreferred)
	if err != nil {
		s.logger.Warn("fee probe failed",
			zap.String("chain", s.policy.LowFeePreferred),
			zap.Error(err))
		return s.policy.FallbackChain
	}
	if fee < s.policy.FeeThreshold() {
		return s.policy.LowFeePreferred
	}
	return s.policy.FallbackChain
}

// BridgeFallback returns the chain to retry on after chain fails.
func (s *Service) BridgeFallback(chain string) string {
	bridges := s.policy.BridgeFallback
	if bridges == nil {
		bridges = defaultBridges
	}
	if next, ok := bridges[chain]; ok {
		return next
	}
	return s.policy.FallbackChain
}

// BuildTx builds the settlement transaction for chain.
func BuildTx(chain string, tx models.TransactionRequest) models.SettlementTx {
	return models.SettlementTx{
		Chain:  chain,
		From:   tx.SourceAccount,
		To:     tx.DestinationAccount,
		Amount: tx.Amount,
		Nonce:  time.Now().UnixNano(),
	}
}

func (s *Service) submit(ctx context.Context, chain string, tx models.TransactionRequest) models.SettlementRecord {
	record := models.SettlementRecord{SettlementTx: BuildTx(chain, tx)}

	status, err := s.submitter.Submit(ctx, record.SettlementTx)
	record.SubmittedAt = time.Now()
	switch {
	case err != nil:
		record.Status = models.SettlementFailed
		record.Error = err.Error()
	case status == "":
		record.Status = models.SettlementFailed
		record.Error = "empty status"
	default:
		record.Status = status
	}
	return record
}

// Settle submits tx to the chosen chain, resubmitting exactly once on the
// bridge fallback when the first attempt is not accepted. Every attempt is
// returned; the last record is the outcome. A final rejection is a
// settlement_rejected error, a final transport failure a transient one.
func (s *Service) Settle(ctx context.Context, tx models.TransactionRequest) ([]models.SettlementRecord, error) {
	ctx, span := observability.Tracer().Start(ctx, "settlement.settle")
	defer span.End()

	chain := s.ChooseChain(ctx, tx)
	records := []models.SettlementRecord{s.submit(ctx, chain, tx)}

	if !records[0].Submitted() {
		fallback := s.BridgeFallback(chain)
		s.logger.Warn("settlement not accepted, bridging",
			zap.String("correlation_id", tx.CorrelationID),
			zap.String("chain", chain),
			zap.String("status", records[0].Status),
			zap.String("fallback", fallback))
		records = append(records, s.submit(ctx, fallback, tx))
	}

	final := records[len(records)-1]
	span.SetAttributes(
		attribute.String("settlement.chain", final.Chain),
		attribute.String("settlement.status", final.Status),
		attribute.Int("settlement.attempts", len(records)),
	)

	switch final.Status {
	case models.SettlementSubmitted:
		s.logger.Info("settlement submitted",
			zap.String("correlation_id", tx.CorrelationID),
			zap.String("chain", final.Chain))
		return records, nil
	case models.SettlementFailed:
		span.SetStatus(codes.Error, final.Error)
		return records, services.ErrSubmissionFailed.Wrap(fmt.Errorf("%s: %s", final.Chain, final.Error)).
			WithDetail("chain", final.Chain)
	default:
		span.SetStatus(codes.Error, final.Status)
		return records, services.ErrSettlementRejected.Wrap(fmt.Errorf("%s on %s", final.Status, final.Chain)).
			WithDetail("chain", final.Chain)
	}
}
