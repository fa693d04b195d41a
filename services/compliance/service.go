// Package compliance screens transactions for velocity breaches, amount
// spikes and policy pattern matches. Its verdict is advisory.
package compliance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/internal/expr"
	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/services"
	"github.com/upb/payment-control-plane/services/policy"
)

// Issue descriptions reported in a FLAGGED result.
const (
	IssueAmountPerMinute = "Velocity breach: amount per minute exceeded"
	IssueCountPerHour    = "Velocity breach: too many transactions per hour"
	IssueSuddenSpike     = "Anomaly detected: sudden spike in transaction amount"
	patternIssuePrefix   = "Pattern match triggered: "
)

// HistorySource supplies past transactions, oldest first.
type HistorySource interface {
	List(ctx context.Context, limit int) ([]*models.HistoryEntry, error)
}

// VelocityCheck flags the amount sent in the trailing minute, counting the
// current transaction, exceeding the per-minute ceiling, or else the
// trailing hour's transaction count doing the same. It returns "" when
// neither is breached.
func VelocityCheck(rules models.VelocityRules, history []*models.HistoryEntry, tx models.TransactionRequest, now time.Time) string {
	minuteTotal := 0.0
	hourCount := 0
	for _, h := range history {
		age := now.Sub(h.Timestamp)
		if age < time.Minute {
			minuteTotal += h.Amount.InexactFloat64()
		}
		if age < time.Hour {
			hourCount++
		}
	}

	if minuteTotal+tx.AmountFloat() > rules.MaxAmountPerMinute {
		return IssueAmountPerMinute
	}
	if hourCount+1 > rules.MaxTransactionsPerHour {
		return IssueCountPerHour
	}
	return ""
}

// AnomalyCheck flags an amount at or above threshold times the history's
// mean amount. An empty or zero-mean history counts as a mean of 1. Nothing
// is flagged while the history is shorter than rules.MinHistory.
func AnomalyCheck(rules models.AnomalyRules, history []*models.HistoryEntry, tx models.TransactionRequest) string {
	if len(history) < rules.MinHistory {
		return ""
	}

	mean := 0.0
	if len(history) > 0 {
		total := 0.0
		for _, h := range history {
			total += h.Amount.InexactFloat64()
		}
		mean = total / float64(len(history))
	}
	if mean == 0 {
		mean = 1
	}

	if tx.AmountFloat()/mean >= rules.SuddenSpikeThreshold {
		return IssueSuddenSpike
	}
	return ""
}

// PatternCheck evaluates every pattern against the transaction and returns
// an issue per match, in policy order.
func PatternCheck(patterns []*expr.Program, tx models.TransactionRequest) ([]string, error) {
	env := expr.Env{
		"amount":   expr.Number(tx.AmountFloat()),
		"country":  expr.String(tx.Country),
		"currency": expr.String(tx.Currency),
	}

	var issues []string
	for _, p := range patterns {
		matched, err := p.EvalBool(env)
		if err != nil {
			return nil, services.NewDomainError(services.ErrorTypeConfiguration,
				fmt.Sprintf("pattern %q failed to evaluate", p.Source()), err)
		}
		if matched {
			issues = append(issues, patternIssuePrefix+p.Source())
		}
	}
	return issues, nil
}

// Evaluate runs the velocity, anomaly and pattern checks in that order.
// The result is CLEAR iff no check flags.
func Evaluate(p *policy.Compiled, history []*models.HistoryEntry, tx models.TransactionRequest, now time.Time) (*models.ComplianceResult, error) {
	var issues []string

	if issue := VelocityCheck(p.Compliance.Velocity, history, tx, now); issue != "" {
		issues = append(issues, issue)
	}
	if issue := AnomalyCheck(p.Compliance.Anomaly, history, tx); issue != "" {
		issues = append(issues, issue)
	}
	matches, err := PatternCheck(p.Patterns, tx)
	if err != nil {
		return nil, err
	}
	issues = append(issues, matches...)

	if len(issues) == 0 {
		return &models.ComplianceResult{Status: models.ComplianceClear}, nil
	}
	return &models.ComplianceResult{Status: models.ComplianceFlagged, Issues: issues}, nil
}

// Service screens transactions against stored history
type Service struct {
	policy  *policy.Compiled
	history HistorySource
	limit   int
	now     func() time.Time
	logger  *zap.Logger
}

// NewService creates a compliance service reading at most historyLimit
// past transactions. history may be nil for an empty history.
func NewService(p *policy.Compiled, history HistorySource, historyLimit int, logger *zap.Logger) *Service {
	return &Service{
		policy:  p,
		history: history,
		limit:   historyLimit,
		now:     time.Now,
		logger:  logger,
	}
}

// Evaluate screens tx against the policy and the recent history.
func (s *Service) Evaluate(ctx context.Context, tx models.TransactionRequest) (*models.ComplianceResult, error) {
	var history []*models.HistoryEntry
	if s.history != nil {
		var err error
		history, err = s.history.List(ctx, s.limit)
		if err != nil {
			return nil, services.WrapTransient("failed to load transaction history", err)
		}
	}

	result, err := Evaluate(s.policy, history, tx, s.now())
	if err != nil {
		return nil, err
	}

	if result.Status == models.ComplianceFlagged {
		s.logger.Info("transaction flagged",
			zap.String("correlation_id", tx.CorrelationID),
			zap.Strings("issues", result.Issues))
	}
	return result, nil
}
