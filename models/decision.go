package models

import (
	"time"
)

// ProviderStatus is the outcome of a provider health probe.
type ProviderStatus string

const (
	ProviderUp   ProviderStatus = "UP"
	ProviderDown ProviderStatus = "DOWN"
)

// RoutingResult is the winning provider candidate.
type RoutingResult struct {
	Provider string         `json:"provider"`
	Score    float64        `json:"score"`
	Status   ProviderStatus `json:"status"`
	Latency  *time.Duration `json:"latency,omitempty"`
	Failover bool           `json:"failover,omitempty"`
}

// ComplianceStatus is the verdict of the compliance screener.
type ComplianceStatus string

const (
	ComplianceClear   ComplianceStatus = "CLEAR"
	ComplianceFlagged ComplianceStatus = "FLAGGED"
)

// ComplianceResult lists triggered issues in check order.
type ComplianceResult struct {
	Status ComplianceStatus `json:"status"`
	Issues []string         `json:"issues,omitempty"`
	Score  *float64         `json:"score,omitempty"`
}

// Decision is the fused authorization outcome.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReview  Decision = "REVIEW"
	DecisionDecline Decision = "DECLINE"
)

// DecisionContext is built once per request and is not mutated after fusion.
type DecisionContext struct {
	Timestamp   time.Time          `json:"timestamp"`
	Transaction TransactionRequest `json:"transaction"`
	Routing     *RoutingResult     `json:"routing,omitempty"`
	Compliance  *ComplianceResult  `json:"compliance,omitempty"`
	Ledger      *LedgerResult      `json:"ledger,omitempty"`
	RiskScore   *float64           `json:"risk_score,omitempty"`
	ChainScore  *float64           `json:"chain_score,omitempty"`
	NeuralScore float64            `json:"neural_score"`
}

// FusionOutcome is the result of a fused decision.
type FusionOutcome struct {
	Context  DecisionContext `json:"context"`
	Decision Decision        `json:"decision"`
	Reason   string          `json:"reason"`
}

// QuantumState is one evaluated speculative path.
type QuantumState struct {
	Path       string  `json:"path"`
	Weight     float64 `json:"weight"`
	FinalScore float64 `json:"final_score"`
}

// RouteDecision records which provider routing selected for a request.
type RouteDecision struct {
	CorrelationID string    `json:"correlation_id" db:"correlation_id"`
	Provider      string    `json:"provider" db:"provider"`
	Score         float64   `json:"score" db:"score"`
	Failover      bool      `json:"failover" db:"failover"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the RouteDecision model
func (RouteDecision) TableName() string {
	return "route_decisions"
}
