package models

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// PolicyDomain names one rule set within a policy document.
type PolicyDomain string

const (
	PolicyDomainRouting     PolicyDomain = "routing"
	PolicyDomainCompliance  PolicyDomain = "compliance"
	PolicyDomainLedger      PolicyDomain = "ledger"
	PolicyDomainChain       PolicyDomain = "chain"
	PolicyDomainSpeculative PolicyDomain = "speculative"
)

// PolicyRecord is a stored, versioned policy document.
type PolicyRecord struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Version   string          `json:"version" db:"version"`
	Document  json.RawMessage `json:"document" db:"document"` // JSONB policy document
	Enabled   bool            `json:"enabled" db:"enabled"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the PolicyRecord model
func (PolicyRecord) TableName() string {
	return "policies"
}

// NewPolicyRecord creates a new PolicyRecord instance
func NewPolicyRecord(name, version string, document json.RawMessage) *PolicyRecord {
	return &PolicyRecord{
		ID:        uuid.New(),
		Name:      name,
		Version:   version,
		Document:  document,
		Enabled:   true,
		CreatedAt: time.Now(),
	}
}

// Policy is a parsed policy document. Engines receive it by value and treat
// it as read-only.
type Policy struct {
	Name        string             `json:"name" validate:"required"`
	Version     string             `json:"version"`
	Routing     RoutingPolicy      `json:"routing"`
	Compliance  CompliancePolicy   `json:"compliance"`
	Ledger      LedgerPolicy       `json:"ledger"`
	Chain       ChainPolicy        `json:"chain"`
	Speculative *SpeculativePolicy `json:"speculative,omitempty"`
}

// RoutingPolicy maps merchant categories and countries to provider names.
type RoutingPolicy struct {
	MCC               map[string][]string `json:"mcc"`
	Country           map[string][]string `json:"country"`
	FailoverThreshold float64             `json:"failover_threshold,omitempty" validate:"gte=0"`
	FailoverRisk      float64             `json:"failover_risk,omitempty" validate:"gte=0,lte=100"`
}

// Providers returns every provider name the policy routes to, sorted.
func (p RoutingPolicy) Providers() []string {
	seen := make(map[string]bool)
	for _, lists := range []map[string][]string{p.MCC, p.Country} {
		for _, names := range lists {
			for _, name := range names {
				seen[name] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FailoverScore returns the score under which a primary provider is considered weak.
func (p RoutingPolicy) FailoverScore() float64 {
	if p.FailoverThreshold == 0 {
		return 50
	}
	return p.FailoverThreshold
}

// FailoverRiskOverride returns the risk used when re-querying for a backup provider.
func (p RoutingPolicy) FailoverRiskOverride() float64 {
	if p.FailoverRisk == 0 {
		return 10
	}
	return p.FailoverRisk
}

// CompliancePolicy configures the compliance screener.
type CompliancePolicy struct {
	Velocity VelocityRules `json:"velocity"`
	Anomaly  AnomalyRules  `json:"anomaly"`
	Patterns []string      `json:"patterns"`
}

// VelocityRules are per-minute amount and per-hour count ceilings.
type VelocityRules struct {
	MaxAmountPerMinute     float64 `json:"max_amount_per_minute" validate:"gt=0"`
	MaxTransactionsPerHour int     `json:"max_transactions_per_hour" validate:"gt=0"`
}

// AnomalyRules configures spike detection. MinHistory is the number of past
// transactions required before spikes are checked; zero checks from the first.
type AnomalyRules struct {
	SuddenSpikeThreshold float64 `json:"sudden_spike_threshold" validate:"gt=0"`
	MinHistory           int     `json:"min_history,omitempty" validate:"gte=0"`
}

// LedgerPolicy configures validation, posting and settlement.
type LedgerPolicy struct {
	Validate   []string          `json:"validate"`
	Posting    []PostingTemplate `json:"posting" validate:"min=1,dive"`
	Settlement SettlementRules   `json:"settlement"`
}

// PostingTemplate names an account role (a transaction field such as
// source_account) or a literal account id, and an entry side.
type PostingTemplate struct {
	Account string    `json:"account" validate:"required"`
	Type    EntryType `json:"type" validate:"required,oneof=debit credit"`
}

// SettlementRules drive the ledger settlement summary.
type SettlementRules struct {
	FeeRate float64 `json:"fee_rate" validate:"gte=0,lt=1"`
	Mode    string  `json:"mode,omitempty"`
}

// ChainPolicy configures settlement chain selection.
type ChainPolicy struct {
	HighRiskCountry   string            `json:"high_risk_country" validate:"required"`
	LowFeePreferred   string            `json:"low_fee_preferred" validate:"required"`
	FallbackChain     string            `json:"fallback_chain" validate:"required"`
	HighRiskThreshold float64           `json:"high_risk_threshold,omitempty" validate:"gte=0,lte=100"`
	GasThreshold      float64           `json:"gas_threshold,omitempty" validate:"gte=0"`
	BridgeFallback    map[string]string `json:"bridge_fallback,omitempty"`
}

// RiskThreshold returns the country risk above which the high-risk chain is forced.
func (p ChainPolicy) RiskThreshold() float64 {
	if p.HighRiskThreshold == 0 {
		return 70
	}
	return p.HighRiskThreshold
}

// FeeThreshold returns the fee indicator under which the low-fee chain is used.
func (p ChainPolicy) FeeThreshold() float64 {
	if p.GasThreshold == 0 {
		return 20
	}
	return p.GasThreshold
}

// SpeculativePolicy overrides the speculative evaluator's path set.
type SpeculativePolicy struct {
	Paths []SpeculativePath `json:"paths" validate:"min=1,dive"`
}

// SpeculativePath is a named outcome path with a prior weight.
type SpeculativePath struct {
	Path   string  `json:"path" validate:"required"`
	Weight float64 `json:"weight" validate:"gte=0"`
}
