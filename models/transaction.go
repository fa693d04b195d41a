package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionRequest is an inbound payment authorization request.
// It is treated as immutable once accepted into the pipeline.
type TransactionRequest struct {
	CorrelationID      string          `json:"correlation_id,omitempty"`
	Amount             decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Currency           string          `json:"currency" validate:"required,iso4217"`
	Country            string          `json:"country,omitempty" validate:"omitempty,region"`
	MCC                string          `json:"mcc,omitempty" validate:"omitempty,numeric,len=4"`
	SourceAccount      string          `json:"source_account" validate:"required,max=128"`
	DestinationAccount string          `json:"destination_account" validate:"required,max=128,nefield=SourceAccount"`

	// CountryRisk is the 0-100 risk rating of the originating country, used by chain selection.
	CountryRisk float64 `json:"country_risk,omitempty" validate:"gte=0,lte=100"`

	// Risk overrides every candidate provider's risk rating during routing.
	Risk *float64 `json:"risk,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// AmountFloat returns the amount as a float64 for scoring and rule evaluation.
func (t TransactionRequest) AmountFloat() float64 {
	return t.Amount.InexactFloat64()
}

// WithRisk returns a copy of the request with the routing risk override set.
func (t TransactionRequest) WithRisk(risk float64) TransactionRequest {
	t.Risk = &risk
	return t
}

// EnsureCorrelation returns a copy of the request carrying a correlation id,
// generating one when the caller did not supply it.
func (t TransactionRequest) EnsureCorrelation() TransactionRequest {
	if t.CorrelationID == "" {
		t.CorrelationID = uuid.NewString()
	}
	return t
}

// HistoryEntry is a past transaction used by compliance velocity and anomaly checks.
type HistoryEntry struct {
	CorrelationID string          `json:"correlation_id" db:"correlation_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Currency      string          `json:"currency" db:"currency"`
	Country       string          `json:"country" db:"country"`
	Decision      Decision        `json:"decision" db:"decision"`
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the HistoryEntry model
func (HistoryEntry) TableName() string {
	return "transaction_history"
}

// NewHistoryEntry records a decided request as history.
func NewHistoryEntry(tx TransactionRequest, decision Decision) *HistoryEntry {
	return &HistoryEntry{
		CorrelationID: tx.CorrelationID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Country:       tx.Country,
		Decision:      decision,
		Timestamp:     time.Now(),
	}
}
