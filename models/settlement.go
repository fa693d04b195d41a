package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settlement submission statuses.
const (
	SettlementSubmitted = "submitted"
	SettlementRejected  = "rejected"
	SettlementFailed    = "failed"
)

// SettlementTx is the transaction submitted to a settlement chain.
type SettlementTx struct {
	Chain  string          `json:"chain"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	Nonce  int64           `json:"nonce"`
}

// SettlementRecord is the result of one submission attempt. A fallback
// attempt produces a second record.
type SettlementRecord struct {
	SettlementTx
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Submitted reports whether the chain accepted the transaction.
func (r SettlementRecord) Submitted() bool {
	return r.Status == SettlementSubmitted
}
