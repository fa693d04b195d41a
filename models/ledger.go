package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType is the side of a journal entry.
type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// JournalEntry is one immutable line of a double-entry posting.
type JournalEntry struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	CorrelationID string          `json:"correlation_id" db:"correlation_id"`
	AccountID     string          `json:"account" db:"account_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Type          EntryType       `json:"type" db:"entry_type"`
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
	Immutable     bool            `json:"immutable" db:"-"`
}

// TableName returns the table name for the JournalEntry model
func (JournalEntry) TableName() string {
	return "journal_entries"
}

// NewJournalEntry creates an immutable journal entry.
func NewJournalEntry(correlationID, accountID string, amount decimal.Decimal, entryType EntryType) JournalEntry {
	return JournalEntry{
		ID:            uuid.New(),
		CorrelationID: correlationID,
		AccountID:     accountID,
		Amount:        amount,
		Type:          entryType,
		Timestamp:     time.Now(),
		Immutable:     true,
	}
}

// Signed returns the amount with debits negative and credits positive.
func (e JournalEntry) Signed() decimal.Decimal {
	if e.Type == EntryTypeDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// SignedSum totals the signed amounts of a posting.
func SignedSum(entries []JournalEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Signed())
	}
	return sum
}

// Account is a ledger account. Its balance changes only through postings.
type Account struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Currency  string          `json:"currency" db:"currency"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Account model
func (Account) TableName() string {
	return "accounts"
}

// NewAccount creates an account with a zero balance.
func NewAccount(id, currency string) *Account {
	now := time.Now()
	return &Account{
		ID:        id,
		Name:      id,
		Currency:  currency,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SettlementSummary is the ledger-side settlement computation for a posting.
type SettlementSummary struct {
	Currency string          `json:"currency"`
	Gross    decimal.Decimal `json:"gross"`
	Fee      decimal.Decimal `json:"fee"`
	Net      decimal.Decimal `json:"net"`
	Mode     string          `json:"mode"`
	Status   string          `json:"status"`
}

// LedgerResult is returned by a successful ledger execution.
type LedgerResult struct {
	Entries    []JournalEntry    `json:"entries"`
	Settlement SettlementSummary `json:"settlement"`
	Score      *float64          `json:"score,omitempty"`
}
