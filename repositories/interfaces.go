package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/upb/payment-control-plane/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// TransactionManager begins storage transactions
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction represents a storage transaction
type Transaction interface {
	Commit() error
	Rollback() error
}

type transactionContextKey struct{}

// ContextWithTransaction returns a context carrying tx. Repositories that
// support transactions execute against it when present.
func ContextWithTransaction(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, transactionContextKey{}, tx)
}

// TransactionFromContext retrieves a transaction from the context if available
func TransactionFromContext(ctx context.Context) (Transaction, bool) {
	tx, ok := ctx.Value(transactionContextKey{}).(Transaction)
	return tx, ok
}

// AccountRepository handles ledger account data operations
type AccountRepository interface {
	// Get retrieves an account by ID, returning ErrNotFound when absent.
	// Inside a transaction the account stays locked until it ends, whether
	// or not it exists yet.
	Get(ctx context.Context, id string) (*models.Account, error)

	// Put creates or replaces an account
	Put(ctx context.Context, account *models.Account) error

	// List retrieves all accounts ordered by ID
	List(ctx context.Context) ([]*models.Account, error)
}

// JournalRepository stores posted journal entries. Entries are append-only.
type JournalRepository interface {
	// Append stores entries in order
	Append(ctx context.Context, entries []models.JournalEntry) error

	// ListByCorrelationID retrieves the entries posted for one transaction
	ListByCorrelationID(ctx context.Context, correlationID string) ([]models.JournalEntry, error)

	// List retrieves the most recent entries, newest last
	List(ctx context.Context, limit int) ([]models.JournalEntry, error)
}

// HistoryRepository stores the transaction history used by compliance screening.
type HistoryRepository interface {
	// Append records an authorized transaction
	Append(ctx context.Context, entry *models.HistoryEntry) error

	// List retrieves the most recent entries, oldest first
	List(ctx context.Context, limit int) ([]*models.HistoryEntry, error)

	// Since retrieves entries recorded at or after t, oldest first
	Since(ctx context.Context, t time.Time) ([]*models.HistoryEntry, error)
}

// RouteDecisionRepository stores routing decisions.
type RouteDecisionRepository interface {
	// Append records a routing decision
	Append(ctx context.Context, decision *models.RouteDecision) error

	// List retrieves the most recent decisions, oldest first
	List(ctx context.Context, limit int) ([]*models.RouteDecision, error)
}

// PolicyRepository handles policy document storage
type PolicyRepository interface {
	// Create stores a new policy version
	Create(ctx context.Context, policy *models.PolicyRecord) error

	// GetByName retrieves the newest enabled version of a named policy
	GetByName(ctx context.Context, name string) (*models.PolicyRecord, error)

	// List retrieves all policy records
	List(ctx context.Context) ([]*models.PolicyRecord, error)
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByCorrelationID retrieves the audit trail of one transaction
	GetByCorrelationID(ctx context.Context, correlationID string) ([]*models.AuditLog, error)

	// GetByAction retrieves audit logs by action type with pagination
	GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error)
}

// DeadLetterRepository stores events that exhausted recovery.
type DeadLetterRepository interface {
	// Insert records a dead letter
	Insert(ctx context.Context, letter *models.DeadLetter) error

	// List retrieves dead letters, oldest first
	List(ctx context.Context) ([]*models.DeadLetter, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Accounts       AccountRepository
	Journal        JournalRepository
	History        HistoryRepository
	RouteDecisions RouteDecisionRepository
	Policies       PolicyRepository
	AuditLogs      AuditRepository
	DeadLetters    DeadLetterRepository
}
