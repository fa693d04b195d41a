package memory

import (
	"context"

	"github.com/upb/payment-control-plane/repositories"
)

// TransactionManager satisfies repositories.TransactionManager for the
// in-memory store. Writes apply immediately; callers that need atomicity
// across repositories serialize through their own locks.
type TransactionManager struct{}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager() repositories.TransactionManager {
	return TransactionManager{}
}

func (TransactionManager) Begin(context.Context) (repositories.Transaction, error) {
	return Transaction{}, nil
}

// Transaction is a no-op transaction handle.
type Transaction struct{}

func (Transaction) Commit() error   { return nil }
func (Transaction) Rollback() error { return nil }
