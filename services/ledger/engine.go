// Package ledger validates, posts and summarises double-entry postings.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/internal/expr"
	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories"
	"github.com/upb/payment-control-plane/services"
	"github.com/upb/payment-control-plane/services/policy"
)

// SettlementPending is the status of a freshly computed settlement summary.
const SettlementPending = "pending"

// Engine posts transactions to accounts. Postings on one engine are
// serialised and applied all-or-nothing.
type Engine struct {
	mu       sync.Mutex
	policy   *policy.Compiled
	accounts repositories.AccountRepository
	journal  repositories.JournalRepository
	txm      repositories.TransactionManager
	logger   *zap.Logger
}

// NewEngine creates a ledger engine over the given stores.
func NewEngine(p *policy.Compiled, accounts repositories.AccountRepository, journal repositories.JournalRepository, txm repositories.TransactionManager, logger *zap.Logger) *Engine {
	return &Engine{
		policy:   p,
		accounts: accounts,
		journal:  journal,
		txm:      txm,
		logger:   logger,
	}
}

func ruleEnv(tx models.TransactionRequest) expr.Env {
	return expr.Env{
		"amount":              expr.Number(tx.AmountFloat()),
		"currency":            expr.String(tx.Currency),
		"source_account":      expr.String(tx.SourceAccount),
		"destination_account": expr.String(tx.DestinationAccount),
	}
}

// Validate runs the ledger rules in order and fails on the first one that
// does not hold.
func (e *Engine) Validate(tx models.TransactionRequest) error {
	env := ruleEnv(tx)
	for _, rule := range e.policy.LedgerRules {
		ok, err := rule.EvalBool(env)
		if err != nil {
			return services.NewDomainError(services.ErrorTypeConfiguration,
				fmt.Sprintf("ledger rule %q failed to evaluate", rule.Source()), err)
		}
		if !ok {
			return services.ErrLedgerRuleFailed.Wrap(fmt.Errorf("Validation failed: %s", rule.Source())).
				WithDetail("rule", rule.Source())
		}
	}
	return nil
}

// resolveAccount maps a template role to the transaction field it names.
// Anything else is a literal account id.
func resolveAccount(role string, tx models.TransactionRequest) string {
	switch role {
	case "source_account":
		return tx.SourceAccount
	case "destination_account":
		return tx.DestinationAccount
	default:
		return role
	}
}

// Post builds one journal entry per posting template.
func (e *Engine) Post(tx models.TransactionRequest) []models.JournalEntry {
	entries := make([]models.JournalEntry, 0, len(e.policy.Ledger.Posting))
	for _, t := range e.policy.Ledger.Posting {
		entries = append(entries, models.NewJournalEntry(tx.CorrelationID, resolveAccount(t.Account, tx), tx.Amount, t.Type))
	}
	return entries
}

// Settle computes the settlement summary for a posted amount.
func (e *Engine) Settle(tx models.TransactionRequest) models.SettlementSummary {
	rules := e.policy.Ledger.Settlement
	fee := tx.Amount.Mul(decimal.NewFromFloat(rules.FeeRate)).Round(2)
	return models.SettlementSummary{
		Currency: tx.Currency,
		Gross:    tx.Amount,
		Fee:      fee,
		Net:      tx.Amount.Sub(fee),
		Mode:     rules.Mode,
		Status:   SettlementPending,
	}
}

// Execute validates tx, posts it and updates account balances. Nothing is
// written when validation or any store operation fails.
func (e *Engine) Execute(ctx context.Context, tx models.TransactionRequest) (*models.LedgerResult, error) {
	if err := e.Validate(tx); err != nil {
		return nil, err
	}

	entries := e.Post(tx)
	if !models.SignedSum(entries).IsZero() {
		return nil, services.ErrInternal.Wrap(errors.New("posting does not balance"))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	err := services.WithTransaction(ctx, e.txm, func(ctx context.Context, _ repositories.Transaction) error {
		// all reads happen before the first write, in id order so that
		// concurrent postings lock shared accounts in the same order
		touched := make(map[string]*models.Account, len(entries))
		for _, entry := range entries {
			touched[entry.AccountID] = nil
		}
		order := make([]string, 0, len(touched))
		for id := range touched {
			order = append(order, id)
		}
		sort.Strings(order)

		for _, id := range order {
			account, err := e.accounts.Get(ctx, id)
			if errors.Is(err, repositories.ErrNotFound) {
				account = models.NewAccount(id, tx.Currency)
			} else if err != nil {
				return fmt.Errorf("failed to load account %s: %w", id, err)
			}
			touched[id] = account
		}

		for _, entry := range entries {
			account := touched[entry.AccountID]
			account.Balance = account.Balance.Add(entry.Signed())
			account.UpdatedAt = entry.Timestamp
		}

		for _, id := range order {
			if err := e.accounts.Put(ctx, touched[id]); err != nil {
				return fmt.Errorf("failed to update account %s: %w", id, err)
			}
		}
		return e.journal.Append(ctx, entries)
	})
	if err != nil {
		return nil, services.WrapTransient("failed to post ledger entries", err)
	}

	e.logger.Debug("ledger posting applied",
		zap.String("correlation_id", tx.CorrelationID),
		zap.Int("entries", len(entries)))

	return &models.LedgerResult{
		Entries:    entries,
		Settlement: e.Settle(tx),
	}, nil
}

// Account returns one ledger account.
func (e *Engine) Account(ctx context.Context, id string) (*models.Account, error) {
	account, err := e.accounts.Get(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, services.ErrAccountNotFound.Wrap(err).WithDetail("account_id", id)
	}
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(err)
	}
	return account, nil
}

// Accounts lists every ledger account.
func (e *Engine) Accounts(ctx context.Context) ([]*models.Account, error) {
	return e.accounts.List(ctx)
}

// Journal returns the entries posted for one transaction.
func (e *Engine) Journal(ctx context.Context, correlationID string) ([]models.JournalEntry, error) {
	return e.journal.ListByCorrelationID(ctx, correlationID)
}
