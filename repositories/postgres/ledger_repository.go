package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories"
)

// AccountRepository implements the repositories.AccountRepository interface
type AccountRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB, logger *zap.Logger) repositories.AccountRepository {
	return &AccountRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves an account by ID. Inside a transaction it first takes a
// transaction-scoped advisory lock on the id, so concurrent postings to the
// same account serialize even before its row exists, and then reads the row
// FOR UPDATE.
func (r *AccountRepository) Get(ctx context.Context, id string) (*models.Account, error) {
	query := `
		SELECT id, name, currency, balance, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	var executor Executor = r.db.DB
	if tx, ok := txFromContext(ctx); ok {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id); err != nil {
			return nil, fmt.Errorf("failed to lock account: %w", err)
		}
		query += "FOR UPDATE"
		executor = tx
	}

	account := &models.Account{}
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&account.Name,
		&account.Currency,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// Put creates or replaces an account
func (r *AccountRepository) Put(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (id, name, currency, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    currency = EXCLUDED.currency,
		    balance = EXCLUDED.balance,
		    updated_at = EXCLUDED.updated_at
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		account.ID,
		account.Name,
		account.Currency,
		account.Balance,
		account.CreatedAt,
		account.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to put account: %w", err)
	}

	r.logger.Debug("account stored", zap.String("id", account.ID))
	return nil
}

// List retrieves all accounts ordered by ID
func (r *AccountRepository) List(ctx context.Context) ([]*models.Account, error) {
	query := `
		SELECT id, name, currency, balance, created_at, updated_at
		FROM accounts
		ORDER BY id
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account := &models.Account{}
		if err := rows.Scan(
			&account.ID,
			&account.Name,
			&account.Currency,
			&account.Balance,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}

	return accounts, nil
}

// JournalRepository implements the repositories.JournalRepository interface
type JournalRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewJournalRepository creates a new journal repository
func NewJournalRepository(db *DB, logger *zap.Logger) repositories.JournalRepository {
	return &JournalRepository{
		db:     db,
		logger: logger,
	}
}

// Append stores entries in order. Callers needing atomicity run it inside a transaction.
func (r *JournalRepository) Append(ctx context.Context, entries []models.JournalEntry) error {
	query := `
		INSERT INTO journal_entries (id, correlation_id, account_id, amount, entry_type, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	for _, e := range entries {
		if _, err := executor.ExecContext(ctx, query,
			e.ID,
			e.CorrelationID,
			e.AccountID,
			e.Amount,
			e.Type,
			e.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to append journal entry: %w", err)
		}
	}

	r.logger.Debug("journal entries appended", zap.Int("count", len(entries)))
	return nil
}

// ListByCorrelationID retrieves the entries posted for one transaction
func (r *JournalRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]models.JournalEntry, error) {
	query := `
		SELECT id, correlation_id, account_id, amount, entry_type, timestamp
		FROM journal_entries
		WHERE correlation_id = $1
		ORDER BY seq
	`

	return r.queryEntries(ctx, query, correlationID)
}

// List retrieves the most recent entries, newest last
func (r *JournalRepository) List(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	if limit <= 0 {
		return r.queryEntries(ctx, `
			SELECT id, correlation_id, account_id, amount, entry_type, timestamp
			FROM journal_entries
			ORDER BY seq
		`)
	}

	query := `
		SELECT id, correlation_id, account_id, amount, entry_type, timestamp
		FROM (
			SELECT id, correlation_id, account_id, amount, entry_type, timestamp, seq
			FROM journal_entries
			ORDER BY seq DESC
			LIMIT $1
		) recent
		ORDER BY seq
	`

	return r.queryEntries(ctx, query, limit)
}

func (r *JournalRepository) queryEntries(ctx context.Context, query string, args ...interface{}) ([]models.JournalEntry, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal entries: %w", err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		if err := rows.Scan(
			&e.ID,
			&e.CorrelationID,
			&e.AccountID,
			&e.Amount,
			&e.Type,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Immutable = true
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}

	return entries, nil
}
