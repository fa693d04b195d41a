package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/config"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Wrap adapts an already opened pool.
func Wrap(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Ledger accounts
		CREATE TABLE IF NOT EXISTS accounts (
			id VARCHAR(128) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			currency CHAR(3) NOT NULL,
			balance NUMERIC(20, 4) NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Journal entries (append-only)
		CREATE TABLE IF NOT EXISTS journal_entries (
			id UUID PRIMARY KEY,
			seq BIGSERIAL UNIQUE,
			correlation_id VARCHAR(64) NOT NULL,
			account_id VARCHAR(128) NOT NULL,
			amount NUMERIC(20, 4) NOT NULL,
			entry_type VARCHAR(6) NOT NULL CHECK (entry_type IN ('debit', 'credit')),
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Transaction history used for compliance screening
		CREATE TABLE IF NOT EXISTS transaction_history (
			seq BIGSERIAL PRIMARY KEY,
			correlation_id VARCHAR(64) NOT NULL,
			amount NUMERIC(20, 4) NOT NULL,
			currency CHAR(3) NOT NULL,
			country VARCHAR(2),
			decision VARCHAR(16) NOT NULL,
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Routing decisions
		CREATE TABLE IF NOT EXISTS route_decisions (
			seq BIGSERIAL PRIMARY KEY,
			correlation_id VARCHAR(64) NOT NULL,
			provider VARCHAR(128) NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			failover BOOLEAN NOT NULL DEFAULT false,
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Policy documents
		CREATE TABLE IF NOT EXISTS policies (
			id UUID PRIMARY KEY,
			name VARCHAR(128) NOT NULL,
			version VARCHAR(64) NOT NULL,
			document JSONB NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Dead letters
		CREATE TABLE IF NOT EXISTS dead_letters (
			id UUID PRIMARY KEY,
			event JSONB NOT NULL,
			reason TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			errors JSONB,
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Indexes for performance
		CREATE INDEX IF NOT EXISTS idx_journal_entries_correlation_id ON journal_entries(correlation_id);
		CREATE INDEX IF NOT EXISTS idx_journal_entries_account_id ON journal_entries(account_id);
		CREATE INDEX IF NOT EXISTS idx_transaction_history_timestamp ON transaction_history(timestamp);
		CREATE INDEX IF NOT EXISTS idx_policies_name ON policies(name);
		CREATE INDEX IF NOT EXISTS idx_dead_letters_timestamp ON dead_letters(timestamp);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return db.InitAuditSchema(ctx)
}

// InitAuditSchema initializes the audit log schema.
// Use directly for the separate audit database when DATABASE_URL_AUDIT is set.
func (db *DB) InitAuditSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY,
			correlation_id VARCHAR(64) NOT NULL,
			action VARCHAR(64) NOT NULL,
			stage VARCHAR(64),
			details JSONB,
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			error_message TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_correlation_id ON audit_logs(correlation_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	db.logger.Info("audit schema initialized successfully")
	return nil
}
