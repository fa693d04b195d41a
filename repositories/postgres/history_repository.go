package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories"
)

// HistoryRepository implements the repositories.HistoryRepository interface
type HistoryRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new transaction history repository
func NewHistoryRepository(db *DB, logger *zap.Logger) repositories.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append records an authorized transaction
func (r *HistoryRepository) Append(ctx context.Context, entry *models.HistoryEntry) error {
	query := `
		INSERT INTO transaction_history (correlation_id, amount, currency, country, decision, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		entry.CorrelationID,
		entry.Amount,
		entry.Currency,
		entry.Country,
		entry.Decision,
		entry.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}

	return nil
}

// List retrieves the most recent entries, oldest first
func (r *HistoryRepository) List(ctx context.Context, limit int) ([]*models.HistoryEntry, error) {
	if limit <= 0 {
		return r.queryHistory(ctx, `
			SELECT correlation_id, amount, currency, country, decision, timestamp
			FROM transaction_history
			ORDER BY seq
		`)
	}

	query := `
		SELECT correlation_id, amount, currency, country, decision, timestamp
		FROM (
			SELECT correlation_id, amount, currency, country, decision, timestamp, seq
			FROM transaction_history
			ORDER BY seq DESC
			LIMIT $1
		) recent
		ORDER BY seq
	`

	return r.queryHistory(ctx, query, limit)
}

// Since retrieves entries recorded at or after t, oldest first
func (r *HistoryRepository) Since(ctx context.Context, t time.Time) ([]*models.HistoryEntry, error) {
	query := `
		SELECT correlation_id, amount, currency, country, decision, timestamp
		FROM transaction_history
		WHERE timestamp >= $1
		ORDER BY seq
	`

	return r.queryHistory(ctx, query, t)
}

func (r *HistoryRepository) queryHistory(ctx context.Context, query string, args ...interface{}) ([]*models.HistoryEntry, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		e := &models.HistoryEntry{}
		if err := rows.Scan(
			&e.CorrelationID,
			&e.Amount,
			&e.Currency,
			&e.Country,
			&e.Decision,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	return entries, nil
}

// RouteDecisionRepository implements the repositories.RouteDecisionRepository interface
type RouteDecisionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRouteDecisionRepository creates a new routing decision repository
func NewRouteDecisionRepository(db *DB, logger *zap.Logger) repositories.RouteDecisionRepository {
	return &RouteDecisionRepository{
		db:     db,
		logger: logger,
	}
}

// Append records a routing decision
func (r *RouteDecisionRepository) Append(ctx context.Context, decision *models.RouteDecision) error {
	query := `
		INSERT INTO route_decisions (correlation_id, provider, score, failover, timestamp)
		VALUES ($1, $2, $3, $4, $5)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		decision.CorrelationID,
		decision.Provider,
		decision.Score,
		decision.Failover,
		decision.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append route decision: %w", err)
	}

	return nil
}

// List retrieves the most recent decisions, oldest first
func (r *RouteDecisionRepository) List(ctx context.Context, limit int) ([]*models.RouteDecision, error) {
	query := `
		SELECT correlation_id, provider, score, failover, timestamp
		FROM route_decisions
		ORDER BY seq
	`
	args := []interface{}{}
	if limit > 0 {
		query = `
			SELECT correlation_id, provider, score, failover, timestamp
			FROM (
				SELECT correlation_id, provider, score, failover, timestamp, seq
				FROM route_decisions
				ORDER BY seq DESC
				LIMIT $1
			) recent
			ORDER BY seq
		`
		args = append(args, limit)
	}

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query route decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*models.RouteDecision
	for rows.Next() {
		d := &models.RouteDecision{}
		if err := rows.Scan(
			&d.CorrelationID,
			&d.Provider,
			&d.Score,
			&d.Failover,
			&d.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan route decision: %w", err)
		}
		decisions = append(decisions, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating route decision rows: %w", err)
	}

	return decisions, nil
}
