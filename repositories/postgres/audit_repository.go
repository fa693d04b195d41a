package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories"
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, correlation_id, action, stage, details, timestamp, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	var details interface{}
	if len(log.Details) > 0 {
		details = []byte(log.Details)
	}

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.CorrelationID,
		log.Action,
		log.Stage,
		details,
		log.Timestamp,
		log.ErrorMessage,
	)

	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// GetByCorrelationID retrieves the audit trail of one transaction
func (r *AuditRepository) GetByCorrelationID(ctx context.Context, correlationID string) ([]*models.AuditLog, error) {
	query := `
		SELECT id, correlation_id, action, stage, details, timestamp, error_message
		FROM audit_logs
		WHERE correlation_id = $1
		ORDER BY timestamp
	`

	return r.queryAuditLogs(ctx, query, correlationID)
}

// GetByAction retrieves audit logs by action type
func (r *AuditRepository) GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, correlation_id, action, stage, details, timestamp, error_message
		FROM audit_logs
		WHERE action = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`

	return r.queryAuditLogs(ctx, query, action, limit, offset)
}

// queryAuditLogs is a helper method to query multiple audit logs
func (r *AuditRepository) queryAuditLogs(ctx context.Context, query string, args ...interface{}) ([]*models.AuditLog, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		log := &models.AuditLog{}
		var stage *string
		var details []byte
		if err := rows.Scan(
			&log.ID,
			&log.CorrelationID,
			&log.Action,
			&stage,
			&details,
			&log.Timestamp,
			&log.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if stage != nil {
			log.Stage = *stage
		}
		log.Details = details
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return logs, nil
}
