package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories"
)

// DeadLetterRepository implements the repositories.DeadLetterRepository interface
type DeadLetterRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDeadLetterRepository creates a new dead letter repository
func NewDeadLetterRepository(db *DB, logger *zap.Logger) repositories.DeadLetterRepository {
	return &DeadLetterRepository{
		db:     db,
		logger: logger,
	}
}

// Insert records a dead letter
func (r *DeadLetterRepository) Insert(ctx context.Context, letter *models.DeadLetter) error {
	query := `
		INSERT INTO dead_letters (id, event, reason, attempts, errors, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	event, err := json.Marshal(letter.Event)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter event: %w", err)
	}
	attemptErrors, err := json.Marshal(letter.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter errors: %w", err)
	}

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query,
		letter.ID,
		event,
		letter.Reason,
		letter.Attempts,
		attemptErrors,
		letter.Timestamp,
	); err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}

	r.logger.Debug("dead letter stored",
		zap.String("id", letter.ID.String()),
		zap.String("correlation_id", letter.Event.CorrelationID))
	return nil
}

// List retrieves dead letters, oldest first
func (r *DeadLetterRepository) List(ctx context.Context) ([]*models.DeadLetter, error) {
	query := `
		SELECT id, event, reason, attempts, errors, timestamp
		FROM dead_letters
		ORDER BY timestamp
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var letters []*models.DeadLetter
	for rows.Next() {
		letter := &models.DeadLetter{}
		var event, attemptErrors []byte
		if err := rows.Scan(
			&letter.ID,
			&event,
			&letter.Reason,
			&letter.Attempts,
			&attemptErrors,
			&letter.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		if err := json.Unmarshal(event, &letter.Event); err != nil {
			return nil, fmt.Errorf("failed to decode dead letter event: %w", err)
		}
		if len(attemptErrors) > 0 {
			if err := json.Unmarshal(attemptErrors, &letter.Errors); err != nil {
				return nil, fmt.Errorf("failed to decode dead letter errors: %w", err)
			}
		}
		letters = append(letters, letter)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letter rows: %w", err)
	}

	return letters, nil
}
