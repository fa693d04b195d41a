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

// PolicyRepository implements the repositories.PolicyRepository interface
type PolicyRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *DB, logger *zap.Logger) repositories.PolicyRepository {
	return &PolicyRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new policy version
func (r *PolicyRepository) Create(ctx context.Context, policy *models.PolicyRecord) error {
	query := `
		INSERT INTO policies (id, name, version, document, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		policy.ID,
		policy.Name,
		policy.Version,
		[]byte(policy.Document),
		policy.Enabled,
		policy.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}

	r.logger.Debug("policy created",
		zap.String("id", policy.ID.String()),
		zap.String("name", policy.Name),
		zap.String("version", policy.Version))
	return nil
}

// GetByName retrieves the newest enabled version of a named policy
func (r *PolicyRepository) GetByName(ctx context.Context, name string) (*models.PolicyRecord, error) {
	query := `
		SELECT id, name, version, document, enabled, created_at
		FROM policies
		WHERE name = $1 AND enabled = true
		ORDER BY created_at DESC
		LIMIT 1
	`

	executor := GetExecutor(ctx, r.db)
	policy, err := scanPolicy(executor.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	return policy, nil
}

// List retrieves all policy records
func (r *PolicyRepository) List(ctx context.Context) ([]*models.PolicyRecord, error) {
	query := `
		SELECT id, name, version, document, enabled, created_at
		FROM policies
		ORDER BY name, created_at
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []*models.PolicyRecord
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, policy)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating policy rows: %w", err)
	}

	return policies, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPolicy(row scanner) (*models.PolicyRecord, error) {
	policy := &models.PolicyRecord{}
	var document []byte
	if err := row.Scan(
		&policy.ID,
		&policy.Name,
		&policy.Version,
		&document,
		&policy.Enabled,
		&policy.CreatedAt,
	); err != nil {
		return nil, err
	}
	policy.Document = document
	return policy, nil
}
