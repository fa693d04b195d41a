package policy

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/config"
	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories"
	"github.com/upb/payment-control-plane/services"
)

// Service loads policy documents from files or the policy repository.
// Every load is validated and compiled before it is returned.
type Service struct {
	repo   repositories.PolicyRepository
	cache  *Cache
	logger *zap.Logger
}

// NewService creates a new policy service. repo may be nil when policies
// are only read from files.
func NewService(repo repositories.PolicyRepository, cache *Cache, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

// Resolve loads the policy the pipeline is configured with.
func (s *Service) Resolve(ctx context.Context, cfg config.PipelineConfig) (*Compiled, error) {
	switch cfg.PolicySource {
	case config.PolicySourceRepository:
		return s.Load(ctx, cfg.PolicyName)
	case config.PolicySourceFile, "":
		return s.LoadFile(cfg.PolicyPath)
	default:
		return nil, services.NewDomainError(services.ErrorTypeConfiguration,
			fmt.Sprintf("unknown policy source %q", cfg.PolicySource), nil)
	}
}

// LoadFile reads and compiles a policy document from disk.
func (s *Service) LoadFile(path string) (*Compiled, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeConfiguration, "policy not configured", err).
			WithDetail("path", path)
	}

	compiled, err := Parse(data)
	if err != nil {
		s.logger.Error("policy rejected", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	s.logger.Info("policy loaded",
		zap.String("path", path),
		zap.String("name", compiled.Name),
		zap.String("version", compiled.Version))
	return compiled, nil
}

// Load returns the newest enabled version of a named policy, using the cache
// when possible.
func (s *Service) Load(ctx context.Context, name string) (*Compiled, error) {
	if s.cache != nil {
		if cached := s.cache.Get(name); cached != nil {
			s.logger.Debug("cache hit for policy", zap.String("name", name))
			return cached, nil
		}
	}

	if s.repo == nil {
		return nil, services.ErrPolicyMissing
	}

	record, err := s.repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewDomainError(services.ErrorTypeConfiguration, "policy not configured", err).
				WithDetail("name", name)
		}
		return nil, services.ErrDatabaseError.Wrap(fmt.Errorf("failed to fetch policy: %w", err))
	}

	compiled, err := Parse(record.Document)
	if err != nil {
		s.logger.Error("stored policy rejected",
			zap.String("name", name),
			zap.String("version", record.Version),
			zap.Error(err))
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(name, compiled)
	}

	s.logger.Debug("cache miss for policy, fetched from repository",
		zap.String("name", name),
		zap.String("version", record.Version))
	return compiled, nil
}

// Import validates a policy document and stores it as the newest version of
// its name.
func (s *Service) Import(ctx context.Context, data []byte) (*models.PolicyRecord, error) {
	if s.repo == nil {
		return nil, services.ErrPolicyMissing
	}

	compiled, err := Parse(data)
	if err != nil {
		return nil, err
	}

	record := models.NewPolicyRecord(compiled.Name, compiled.Version, data)
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, services.ErrDatabaseError.Wrap(fmt.Errorf("failed to store policy: %w", err))
	}

	if s.cache != nil {
		s.cache.Invalidate(compiled.Name)
	}

	s.logger.Info("policy imported",
		zap.String("name", record.Name),
		zap.String("version", record.Version),
		zap.String("id", record.ID.String()))
	return record, nil
}

// List returns every stored policy record.
func (s *Service) List(ctx context.Context) ([]*models.PolicyRecord, error) {
	if s.repo == nil {
		return nil, nil
	}
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, services.ErrDatabaseError.Wrap(fmt.Errorf("failed to list policies: %w", err))
	}
	return records, nil
}
