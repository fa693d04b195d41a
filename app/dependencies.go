package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/config"
	"github.com/upb/payment-control-plane/internal/observability"
	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories"
	"github.com/upb/payment-control-plane/repositories/memory"
	"github.com/upb/payment-control-plane/repositories/postgres"
	"github.com/upb/payment-control-plane/services/audit"
	"github.com/upb/payment-control-plane/services/authorization"
	"github.com/upb/payment-control-plane/services/compliance"
	"github.com/upb/payment-control-plane/services/fusion"
	"github.com/upb/payment-control-plane/services/ledger"
	"github.com/upb/payment-control-plane/services/policy"
	"github.com/upb/payment-control-plane/services/providers"
	"github.com/upb/payment-control-plane/services/recovery"
	"github.com/upb/payment-control-plane/services/routing"
	"github.com/upb/payment-control-plane/services/settlement"
	"github.com/upb/payment-control-plane/services/speculative"
)

const (
	policyCacheSize  = 16
	auditStopTimeout = 5 * time.Second
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil with in-memory storage
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager

	// Policy
	Policies *policy.Service
	Policy   *policy.Compiled

	// Pipeline components
	ProviderRegistry *providers.Registry
	Routing          *routing.Service
	Compliance       *compliance.Service
	Ledger           *ledger.Engine
	Fusion           *fusion.Engine
	Gateway          settlement.Gateway
	Settlement       *settlement.Service
	Audit            *audit.AuditService
	Recovery         *recovery.Recovery
	Replay           *recovery.ReplayEngine
	Authorization    *authorization.Service
	SpeculativePaths []models.SpeculativePath

	shutdownTracing func(context.Context) error
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	shutdown, err := observability.SetupTracing(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	deps.shutdownTracing = shutdown

	if err := deps.initStorage(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := deps.initPolicy(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	if err := deps.initProviders(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initPipeline(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("storage", cfg.Storage),
		zap.String("policy", deps.Policy.Name),
		zap.String("policy_version", deps.Policy.Version))
	return deps, nil
}

// initStorage selects in-memory or PostgreSQL repositories
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	if !cfg.UsesPostgres() {
		d.Repos = memory.NewRepositories()
		d.TxManager = memory.NewTransactionManager()
		d.Logger.Info("using in-memory repositories")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := factory.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Repos = factory.NewRepositories()
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

// initPolicy resolves the configured policy document
func (d *Dependencies) initPolicy(ctx context.Context, cfg *config.Config) error {
	d.Policies = policy.NewService(d.Repos.Policies, policy.NewCache(policyCacheSize, cfg.Pipeline.PolicyCacheTTL), d.Logger)

	compiled, err := d.Policies.Resolve(ctx, cfg.Pipeline)
	if err != nil {
		return err
	}
	d.Policy = compiled
	return nil
}

// initProviders registers an HTTP provider per configured health endpoint and
// a static provider for every other provider the policy routes to
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry, err := providers.NewRegistryBuilder().
		WithConfig(cfg.Providers).
		WithStatic(d.Policy.Routing.Providers(), cfg.Providers.Risks).
		Build()
	if err != nil {
		return err
	}

	if registry.GetProviderCount() == 0 {
		d.Logger.Warn("no payment providers configured")
	}
	d.ProviderRegistry = registry
	return nil
}

// initPipeline wires the engines, the recovery layer and the authorization service
func (d *Dependencies) initPipeline(cfg *config.Config) error {
	p := d.Policy

	d.Routing = routing.NewService(d.ProviderRegistry, p.Routing, d.Repos.RouteDecisions, d.Logger)
	d.Compliance = compliance.NewService(p, d.Repos.History, cfg.Pipeline.HistoryLimit, d.Logger)
	d.Ledger = ledger.NewEngine(p, d.Repos.Accounts, d.Repos.Journal, d.TxManager, d.Logger)
	d.Fusion = fusion.NewEngine(d.Routing, d.Compliance, d.Ledger, d.Logger)

	d.Gateway = settlement.NewGateway(cfg.Chain)
	d.Settlement = settlement.NewService(p.Chain, d.Gateway, d.Gateway, d.Logger)

	d.Audit = audit.NewAuditService(d.Repos.AuditLogs, d.Logger, audit.Config{
		BufferSize:  cfg.Pipeline.AuditBuffer,
		WorkerCount: cfg.Pipeline.AuditWorkers,
	})
	if err := d.Audit.Start(); err != nil {
		return err
	}

	dlq := recovery.NewDeadLetterQueue(d.Repos.DeadLetters, d.Logger)
	dlq.Observe(func(letter models.DeadLetter) {
		if err := d.Audit.LogDeadLetter(letter); err != nil {
			d.Logger.Debug("audit dead letter dropped", zap.Error(err))
		}
	})
	d.Recovery = recovery.New(recovery.PolicyFromConfig(cfg.Pipeline), dlq, d.Logger)
	d.Replay = recovery.NewReplayEngine()

	d.SpeculativePaths = speculative.PathsFor(p.Policy)
	var paths []models.SpeculativePath
	if cfg.Pipeline.SpeculativeEnabled {
		paths = d.SpeculativePaths
	}

	d.Authorization = authorization.NewService(authorization.Dependencies{
		Fusion:           d.Fusion,
		Settlement:       d.Settlement,
		History:          d.Repos.History,
		Audit:            d.Audit,
		Recovery:         d.Recovery,
		Replay:           d.Replay,
		SpeculativePaths: paths,
	}, d.Logger)

	d.Logger.Info("pipeline initialized",
		zap.Strings("providers", d.ProviderRegistry.ListProviders()),
		zap.Int("retry_attempts", cfg.Pipeline.MaxAttempts),
		zap.Bool("speculative", len(paths) > 0))
	return nil
}

// AuditReady reports whether the audit workers are accepting events
func (d *Dependencies) AuditReady(context.Context) error {
	if d.Audit == nil || !d.Audit.GetStats().Started {
		return errors.New("audit service not running")
	}
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain pending audit events before the database goes away
	if d.Audit != nil && d.Audit.GetStats().Started {
		if err := d.Audit.Stop(auditStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.shutdownTracing != nil {
		if err := d.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
		}
	}

	// Sync logger
	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
