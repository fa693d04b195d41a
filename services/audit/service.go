package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/internal/redact"
	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories"
)

// AuditEvent represents an event to be audited
type AuditEvent struct {
	Log *models.AuditLog
}

// AuditService handles asynchronous audit logging
type AuditService struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	eventChan   chan *AuditEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	mu          sync.RWMutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 4,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &AuditService{
		auditRepo:   auditRepo,
		logger:      logger,
		eventChan:   make(chan *AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop gracefully stops the audit service
// Waits for all pending events to be processed
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.stopped = true
	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))
	// no more events will be accepted
	close(s.eventChan)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent logs an event asynchronously (non-blocking)
// Returns immediately, event is processed in background
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not started")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Log.Action)),
			zap.String("correlation_id", event.Log.CorrelationID))
		return fmt.Errorf("audit event buffer full")
	}
}

// worker processes events from the channel
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Log.Action)),
				zap.String("correlation_id", event.Log.CorrelationID))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent stores one event. A Stop that times out cancels the insert.
func (s *AuditService) processEvent(event *AuditEvent) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event.Log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// Trail returns the stored audit trail of one transaction.
func (s *AuditService) Trail(ctx context.Context, correlationID string) ([]*models.AuditLog, error) {
	return s.auditRepo.GetByCorrelationID(ctx, correlationID)
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// Convenience methods for logging common events

// LogStage logs a pipeline event entering its stage
func (s *AuditService) LogStage(event models.PipelineEvent) error {
	log := models.NewAuditLog(event.CorrelationID, models.AuditActionStageEntered).
		WithStage(event.Type)
	return s.LogEvent(&AuditEvent{Log: log})
}

// LogDecision logs a fused authorization decision
func (s *AuditService) LogDecision(outcome *models.FusionOutcome) error {
	tx := outcome.Context.Transaction
	details := map[string]interface{}{
		"decision":     outcome.Decision,
		"reason":       outcome.Reason,
		"neural_score": outcome.Context.NeuralScore,
		"amount":       tx.Amount.String(),
		"currency":     tx.Currency,
		"source":       redact.Account(tx.SourceAccount),
		"destination":  redact.Account(tx.DestinationAccount),
	}
	if outcome.Context.Routing != nil {
		details["provider"] = outcome.Context.Routing.Provider
	}
	if outcome.Context.Compliance != nil {
		details["compliance"] = outcome.Context.Compliance.Status
		details["issues"] = outcome.Context.Compliance.Issues
	}

	log := models.NewAuditLog(tx.CorrelationID, models.AuditActionDecision).
		WithStage(models.StagePaymentRouted).
		WithDetails(details)
	return s.LogEvent(&AuditEvent{Log: log})
}

// LogSettlement logs every settlement attempt of a transaction. Wallet
// addresses are masked.
func (s *AuditService) LogSettlement(correlationID string, records []models.SettlementRecord, err error) error {
	attempts := make([]models.SettlementRecord, len(records))
	for i, r := range records {
		r.From = redact.Account(r.From)
		r.To = redact.Account(r.To)
		r.Error = redact.Text(r.Error)
		attempts[i] = r
	}

	log := models.NewAuditLog(correlationID, models.AuditActionSettlement).
		WithStage(models.StagePaymentSettled).
		WithDetails(map[string]interface{}{"attempts": attempts})
	if err != nil {
		log.WithError(redact.Text(err.Error()))
	}
	return s.LogEvent(&AuditEvent{Log: log})
}

// LogValidationFailed logs a request rejected by validation
func (s *AuditService) LogValidationFailed(correlationID string, stage models.Stage, err error) error {
	log := models.NewAuditLog(correlationID, models.AuditActionValidationFailed).
		WithStage(stage).
		WithError(redact.Text(err.Error()))
	return s.LogEvent(&AuditEvent{Log: log})
}

// LogDeadLetter logs an event that exhausted recovery
func (s *AuditService) LogDeadLetter(letter models.DeadLetter) error {
	errs := make([]string, len(letter.Errors))
	for i, e := range letter.Errors {
		errs[i] = redact.Text(e)
	}
	log := models.NewAuditLog(letter.Event.CorrelationID, models.AuditActionDeadLettered).
		WithStage(letter.Event.Type).
		WithDetails(map[string]interface{}{"attempts": letter.Attempts, "errors": errs}).
		WithError(redact.Text(letter.Reason))
	return s.LogEvent(&AuditEvent{Log: log})
}
