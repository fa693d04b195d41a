// Package authorization drives payment requests through the pipeline,
// attaching the business effects of each stage.
package authorization

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories"
	"github.com/upb/payment-control-plane/services"
	"github.com/upb/payment-control-plane/services/pipeline"
	"github.com/upb/payment-control-plane/services/recovery"
	"github.com/upb/payment-control-plane/services/speculative"
	"github.com/upb/payment-control-plane/utils"
)

// ErrIncomplete is returned when a request stopped before settlement
// without a recorded cause.
var ErrIncomplete = errors.New("pipeline did not complete")

// Decider fuses routing, compliance and ledger into a decision.
type Decider interface {
	Execute(ctx context.Context, tx models.TransactionRequest) (*models.FusionOutcome, error)
}

// Settler commits an approved transaction to a chain.
type Settler interface {
	Settle(ctx context.Context, tx models.TransactionRequest) ([]models.SettlementRecord, error)
}

// Auditor records the audit trail of a request.
type Auditor interface {
	LogStage(event models.PipelineEvent) error
	LogDecision(outcome *models.FusionOutcome) error
	LogSettlement(correlationID string, records []models.SettlementRecord, err error) error
	LogValidationFailed(correlationID string, stage models.Stage, err error) error
}

// Outcome is what the pipeline produced for one request.
type Outcome struct {
	CorrelationID   string                    `json:"correlation_id"`
	Decision        models.Decision           `json:"decision,omitempty"`
	Reason          string                    `json:"reason,omitempty"`
	Context         *models.DecisionContext   `json:"context,omitempty"`
	Speculative     *speculative.Result       `json:"speculative,omitempty"`
	Settlements     []models.SettlementRecord `json:"settlements,omitempty"`
	SettlementError string                    `json:"settlement_error,omitempty"`
	Stages          []models.Stage            `json:"stages"`
	Completed       bool                      `json:"completed"`
	Error           string                    `json:"error,omitempty"`

	err error
}

// Dependencies are the collaborators of the authorization service.
// Audit, History, Recovery and Replay are optional.
type Dependencies struct {
	Fusion     Decider
	Settlement Settler
	History    repositories.HistoryRepository
	Audit      Auditor
	Recovery   *recovery.Recovery
	Replay     *recovery.ReplayEngine

	// SpeculativePaths enables the speculative re-evaluation when non-empty.
	SpeculativePaths []models.SpeculativePath
}

// Service authorizes payments.
type Service struct {
	deps         Dependencies
	orchestrator *pipeline.Orchestrator
	logger       *zap.Logger

	// TODO: evict settled outcomes once they are persisted with the history entry
	mu       sync.RWMutex
	outcomes map[string]*Outcome
}

// NewService creates the service and registers its stage hooks.
func NewService(deps Dependencies, logger *zap.Logger) *Service {
	var runner pipeline.Runner
	if deps.Recovery != nil {
		runner = deps.Recovery
	}
	var recorder pipeline.Recorder
	if deps.Replay != nil {
		recorder = deps.Replay
	}

	s := &Service{
		deps:         deps,
		orchestrator: pipeline.NewOrchestrator(runner, recorder, logger),
		logger:       logger,
		outcomes:     make(map[string]*Outcome),
	}

	s.orchestrator.
		Handle(models.StagePaymentRequested, s.track(s.validate)).
		Handle(models.StagePaymentValidated, s.track(s.decide)).
		Handle(models.StagePaymentRouted, s.track(s.speculate)).
		Handle(models.StagePaymentExecuted, s.track(s.settle)).
		Handle(models.StagePaymentSettled, s.track(s.record))

	return s
}

// track audits stage entry and keeps the latest hook error on the outcome.
func (s *Service) track(hook pipeline.Hook) pipeline.Hook {
	return func(ctx context.Context, event models.PipelineEvent) error {
		if s.deps.Audit != nil {
			if err := s.deps.Audit.LogStage(event); err != nil {
				s.logger.Debug("audit stage dropped", zap.Error(err))
			}
		}

		err := hook(ctx, event)
		s.update(event.CorrelationID, func(o *Outcome) { o.err = err })
		return err
	}
}

func (s *Service) validate(ctx context.Context, event models.PipelineEvent) error {
	if err := utils.ValidateStruct(event.Payload); err != nil {
		verr := services.ErrInvalidTransaction.Wrap(err).
			WithDetail("fields", utils.GetValidationFields(err))
		if s.deps.Audit != nil {
			_ = s.deps.Audit.LogValidationFailed(event.CorrelationID, event.Type, err)
		}
		return verr
	}
	return nil
}

func (s *Service) decide(ctx context.Context, event models.PipelineEvent) error {
	fused, err := s.deps.Fusion.Execute(ctx, event.Payload)
	if err != nil {
		return err
	}

	s.update(event.CorrelationID, func(o *Outcome) {
		dc := fused.Context
		o.Context = &dc
		o.Decision = fused.Decision
		o.Reason = fused.Reason
	})
	if s.deps.Audit != nil {
		if err := s.deps.Audit.LogDecision(fused); err != nil {
			s.logger.Debug("audit decision dropped", zap.Error(err))
		}
	}
	return nil
}

// speculate attaches the speculative evaluation. It is advisory and does
// not change the fused decision.
func (s *Service) speculate(ctx context.Context, event models.PipelineEvent) error {
	if len(s.deps.SpeculativePaths) == 0 {
		return nil
	}

	outcome, ok := s.Outcome(event.CorrelationID)
	if !ok || outcome.Context == nil {
		return nil
	}

	result := speculative.Evaluate(*outcome.Context, s.deps.SpeculativePaths)
	s.update(event.CorrelationID, func(o *Outcome) { o.Speculative = &result })
	return nil
}

func (s *Service) settle(ctx context.Context, event models.PipelineEvent) error {
	outcome, ok := s.Outcome(event.CorrelationID)
	if !ok || outcome.Decision != models.DecisionApprove {
		return nil
	}

	records, err := s.deps.Settlement.Settle(ctx, event.Payload)
	if s.deps.Audit != nil {
		_ = s.deps.Audit.LogSettlement(event.CorrelationID, records, err)
	}

	s.update(event.CorrelationID, func(o *Outcome) {
		o.Settlements = records
		o.SettlementError = ""
		if err != nil {
			o.SettlementError = err.Error()
		}
	})

	// a rejection after the bridge fallback is a final answer
	if services.IsSettlementRejected(err) {
		return nil
	}
	return err
}

func (s *Service) record(ctx context.Context, event models.PipelineEvent) error {
	if s.deps.History == nil {
		return nil
	}

	outcome, ok := s.Outcome(event.CorrelationID)
	if !ok || outcome.Decision == "" {
		return nil
	}

	if err := s.deps.History.Append(ctx, models.NewHistoryEntry(event.Payload, outcome.Decision)); err != nil {
		return services.WrapTransient("failed to record transaction history", err)
	}
	return nil
}

// Authorize runs tx through every stage. A request that stops early
// returns its outcome together with the error that stopped it.
func (s *Service) Authorize(ctx context.Context, tx models.TransactionRequest) (*Outcome, error) {
	event := models.NewPipelineEvent(models.StagePaymentRequested, tx.EnsureCorrelation())
	s.mu.Lock()
	s.outcomes[event.CorrelationID] = &Outcome{CorrelationID: event.CorrelationID}
	s.mu.Unlock()

	trace := s.orchestrator.Start(ctx, event)
	return s.finish(event.CorrelationID, trace)
}

func (s *Service) finish(correlationID string, trace *pipeline.Trace) (*Outcome, error) {
	var outcome Outcome
	s.update(correlationID, func(o *Outcome) {
		o.Stages = trace.Stages(correlationID)
		o.Completed = trace.Completed(correlationID)
		if o.Completed {
			o.err = nil
		} else if o.err == nil {
			o.err = ErrIncomplete
		}
		o.Error = ""
		if o.err != nil {
			o.Error = o.err.Error()
		}
		outcome = *o
	})
	return &outcome, outcome.err
}

// Replay re-runs every recorded request from its recorded stage and returns
// how many events were replayed.
func (s *Service) Replay(ctx context.Context) (int, *pipeline.Trace) {
	if s.deps.Replay == nil {
		return 0, &pipeline.Trace{}
	}

	var n int
	trace := s.orchestrator.Run(ctx, func(p pipeline.Publisher) {
		n = s.deps.Replay.Replay(p)
	})

	seen := make(map[string]bool)
	for _, e := range append(trace.Processed, trace.Failed...) {
		if !seen[e.CorrelationID] {
			seen[e.CorrelationID] = true
			_, _ = s.finish(e.CorrelationID, trace)
		}
	}

	s.logger.Info("replay finished", zap.Int("events", n), zap.Int("processed", len(trace.Processed)), zap.Int("failed", len(trace.Failed)))
	return n, trace
}

// Outcome returns a copy of the recorded outcome for a correlation id.
func (s *Service) Outcome(correlationID string) (Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.outcomes[correlationID]
	if !ok {
		return Outcome{}, false
	}
	return *o, true
}

func (s *Service) update(correlationID string, fn func(*Outcome)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.outcomes[correlationID]
	if !ok {
		o = &Outcome{CorrelationID: correlationID}
		s.outcomes[correlationID] = o
	}
	fn(o)
}

// DeadLetters lists the events that exhausted recovery.
func (s *Service) DeadLetters(ctx context.Context) ([]models.DeadLetter, error) {
	if s.deps.Recovery == nil {
		return nil, nil
	}
	return s.deps.Recovery.DeadLetters().List(ctx)
}
