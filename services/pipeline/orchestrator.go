package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/models"
)

// Hook runs the business effects of entering a stage. A hook error stops
// the transaction at that stage.
type Hook func(ctx context.Context, event models.PipelineEvent) error

// Runner executes a handler with failure recovery. It reports false when the
// event could not be processed and was set aside.
type Runner interface {
	SafeProcess(ctx context.Context, handler Handler, event models.PipelineEvent) bool
}

// Recorder keeps the events that entered the pipeline.
type Recorder interface {
	Record(event models.PipelineEvent)
}

// Trace is what one drain of the pipeline did.
type Trace struct {
	Processed []models.PipelineEvent
	Failed    []models.PipelineEvent
}

// Stages returns the stages processed for a correlation id, in order.
func (t *Trace) Stages(correlationID string) []models.Stage {
	var stages []models.Stage
	for _, e := range t.Processed {
		if e.CorrelationID == correlationID {
			stages = append(stages, e.Type)
		}
	}
	return stages
}

// Completed reports whether the transaction went through every stage.
func (t *Trace) Completed(correlationID string) bool {
	return ValidatePipeline(t.Stages(correlationID))
}

// Orchestrator drives events through the lifecycle, running the hook of
// each stage under the Runner before advancing. Each call drains its own
// bus so concurrent transactions do not share a queue.
type Orchestrator struct {
	mu       sync.RWMutex
	hooks    map[models.Stage]Hook
	runner   Runner
	recorder Recorder
	logger   *zap.Logger
}

// NewOrchestrator creates an orchestrator. runner and recorder may be nil.
func NewOrchestrator(runner Runner, recorder Recorder, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		hooks:    make(map[models.Stage]Hook),
		runner:   runner,
		recorder: recorder,
		logger:   logger,
	}
}

// Handle registers the hook for a stage, replacing any previous one
func (o *Orchestrator) Handle(stage models.Stage, hook Hook) *Orchestrator {
	o.mu.Lock()
	o.hooks[stage] = hook
	o.mu.Unlock()
	return o
}

// Start records event and drains it through the pipeline.
func (o *Orchestrator) Start(ctx context.Context, event models.PipelineEvent) *Trace {
	if o.recorder != nil {
		o.recorder.Record(event)
	}
	return o.Run(ctx, func(p Publisher) { p.Publish(event) })
}

// Run drains a fresh bus seeded by seed. Seeded events are not recorded.
func (o *Orchestrator) Run(ctx context.Context, seed func(Publisher)) *Trace {
	bus := NewEventBus()
	engine := NewTransactionEngine(bus, o.logger)
	trace := &Trace{}

	seed(bus)

	stage := func(ctx context.Context, event models.PipelineEvent) error {
		if hook := o.hook(event.Type); hook != nil {
			if err := hook(ctx, event); err != nil {
				return err
			}
		}
		return engine.Process(ctx, event)
	}

	err := bus.Consume(ctx, func(ctx context.Context, event models.PipelineEvent) error {
		if o.execute(ctx, stage, event) {
			trace.Processed = append(trace.Processed, event)
		} else {
			trace.Failed = append(trace.Failed, event)
		}
		return nil
	})
	if err != nil {
		o.logger.Warn("pipeline drain interrupted", zap.Error(err), zap.Int("pending", bus.Len()))
	}

	return trace
}

func (o *Orchestrator) execute(ctx context.Context, handler Handler, event models.PipelineEvent) bool {
	if o.runner != nil {
		return o.runner.SafeProcess(ctx, handler, event)
	}
	if err := handler(ctx, event); err != nil {
		o.logger.Error("stage failed",
			zap.String("correlation_id", event.CorrelationID),
			zap.String("stage", string(event.Type)),
			zap.Error(err))
		return false
	}
	return true
}

func (o *Orchestrator) hook(stage models.Stage) Hook {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.hooks[stage]
}
