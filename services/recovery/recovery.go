package recovery

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/services/pipeline"
)

// Recovery runs pipeline stages under a retry policy and dead-letters the
// events that still fail. Failures never propagate to the caller.
type Recovery struct {
	policy Policy
	dlq    *DeadLetterQueue
	logger *zap.Logger
}

// New creates a recovery layer
func New(policy Policy, dlq *DeadLetterQueue, logger *zap.Logger) *Recovery {
	return &Recovery{
		policy: policy,
		dlq:    dlq,
		logger: logger,
	}
}

// DeadLetters returns the queue failed events are pushed to
func (r *Recovery) DeadLetters() *DeadLetterQueue {
	return r.dlq
}

// SafeProcess runs handler for event with retries. It reports whether the
// handler eventually succeeded; on failure the event, the last error and
// the errors of earlier attempts are dead-lettered.
func (r *Recovery) SafeProcess(ctx context.Context, handler pipeline.Handler, event models.PipelineEvent) bool {
	var attemptErrors []string
	attempts := 0

	_, err := Retry(ctx, r.policy, func(ctx context.Context) (struct{}, error) {
		attempts++
		return struct{}{}, handler(ctx, event)
	}, func(a Attempt) {
		attemptErrors = append(attemptErrors, a.Err.Error())
		r.logger.Warn("stage attempt failed, retrying",
			zap.String("correlation_id", event.CorrelationID),
			zap.String("stage", string(event.Type)),
			zap.Int("attempt", a.Number),
			zap.Duration("delay", a.Delay),
			zap.Error(a.Err))
	})
	if err == nil {
		return true
	}

	attemptErrors = append(attemptErrors, err.Error())
	r.dlq.Push(ctx, event, err.Error(), attempts, attemptErrors)
	return false
}

// ReplayEngine keeps every event that entered the pipeline, in order, and
// can publish them again. It does not deduplicate.
type ReplayEngine struct {
	mu      sync.Mutex
	history []models.PipelineEvent
}

// NewReplayEngine creates an empty replay log
func NewReplayEngine() *ReplayEngine {
	return &ReplayEngine{}
}

// Record appends event to the log
func (e *ReplayEngine) Record(event models.PipelineEvent) {
	e.mu.Lock()
	e.history = append(e.history, event)
	e.mu.Unlock()
}

// Events returns a copy of the log
func (e *ReplayEngine) Events() []models.PipelineEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.PipelineEvent(nil), e.history...)
}

// Replay publishes every recorded event to p in recorded order and returns
// how many were published.
func (e *ReplayEngine) Replay(p pipeline.Publisher) int {
	events := e.Events()
	for _, event := range events {
		p.Publish(event)
	}
	return len(events)
}
