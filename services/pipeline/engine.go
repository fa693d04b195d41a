package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/models"
)

// TransactionEngine moves an event to its successor stage.
type TransactionEngine struct {
	bus    Publisher
	logger *zap.Logger
}

// NewTransactionEngine creates an engine publishing successors to bus
func NewTransactionEngine(bus Publisher, logger *zap.Logger) *TransactionEngine {
	return &TransactionEngine{
		bus:    bus,
		logger: logger,
	}
}

// Process publishes the successor of event, keeping payload and correlation
// id. Terminal events are dropped.
func (e *TransactionEngine) Process(_ context.Context, event models.PipelineEvent) error {
	next, ok := NextState(event.Type)
	if !ok {
		e.logger.Debug("terminal event dropped",
			zap.String("correlation_id", event.CorrelationID),
			zap.String("stage", string(event.Type)))
		return nil
	}

	e.bus.Publish(event.Derive(next))
	return nil
}
