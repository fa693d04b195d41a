package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/upb/payment-control-plane/models"
)

// Handler processes one pipeline event.
type Handler func(ctx context.Context, event models.PipelineEvent) error

// Publisher accepts events for later processing.
type Publisher interface {
	Publish(event models.PipelineEvent)
}

// EventBus is a FIFO work-list of pipeline events. Publish is safe to call
// from any goroutine, including from a handler during Consume.
type EventBus struct {
	mu    sync.Mutex
	queue []models.PipelineEvent
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Publish appends event to the queue
func (b *EventBus) Publish(event models.PipelineEvent) {
	b.mu.Lock()
	b.queue = append(b.queue, event)
	b.mu.Unlock()
}

// Len returns the number of queued events
func (b *EventBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *EventBus) pop() (models.PipelineEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return models.PipelineEvent{}, false
	}
	event := b.queue[0]
	b.queue[0] = models.PipelineEvent{}
	b.queue = b.queue[1:]
	return event, true
}

// Consume drains the queue, calling handler once per event in publish order.
// Events published by handler are processed before Consume returns. Handler
// errors do not stop the drain; they are joined and returned at the end.
// A cancelled ctx stops the drain with the remaining events left queued.
func (b *EventBus) Consume(ctx context.Context, handler Handler) error {
	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		event, ok := b.pop()
		if !ok {
			return errors.Join(errs...)
		}
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
}
