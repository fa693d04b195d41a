package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories"
)

// DeadLetterQueue collects events whose processing permanently failed. When
// a repository is configured every letter is also persisted there.
type DeadLetterQueue struct {
	mu        sync.Mutex
	letters   []models.DeadLetter
	repo      repositories.DeadLetterRepository
	observers []func(models.DeadLetter)
	logger    *zap.Logger
}

// NewDeadLetterQueue creates a queue. repo may be nil.
func NewDeadLetterQueue(repo repositories.DeadLetterRepository, logger *zap.Logger) *DeadLetterQueue {
	return &DeadLetterQueue{
		repo:   repo,
		logger: logger,
	}
}

// Observe registers fn to be called for every pushed letter
func (q *DeadLetterQueue) Observe(fn func(models.DeadLetter)) {
	q.mu.Lock()
	q.observers = append(q.observers, fn)
	q.mu.Unlock()
}

// Push records a failed event. Persistence failures are logged, not returned,
// so a letter is never lost from the in-process queue.
func (q *DeadLetterQueue) Push(ctx context.Context, event models.PipelineEvent, reason string, attempts int, errs []string) models.DeadLetter {
	letter := models.DeadLetter{
		ID:        uuid.New(),
		Event:     event,
		Reason:    reason,
		Attempts:  attempts,
		Errors:    errs,
		Timestamp: time.Now(),
	}

	q.mu.Lock()
	q.letters = append(q.letters, letter)
	observers := append([]func(models.DeadLetter){}, q.observers...)
	q.mu.Unlock()

	if q.repo != nil {
		if err := q.repo.Insert(ctx, &letter); err != nil {
			q.logger.Error("failed to persist dead letter",
				zap.String("correlation_id", event.CorrelationID),
				zap.Error(err))
		}
	}

	q.logger.Warn("event dead-lettered",
		zap.String("correlation_id", event.CorrelationID),
		zap.String("stage", string(event.Type)),
		zap.Int("attempts", attempts),
		zap.String("reason", reason))

	for _, fn := range observers {
		fn(letter)
	}
	return letter
}

// List returns dead letters, oldest first. Persisted letters are preferred
// so the list survives restarts.
func (q *DeadLetterQueue) List(ctx context.Context) ([]models.DeadLetter, error) {
	if q.repo != nil {
		stored, err := q.repo.List(ctx)
		if err != nil {
			return nil, err
		}
		letters := make([]models.DeadLetter, 0, len(stored))
		for _, l := range stored {
			letters = append(letters, *l)
		}
		return letters, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.DeadLetter(nil), q.letters...), nil
}

// Len returns the number of letters pushed to this queue
func (q *DeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.letters)
}
