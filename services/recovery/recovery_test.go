package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/config"
	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories/memory"
	"github.com/upb/payment-control-plane/services"
	"github.com/upb/payment-control-plane/services/pipeline"
)

var fastPolicy = Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}

func testEvent() models.PipelineEvent {
	return models.NewPipelineEvent(models.StagePaymentValidated, models.TransactionRequest{
		Amount:             decimal.NewFromInt(100),
		Currency:           "USD",
		SourceAccount:      "wallet_1",
		DestinationAccount: "wallet_2",
	})
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	for k := 0; k < 5; k++ {
		t.Run(fmt.Sprintf("%d failures", k), func(t *testing.T) {
			calls := 0
			var delays []time.Duration

			got, err := Retry(context.Background(), fastPolicy, func(context.Context) (string, error) {
				calls++
				if calls <= k {
					return "", fmt.Errorf("attempt %d", calls)
				}
				return "settled", nil
			}, func(a Attempt) {
				delays = append(delays, a.Delay)
			})

			require.NoError(t, err)
			assert.Equal(t, "settled", got)
			assert.Equal(t, k+1, calls)
			require.Len(t, delays, k)
			for i := 1; i < len(delays); i++ {
				assert.Greater(t, delays[i], delays[i-1])
				assert.Equal(t, 2*delays[i-1], delays[i])
			}
			if k > 0 {
				assert.Equal(t, time.Millisecond, delays[0])
			}
		})
	}
}

func TestRetry_Exhausted(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy, func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("attempt %d", calls)
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, "attempt 5", err.Error())
}

func TestRetry_PermanentErrorsAreNotRetried(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy, func(context.Context) (int, error) {
		calls++
		return 0, services.ErrLedgerRuleFailed.Wrap(errors.New("Validation failed: amount > 0"))
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, services.IsValidationError(err))
}

func TestRetry_DefaultAttempts(t *testing.T) {
	calls := 0
	_, _ = Retry(context.Background(), Policy{BaseDelay: time.Microsecond}, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	}, nil)
	assert.Equal(t, DefaultMaxAttempts, calls)
}

func TestPolicy_DefaultBaseDelay(t *testing.T) {
	b := Policy{}.backOff()
	var delays []time.Duration
	for i := 0; i < 4; i++ {
		delays = append(delays, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		DefaultBaseDelay, 2 * DefaultBaseDelay, 4 * DefaultBaseDelay, 8 * DefaultBaseDelay,
	}, delays)
}

func TestRetry_ZeroBaseDelayStillBacksOff(t *testing.T) {
	var delays []time.Duration
	_, err := Retry(context.Background(), Policy{MaxAttempts: 3}, func(context.Context) (int, error) {
		return 0, errors.New("boom")
	}, func(a Attempt) {
		delays = append(delays, a.Delay)
	})

	require.Error(t, err)
	assert.Equal(t, []time.Duration{DefaultBaseDelay, 2 * DefaultBaseDelay}, delays)
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, Policy{MaxAttempts: 5, BaseDelay: time.Hour}, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("down")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.PipelineConfig{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond})
	assert.Equal(t, Policy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond}, p)
}

func TestSafeProcess_Success(t *testing.T) {
	dlq := NewDeadLetterQueue(nil, zap.NewNop())
	r := New(fastPolicy, dlq, zap.NewNop())

	calls := 0
	ok := r.SafeProcess(context.Background(), func(context.Context, models.PipelineEvent) error {
		calls++
		if calls < 3 {
			return services.WrapTransient("probe timeout", nil)
		}
		return nil
	}, testEvent())

	assert.True(t, ok)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, dlq.Len())
}

func TestSafeProcess_DeadLettersAfterFiveAttempts(t *testing.T) {
	ctx := context.Background()
	repos := memory.NewRepositories()
	dlq := NewDeadLetterQueue(repos.DeadLetters, zap.NewNop())
	r := New(fastPolicy, dlq, zap.NewNop())

	var observed []models.DeadLetter
	dlq.Observe(func(l models.DeadLetter) { observed = append(observed, l) })

	event := testEvent()
	calls := 0
	ok := r.SafeProcess(ctx, func(context.Context, models.PipelineEvent) error {
		calls++
		return fmt.Errorf("submission failed on attempt %d", calls)
	}, event)

	assert.False(t, ok)
	assert.Equal(t, 5, calls)

	letters, err := dlq.List(ctx)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	letter := letters[0]
	assert.Equal(t, event.CorrelationID, letter.Event.CorrelationID)
	assert.Equal(t, "submission failed on attempt 5", letter.Reason)
	assert.Equal(t, 5, letter.Attempts)
	require.Len(t, letter.Errors, 5)
	assert.Equal(t, "submission failed on attempt 1", letter.Errors[0])
	require.Len(t, observed, 1)
	assert.Equal(t, letter.ID, observed[0].ID)
}

func TestSafeProcess_PermanentFailureDeadLettersImmediately(t *testing.T) {
	dlq := NewDeadLetterQueue(nil, zap.NewNop())
	r := New(fastPolicy, dlq, zap.NewNop())

	calls := 0
	ok := r.SafeProcess(context.Background(), func(context.Context, models.PipelineEvent) error {
		calls++
		return services.WrapConfiguration("policy not configured", nil)
	}, testEvent())

	assert.False(t, ok)
	assert.Equal(t, 1, calls)
	letters, err := r.DeadLetters().List(context.Background())
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, 1, letters[0].Attempts)
}

func TestReplayEngine(t *testing.T) {
	replay := NewReplayEngine()
	a, b := testEvent(), testEvent()
	replay.Record(a)
	replay.Record(b)
	replay.Record(a)

	bus := pipeline.NewEventBus()
	assert.Equal(t, 3, replay.Replay(bus))
	assert.Equal(t, 3, bus.Len())

	var seen []string
	require.NoError(t, bus.Consume(context.Background(), func(_ context.Context, e models.PipelineEvent) error {
		seen = append(seen, e.CorrelationID)
		return nil
	}))
	assert.Equal(t, []string{a.CorrelationID, b.CorrelationID, a.CorrelationID}, seen)
	assert.Len(t, replay.Events(), 3)
}

func TestReplayThroughOrchestrator(t *testing.T) {
	replay := NewReplayEngine()
	dlq := NewDeadLetterQueue(nil, zap.NewNop())
	o := pipeline.NewOrchestrator(New(fastPolicy, dlq, zap.NewNop()), replay, zap.NewNop())

	event := models.NewPipelineEvent(models.StagePaymentRequested, testEvent().Payload)
	first := o.Start(context.Background(), event)
	require.True(t, first.Completed(event.CorrelationID))

	again := o.Run(context.Background(), func(p pipeline.Publisher) { replay.Replay(p) })
	assert.True(t, again.Completed(event.CorrelationID))
	assert.Len(t, replay.Events(), 1)
}
