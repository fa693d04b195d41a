package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories/memory"
)

// MockAuditRepository is a mock implementation of AuditRepository
type MockAuditRepository struct {
	mock.Mock
	mu           sync.Mutex
	insertedLogs []*models.AuditLog
}

func (m *MockAuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	args := m.Called(ctx, log)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertedLogs = append(m.insertedLogs, log)
	return args.Error(0)
}

func (m *MockAuditRepository) GetByCorrelationID(ctx context.Context, correlationID string) ([]*models.AuditLog, error) {
	args := m.Called(ctx, correlationID)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, action, limit, offset)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) GetInsertedLogs() []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AuditLog, len(m.insertedLogs))
	copy(out, m.insertedLogs)
	return out
}

func (m *MockAuditRepository) insertedCount() int {
	return len(m.GetInsertedLogs())
}

func TestAuditService_StartStop(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, service.Start())

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	// Cannot start again
	assert.Error(t, service.Start())

	require.NoError(t, service.Stop(5*time.Second))
	assert.False(t, service.GetStats().Started)

	// Stopped services reject events and a second stop
	assert.Error(t, service.LogEvent(&AuditEvent{Log: models.NewAuditLog("corr-1", models.AuditActionDecision)}))
	assert.Error(t, service.Stop(time.Second))
}

func TestAuditService_NotStarted(t *testing.T) {
	service := NewAuditService(new(MockAuditRepository), zap.NewNop(), DefaultConfig())

	err := service.LogEvent(&AuditEvent{Log: models.NewAuditLog("corr-1", models.AuditActionDecision)})
	assert.Error(t, err)
	assert.Error(t, service.Stop(time.Second))
}

func TestAuditService_LogEvent(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 2})
	require.NoError(t, service.Start())
	defer service.Stop(5 * time.Second)

	log := models.NewAuditLog("corr-1", models.AuditActionStageEntered).WithStage(models.StagePaymentRequested)
	require.NoError(t, service.LogEvent(&AuditEvent{Log: log}))

	require.Eventually(t, func() bool { return mockRepo.insertedCount() == 1 }, time.Second, 5*time.Millisecond)

	inserted := mockRepo.GetInsertedLogs()
	assert.Equal(t, "corr-1", inserted[0].CorrelationID)
	assert.Equal(t, models.AuditActionStageEntered, inserted[0].Action)
	assert.Equal(t, string(models.StagePaymentRequested), inserted[0].Stage)
}

func TestAuditService_ConcurrentLogging(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 1000, WorkerCount: 5})
	require.NoError(t, service.Start())

	goroutineCount := 10
	eventsPerGoroutine := 10
	var wg sync.WaitGroup

	for i := 0; i < goroutineCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				_ = service.LogEvent(&AuditEvent{Log: models.NewAuditLog("corr-1", models.AuditActionStageEntered)})
			}
		}()
	}
	wg.Wait()

	// Stop drains everything already queued
	require.NoError(t, service.Stop(5*time.Second))
	assert.Equal(t, goroutineCount*eventsPerGoroutine, mockRepo.insertedCount())
}

func TestAuditService_InsertFailureIsLogged(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, service.Start())

	require.NoError(t, service.LogEvent(&AuditEvent{Log: models.NewAuditLog("corr-1", models.AuditActionDecision)}))
	require.NoError(t, service.Stop(5*time.Second))
	mockRepo.AssertNumberOfCalls(t, "Insert", 1)
}

func TestAuditService_BufferFull(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	release := make(chan struct{})
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		<-release
	})

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 5, WorkerCount: 1})
	require.NoError(t, service.Start())

	successCount := 0
	for i := 0; i < 20; i++ {
		if err := service.LogEvent(&AuditEvent{Log: models.NewAuditLog("corr-1", models.AuditActionStageEntered)}); err == nil {
			successCount++
		}
	}

	// one event held by the worker plus a full buffer at most
	assert.Less(t, successCount, 20)
	assert.LessOrEqual(t, successCount, 6)

	close(release)
	require.NoError(t, service.Stop(5*time.Second))
}

func TestAuditService_StopTimeout(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	release := make(chan struct{})
	defer close(release)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		<-release
	})

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 1})
	require.NoError(t, service.Start())

	require.NoError(t, service.LogEvent(&AuditEvent{Log: models.NewAuditLog("corr-1", models.AuditActionDecision)}))

	err := service.Stop(100 * time.Millisecond)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestAuditService_GetStats(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	release := make(chan struct{})
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		<-release
	})

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 5})

	// Before start
	stats := service.GetStats()
	assert.False(t, stats.Started)
	assert.Equal(t, 5, stats.WorkerCount)
	assert.Equal(t, 100, stats.BufferSize)
	assert.Equal(t, 0, stats.PendingEvents)

	require.NoError(t, service.Start())

	for i := 0; i < 10; i++ {
		_ = service.LogEvent(&AuditEvent{Log: models.NewAuditLog("corr-1", models.AuditActionStageEntered)})
	}

	stats = service.GetStats()
	assert.True(t, stats.Started)
	assert.Greater(t, stats.PendingEvents, 0)

	close(release)
	require.NoError(t, service.Stop(5*time.Second))
}

func TestAuditService_DomainEvents(t *testing.T) {
	repos := memory.NewRepositories()
	service := NewAuditService(repos.AuditLogs, zap.NewNop(), DefaultConfig())
	require.NoError(t, service.Start())

	tx := models.TransactionRequest{
		CorrelationID:      "corr-9",
		Amount:             decimal.NewFromInt(100),
		Currency:           "USD",
		SourceAccount:      "4111111111111111",
		DestinationAccount: "acct-2",
	}
	event := models.NewPipelineEvent(models.StagePaymentRequested, tx)

	require.NoError(t, service.LogStage(event))
	require.NoError(t, service.LogDecision(&models.FusionOutcome{
		Context: models.DecisionContext{
			Transaction: tx,
			Routing:     &models.RoutingResult{Provider: "stripe", Score: 100},
			Compliance:  &models.ComplianceResult{Status: models.ComplianceClear},
			NeuralScore: 180,
		},
		Decision: models.DecisionApprove,
		Reason:   "High neural confidence",
	}))
	require.NoError(t, service.LogSettlement("corr-9", []models.SettlementRecord{
		{SettlementTx: models.SettlementTx{Chain: "solana", From: "4111111111111111", To: "acct-2"}, Status: models.SettlementRejected},
	}, errors.New("settlement rejected on solana")))
	require.NoError(t, service.LogValidationFailed("corr-9", models.StagePaymentRequested, errors.New("amount is required")))
	require.NoError(t, service.LogDeadLetter(models.DeadLetter{Event: event, Reason: "timeout", Attempts: 5}))

	require.NoError(t, service.Stop(5*time.Second))

	trail, err := service.Trail(context.Background(), "corr-9")
	require.NoError(t, err)
	require.Len(t, trail, 5)

	actions := map[models.AuditAction]*models.AuditLog{}
	for _, log := range trail {
		actions[log.Action] = log
	}
	assert.Contains(t, string(actions[models.AuditActionDecision].Details), `"provider":"stripe"`)
	assert.Contains(t, string(actions[models.AuditActionDecision].Details), `"source":"************1111"`)
	assert.Contains(t, string(actions[models.AuditActionDecision].Details), `"destination":"acct-2"`)
	assert.NotContains(t, string(actions[models.AuditActionSettlement].Details), "4111111111111111")
	require.NotNil(t, actions[models.AuditActionSettlement].ErrorMessage)
	assert.Equal(t, "timeout", *actions[models.AuditActionDeadLettered].ErrorMessage)
	assert.Equal(t, string(models.StagePaymentSettled), actions[models.AuditActionSettlement].Stage)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 1000, config.BufferSize)
	assert.Equal(t, 4, config.WorkerCount)

	service := NewAuditService(new(MockAuditRepository), zap.NewNop(), Config{})
	assert.Equal(t, 4, service.GetStats().WorkerCount)
}
