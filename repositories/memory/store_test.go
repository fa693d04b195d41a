package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories"
)

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()

	_, err := repos.Accounts.Get(ctx, "wallet_1")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	account := models.NewAccount("wallet_1", "USD")
	require.NoError(t, repos.Accounts.Put(ctx, account))
	require.NoError(t, repos.Accounts.Put(ctx, models.NewAccount("bank_settlement", "USD")))

	// mutating the caller's copy does not leak into the store
	account.Balance = decimal.NewFromInt(999)

	got, err := repos.Accounts.Get(ctx, "wallet_1")
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())

	list, err := repos.Accounts.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bank_settlement", list[0].ID)
	assert.Equal(t, "wallet_1", list[1].ID)
}

func TestJournalRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()

	amount := decimal.NewFromInt(100)
	require.NoError(t, repos.Journal.Append(ctx, []models.JournalEntry{
		models.NewJournalEntry("c1", "wallet_1", amount, models.EntryTypeDebit),
		models.NewJournalEntry("c1", "wallet_2", amount, models.EntryTypeCredit),
	}))
	require.NoError(t, repos.Journal.Append(ctx, []models.JournalEntry{
		models.NewJournalEntry("c2", "wallet_1", amount, models.EntryTypeDebit),
	}))

	entries, err := repos.Journal.ListByCorrelationID(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, models.SignedSum(entries).IsZero())

	latest, err := repos.Journal.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "c2", latest[0].CorrelationID)

	all, err := repos.Journal.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHistoryRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()
	now := time.Now()

	for i, age := range []time.Duration{2 * time.Hour, 30 * time.Minute, 10 * time.Second} {
		require.NoError(t, repos.History.Append(ctx, &models.HistoryEntry{
			CorrelationID: string(rune('a' + i)),
			Amount:        decimal.NewFromInt(int64(100 * (i + 1))),
			Timestamp:     now.Add(-age),
		}))
	}

	recent, err := repos.History.Since(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].CorrelationID)

	last, err := repos.History.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "c", last[1].CorrelationID)
}

func TestRouteDecisionRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()

	require.NoError(t, repos.RouteDecisions.Append(ctx, &models.RouteDecision{CorrelationID: "c1", Provider: "stripe", Score: 100}))
	require.NoError(t, repos.RouteDecisions.Append(ctx, &models.RouteDecision{CorrelationID: "c2", Provider: "adyen", Score: 80, Failover: true}))

	list, err := repos.RouteDecisions.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "stripe", list[0].Provider)
	assert.True(t, list[1].Failover)
}

func TestPolicyRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()

	_, err := repos.Policies.GetByName(ctx, "default")
	assert.True(t, errors.Is(err, repositories.ErrNotFound))

	require.NoError(t, repos.Policies.Create(ctx, models.NewPolicyRecord("default", "1", []byte(`{"name":"default"}`))))
	v2 := models.NewPolicyRecord("default", "2", []byte(`{"name":"default","version":"2"}`))
	require.NoError(t, repos.Policies.Create(ctx, v2))
	disabled := models.NewPolicyRecord("default", "3", []byte(`{}`))
	disabled.Enabled = false
	require.NoError(t, repos.Policies.Create(ctx, disabled))

	got, err := repos.Policies.GetByName(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "2", got.Version)

	list, err := repos.Policies.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestAuditRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()

	for _, action := range []models.AuditAction{
		models.AuditActionStageEntered,
		models.AuditActionDecision,
		models.AuditActionStageEntered,
		models.AuditActionStageEntered,
	} {
		require.NoError(t, repos.AuditLogs.Insert(ctx, models.NewAuditLog("c1", action)))
	}
	require.NoError(t, repos.AuditLogs.Insert(ctx, models.NewAuditLog("c2", models.AuditActionDecision)))

	trail, err := repos.AuditLogs.GetByCorrelationID(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, trail, 4)

	page, err := repos.AuditLogs.GetByAction(ctx, models.AuditActionStageEntered, 2, 1)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	decisions, err := repos.AuditLogs.GetByAction(ctx, models.AuditActionDecision, 10, 0)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "c2", decisions[0].CorrelationID)
}

func TestDeadLetterRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()

	event := models.NewPipelineEvent(models.StagePaymentRequested, models.TransactionRequest{Currency: "USD"})
	require.NoError(t, repos.DeadLetters.Insert(ctx, &models.DeadLetter{Event: event, Reason: "boom", Attempts: 5}))

	list, err := repos.DeadLetters.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "boom", list[0].Reason)
	assert.Equal(t, event.CorrelationID, list[0].Event.CorrelationID)
}

func TestTransactionManager(t *testing.T) {
	tm := NewTransactionManager()
	ctx := context.Background()

	tx, err := tm.Begin(ctx)
	require.NoError(t, err)
	assert.NoError(t, tx.Rollback())
	assert.NoError(t, tx.Commit())
}
