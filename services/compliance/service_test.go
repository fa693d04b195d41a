package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/internal/expr"
	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/repositories/memory"
	"github.com/upb/payment-control-plane/services"
	"github.com/upb/payment-control-plane/services/policy"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testPolicy(patterns ...string) *policy.Compiled {
	p := &policy.Compiled{}
	p.Compliance = models.CompliancePolicy{
		Velocity: models.VelocityRules{MaxAmountPerMinute: 10000, MaxTransactionsPerHour: 3},
		Anomaly:  models.AnomalyRules{SuddenSpikeThreshold: 5},
		Patterns: patterns,
	}
	for _, src := range patterns {
		p.Patterns = append(p.Patterns, expr.MustCompile(src, policy.PatternVars...))
	}
	return p
}

func tx(amount int64) models.TransactionRequest {
	return models.TransactionRequest{
		CorrelationID:      "corr-1",
		Amount:             decimal.NewFromInt(amount),
		Currency:           "USD",
		Country:            "NG",
		SourceAccount:      "wallet_1",
		DestinationAccount: "wallet_2",
	}
}

func entry(amount int64, age time.Duration) *models.HistoryEntry {
	return &models.HistoryEntry{Amount: decimal.NewFromInt(amount), Currency: "USD", Timestamp: now.Add(-age)}
}

func TestVelocityCheck(t *testing.T) {
	rules := models.VelocityRules{MaxAmountPerMinute: 1000, MaxTransactionsPerHour: 2}

	tests := []struct {
		name    string
		history []*models.HistoryEntry
		amount  int64
		want    string
	}{
		{"empty history", nil, 100, ""},
		{"exactly at minute ceiling", []*models.HistoryEntry{entry(600, 10 * time.Second)}, 400, ""},
		{"over minute ceiling", []*models.HistoryEntry{entry(600, 10 * time.Second)}, 401, IssueAmountPerMinute},
		{"old amounts ignored", []*models.HistoryEntry{entry(900, 2 * time.Minute)}, 500, ""},
		{"hour count reached", []*models.HistoryEntry{entry(1, 10 * time.Minute), entry(1, 20 * time.Minute)}, 1, IssueCountPerHour},
		{"entries older than an hour ignored", []*models.HistoryEntry{entry(1, 2 * time.Hour), entry(1, 3 * time.Hour)}, 1, ""},
		{
			"first breach only",
			[]*models.HistoryEntry{entry(900, 5 * time.Second), entry(1, 10 * time.Minute)},
			500,
			IssueAmountPerMinute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VelocityCheck(rules, tt.history, tx(tt.amount), now))
		})
	}
}

func TestAnomalyCheck(t *testing.T) {
	rules := models.AnomalyRules{SuddenSpikeThreshold: 5}
	history := []*models.HistoryEntry{entry(100, time.Hour), entry(100, 2*time.Hour)}

	assert.Equal(t, IssueSuddenSpike, AnomalyCheck(rules, history, tx(6000)))
	assert.Equal(t, IssueSuddenSpike, AnomalyCheck(rules, history, tx(500)), "ratio equal to threshold flags")
	assert.Empty(t, AnomalyCheck(rules, history, tx(499)))

	// empty history divides by one
	assert.Empty(t, AnomalyCheck(rules, nil, tx(4)))
	assert.Equal(t, IssueSuddenSpike, AnomalyCheck(rules, nil, tx(5)))

	zero := []*models.HistoryEntry{entry(0, time.Minute)}
	assert.Equal(t, IssueSuddenSpike, AnomalyCheck(rules, zero, tx(5)))
}

func TestAnomalyCheck_MinHistory(t *testing.T) {
	rules := models.AnomalyRules{SuddenSpikeThreshold: 5, MinHistory: 2}
	short := []*models.HistoryEntry{entry(100, time.Hour)}
	enough := append(short, entry(100, 2*time.Hour))

	assert.Empty(t, AnomalyCheck(rules, nil, tx(6000)))
	assert.Empty(t, AnomalyCheck(rules, short, tx(6000)))
	assert.Equal(t, IssueSuddenSpike, AnomalyCheck(rules, enough, tx(6000)))
}

func TestPatternCheck(t *testing.T) {
	p := testPolicy("amount > 5000 && country == 'NG'", "currency == 'EUR'", "amount > 1000")

	issues, err := PatternCheck(p.Patterns, tx(6000))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Pattern match triggered: amount > 5000 && country == 'NG'",
		"Pattern match triggered: amount > 1000",
	}, issues)

	issues, err = PatternCheck(p.Patterns, tx(10))
	require.NoError(t, err)
	assert.Empty(t, issues)

	_, err = PatternCheck(testPolicy("country > 5").Patterns, tx(10))
	require.Error(t, err)
	assert.True(t, services.IsConfigurationError(err))
}

func TestEvaluate(t *testing.T) {
	t.Run("clear", func(t *testing.T) {
		result, err := Evaluate(testPolicy("amount > 9000"), nil, tx(3), now)
		require.NoError(t, err)
		assert.Equal(t, models.ComplianceClear, result.Status)
		assert.Empty(t, result.Issues)
	})

	t.Run("spike flagged", func(t *testing.T) {
		history := []*models.HistoryEntry{entry(100, 2*time.Hour), entry(100, 3*time.Hour)}
		result, err := Evaluate(testPolicy(), history, tx(6000), now)
		require.NoError(t, err)
		assert.Equal(t, models.ComplianceFlagged, result.Status)
		assert.Equal(t, []string{IssueSuddenSpike}, result.Issues)
	})

	t.Run("issues ordered velocity anomaly pattern", func(t *testing.T) {
		history := []*models.HistoryEntry{entry(100, 10*time.Second)}
		result, err := Evaluate(testPolicy("country == 'NG'"), history, tx(20000), now)
		require.NoError(t, err)
		assert.Equal(t, []string{
			IssueAmountPerMinute,
			IssueSuddenSpike,
			"Pattern match triggered: country == 'NG'",
		}, result.Issues)
	})

	t.Run("clear iff no check flags", func(t *testing.T) {
		p := testPolicy("amount > 7000")
		histories := [][]*models.HistoryEntry{
			nil,
			{entry(100, time.Hour * 2)},
			{entry(5000, 5 * time.Second)},
			{entry(1, time.Minute), entry(1, 2 * time.Minute), entry(1, 3 * time.Minute)},
		}
		for _, h := range histories {
			for _, amount := range []int64{1, 50, 499, 500, 4999, 6000, 7001, 12000} {
				result, err := Evaluate(p, h, tx(amount), now)
				require.NoError(t, err)

				patterns, err := PatternCheck(p.Patterns, tx(amount))
				require.NoError(t, err)
				flagged := VelocityCheck(p.Compliance.Velocity, h, tx(amount), now) != "" ||
					AnomalyCheck(p.Compliance.Anomaly, h, tx(amount)) != "" ||
					len(patterns) > 0

				assert.Equal(t, !flagged, result.Status == models.ComplianceClear)
				assert.Equal(t, flagged, len(result.Issues) > 0)
			}
		}
	})
}

type failingHistory struct{}

func (failingHistory) List(context.Context, int) ([]*models.HistoryEntry, error) {
	return nil, errors.New("connection reset")
}

func TestService_Evaluate(t *testing.T) {
	ctx := context.Background()

	t.Run("reads history from the repository", func(t *testing.T) {
		repos := memory.NewRepositories()
		for i := 0; i < 2; i++ {
			require.NoError(t, repos.History.Append(ctx, models.NewHistoryEntry(tx(100), models.DecisionApprove)))
		}

		svc := NewService(testPolicy(), repos.History, 100, zap.NewNop())
		// keep the stored entries outside the velocity windows
		svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

		result, err := svc.Evaluate(ctx, tx(6000))
		require.NoError(t, err)
		assert.Equal(t, models.ComplianceFlagged, result.Status)
		assert.Equal(t, []string{IssueSuddenSpike}, result.Issues)
	})

	t.Run("nil history", func(t *testing.T) {
		svc := NewService(testPolicy(), nil, 100, zap.NewNop())
		result, err := svc.Evaluate(ctx, tx(3))
		require.NoError(t, err)
		assert.Equal(t, models.ComplianceClear, result.Status)
	})

	t.Run("history failure is transient", func(t *testing.T) {
		svc := NewService(testPolicy(), failingHistory{}, 100, zap.NewNop())
		_, err := svc.Evaluate(ctx, tx(3))
		require.Error(t, err)
		assert.True(t, services.IsTransientError(err))
	})
}
