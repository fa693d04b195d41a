package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/payment-control-plane/config"
	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/services"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Storage:     config.StorageMemory,
		Pipeline: config.PipelineConfig{
			MaxAttempts:        3,
			BaseDelay:          time.Millisecond,
			PolicySource:       config.PolicySourceFile,
			PolicyPath:         "../policies/default.json",
			PolicyName:         "default",
			PolicyCacheTTL:     time.Minute,
			HistoryLimit:       100,
			SpeculativeEnabled: true,
			AuditWorkers:       2,
			AuditBuffer:        64,
		},
		Providers: config.ProvidersConfig{
			Risks:        map[string]float64{"stripe": 10},
			ProbeTimeout: time.Second,
		},
		Chain: config.ChainConfig{
			Timeout:      time.Second,
			SimulatedGas: 10,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:    "debug",
			LogFormat:   "text",
			ServiceName: "paymentd-test",
		},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("in-memory wiring", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.Nil(t, deps.DB)
		assert.NotNil(t, deps.Repos)
		assert.NotNil(t, deps.TxManager)
		assert.Equal(t, "default", deps.Policy.Name)
		assert.ElementsMatch(t, []string{"adyen", "payu", "paypal", "stripe"}, deps.ProviderRegistry.ListProviders())
		assert.Len(t, deps.SpeculativePaths, 6)
		assert.NoError(t, deps.AuditReady(ctx))

		require.NoError(t, deps.Close(ctx))
		assert.Error(t, deps.AuditReady(ctx))
	})

	t.Run("missing policy file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Pipeline.PolicyPath = "does/not/exist.json"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.True(t, services.IsConfigurationError(err))
	})

	t.Run("repository policy not imported", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Pipeline.PolicySource = config.PolicySourceRepository

		_, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.True(t, services.IsConfigurationError(err))
	})
}

// permissivePolicy writes the default policy with an anomaly threshold high
// enough for a first transaction against an empty history.
func permissivePolicy(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../policies/default.json")
	require.NoError(t, err)

	var doc models.Policy
	require.NoError(t, json.Unmarshal(data, &doc))
	doc.Compliance.Anomaly.SuddenSpikeThreshold = 1000

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "permissive.json")
	require.NoError(t, os.WriteFile(path, out, 0o600))
	return path
}

func TestDependencies_AuthorizeEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Pipeline.PolicyPath = permissivePolicy(t)

	deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close(ctx)

	outcome, err := deps.Authorization.Authorize(ctx, models.TransactionRequest{
		Amount:             decimal.NewFromInt(250),
		Currency:           "USD",
		Country:            "US",
		MCC:                "5411",
		SourceAccount:      "acct-1",
		DestinationAccount: "acct-2",
		CountryRisk:        10,
	})
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	assert.Equal(t, models.DecisionApprove, outcome.Decision)
	require.NotEmpty(t, outcome.Settlements)
	assert.Equal(t, "solana", outcome.Settlements[0].Chain)
	assert.NotNil(t, outcome.Speculative)

	accounts, err := deps.Ledger.Accounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	history, err := deps.Repos.History.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	routes, err := deps.Routing.Decisions(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, routes)
}
