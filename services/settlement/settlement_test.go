package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/payment-control-plane/config"
	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/services"
)

var chainPolicy = models.ChainPolicy{
	HighRiskCountry: "ethereum",
	LowFeePreferred: "solana",
	FallbackChain:   "polygon",
}

func newTx(countryRisk float64) models.TransactionRequest {
	return models.TransactionRequest{
		CorrelationID:      "corr-1",
		Amount:             decimal.NewFromInt(250),
		Currency:           "USD",
		SourceAccount:      "wallet_1",
		DestinationAccount: "wallet_2",
		CountryRisk:        countryRisk,
	}
}

type countingProbe struct {
	mu    sync.Mutex
	gas   float64
	err   error
	calls int
}

func (p *countingProbe) Fee(context.Context, string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.gas, p.err
}

type scriptedSubmitter struct {
	statuses map[string]string
	errs     map[string]error
	calls    []models.SettlementTx
}

func (s *scriptedSubmitter) Submit(_ context.Context, tx models.SettlementTx) (string, error) {
	s.calls = append(s.calls, tx)
	if err := s.errs[tx.Chain]; err != nil {
		return "", err
	}
	if status, ok := s.statuses[tx.Chain]; ok {
		return status, nil
	}
	return models.SettlementSubmitted, nil
}

func TestChooseChain(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		countryRisk float64
		probe       *countingProbe
		want        string
		probed      int
	}{
		{"high risk ignores fees", 80, &countingProbe{gas: 1}, "ethereum", 0},
		{"risk at threshold is not high", 70, &countingProbe{gas: 5}, "solana", 1},
		{"cheap fees", 10, &countingProbe{gas: 19.9}, "solana", 1},
		{"fee at threshold", 10, &countingProbe{gas: 20}, "polygon", 1},
		{"probe failure", 10, &countingProbe{err: errors.New("timeout")}, "polygon", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(chainPolicy, tt.probe, &scriptedSubmitter{}, zap.NewNop())
			assert.Equal(t, tt.want, svc.ChooseChain(ctx, newTx(tt.countryRisk)))
			assert.Equal(t, tt.probed, tt.probe.calls)
		})
	}

	t.Run("custom thresholds", func(t *testing.T) {
		p := chainPolicy
		p.HighRiskThreshold = 50
		p.GasThreshold = 5
		svc := NewService(p, &countingProbe{gas: 6}, &scriptedSubmitter{}, zap.NewNop())
		assert.Equal(t, "ethereum", svc.ChooseChain(ctx, newTx(51)))
		assert.Equal(t, "polygon", svc.ChooseChain(ctx, newTx(10)))
	})
}

func TestBridgeFallback(t *testing.T) {
	svc := NewService(chainPolicy, &countingProbe{}, &scriptedSubmitter{}, zap.NewNop())
	assert.Equal(t, "ethereum", svc.BridgeFallback("solana"))
	assert.Equal(t, "polygon", svc.BridgeFallback("ethereum"))

	p := chainPolicy
	p.BridgeFallback = map[string]string{"ethereum": "arbitrum"}
	svc = NewService(p, &countingProbe{}, &scriptedSubmitter{}, zap.NewNop())
	assert.Equal(t, "arbitrum", svc.BridgeFallback("ethereum"))
	assert.Equal(t, "polygon", svc.BridgeFallback("solana"))
}

func TestBuildTx(t *testing.T) {
	before := time.Now().UnixNano()
	tx := BuildTx("solana", newTx(0))
	assert.Equal(t, "solana", tx.Chain)
	assert.Equal(t, "wallet_1", tx.From)
	assert.Equal(t, "wallet_2", tx.To)
	assert.True(t, decimal.NewFromInt(250).Equal(tx.Amount))
	assert.GreaterOrEqual(t, tx.Nonce, before)
}

func TestSettle(t *testing.T) {
	ctx := context.Background()

	t.Run("high risk country settles on the high risk chain", func(t *testing.T) {
		probe := &countingProbe{gas: 1}
		submitter := &scriptedSubmitter{}
		svc := NewService(chainPolicy, probe, submitter, zap.NewNop())

		records, err := svc.Settle(ctx, newTx(80))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "ethereum", records[0].Chain)
		assert.True(t, records[0].Submitted())
		assert.Zero(t, probe.calls)
	})

	t.Run("rejection resubmits once on the bridge", func(t *testing.T) {
		submitter := &scriptedSubmitter{statuses: map[string]string{
			"solana":   models.SettlementRejected,
			"ethereum": models.SettlementRejected,
		}}
		svc := NewService(chainPolicy, &countingProbe{gas: 1}, submitter, zap.NewNop())

		records, err := svc.Settle(ctx, newTx(0))
		require.Error(t, err)
		assert.True(t, services.IsSettlementRejected(err))
		assert.ErrorIs(t, err, services.ErrSettlementRejected)
		assert.Contains(t, err.Error(), "rejected on ethereum")
		assert.Equal(t, "ethereum", services.GetErrorDetails(err)["chain"])

		require.Len(t, submitter.calls, 2)
		require.Len(t, records, 2)
		assert.Equal(t, "solana", records[0].Chain)
		assert.Equal(t, "ethereum", records[1].Chain)
		assert.Equal(t, models.SettlementRejected, records[1].Status)
	})

	t.Run("fallback success", func(t *testing.T) {
		submitter := &scriptedSubmitter{statuses: map[string]string{"solana": models.SettlementRejected}}
		svc := NewService(chainPolicy, &countingProbe{gas: 1}, submitter, zap.NewNop())

		records, err := svc.Settle(ctx, newTx(0))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.True(t, records[1].Submitted())
		assert.Equal(t, "ethereum", records[1].Chain)
	})

	t.Run("transport failure on both attempts is transient", func(t *testing.T) {
		submitter := &scriptedSubmitter{errs: map[string]error{
			"polygon": errors.New("connection refused"),
		}}
		svc := NewService(chainPolicy, &countingProbe{gas: 50}, submitter, zap.NewNop())

		records, err := svc.Settle(ctx, newTx(0))
		require.Error(t, err)
		assert.True(t, services.IsTransientError(err))
		assert.ErrorIs(t, err, services.ErrSubmissionFailed)
		assert.Contains(t, err.Error(), "polygon: connection refused")
		require.Len(t, records, 2)
		assert.Equal(t, "polygon", records[1].Chain)
		assert.Equal(t, "connection refused", records[1].Error)
	})
}

func TestSimulatedGateway(t *testing.T) {
	ctx := context.Background()
	gw := NewSimulatedGateway(12).Reject("solana")

	fee, err := gw.Fee(ctx, "solana")
	require.NoError(t, err)
	assert.Equal(t, 12.0, fee)

	status, err := gw.Submit(ctx, models.SettlementTx{Chain: "solana"})
	require.NoError(t, err)
	assert.Equal(t, models.SettlementRejected, status)

	status, err = gw.Submit(ctx, models.SettlementTx{Chain: "ethereum"})
	require.NoError(t, err)
	assert.Equal(t, models.SettlementSubmitted, status)
	assert.Len(t, gw.Submitted(), 2)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = gw.Submit(cancelled, models.SettlementTx{Chain: "ethereum"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPGateway(t *testing.T) {
	var received models.SettlementTx
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fee":
			assert.Equal(t, "solana", r.URL.Query().Get("chain"))
			_, _ = w.Write([]byte(`{"gas": 7.5}`))
		case "/submit":
			assert.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			_, _ = w.Write([]byte(`{"status": "submitted"}`))
		default:
			http.Error(w, "unknown chain", http.StatusBadGateway)
		}
	}))
	defer server.Close()

	gw := NewGateway(config.ChainConfig{
		FeeEndpoint:    server.URL + "/fee",
		SubmitEndpoint: server.URL + "/submit",
		Timeout:        time.Second,
	})
	_, ok := gw.(*HTTPGateway)
	require.True(t, ok)

	ctx := context.Background()
	fee, err := gw.Fee(ctx, "solana")
	require.NoError(t, err)
	assert.Equal(t, 7.5, fee)

	status, err := gw.Submit(ctx, BuildTx("solana", newTx(0)))
	require.NoError(t, err)
	assert.Equal(t, models.SettlementSubmitted, status)
	assert.Equal(t, "wallet_1", received.From)

	broken := NewHTTPGateway(config.ChainConfig{FeeEndpoint: server.URL + "/nope", SubmitEndpoint: server.URL + "/nope", Timeout: time.Second})
	_, err = broken.Fee(ctx, "solana")
	assert.ErrorContains(t, err, "502")
}

func TestNewGateway_Simulated(t *testing.T) {
	gw := NewGateway(config.ChainConfig{SimulatedGas: 3})
	_, ok := gw.(*SimulatedGateway)
	assert.True(t, ok)
}
