package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/upb/payment-control-plane/config"
	"github.com/upb/payment-control-plane/models"
)

// FeeProbe reports a chain's current fee indicator.
type FeeProbe interface {
	Fee(ctx context.Context, chain string) (float64, error)
}

// Submitter hands a transaction to a chain and returns the chain's status.
type Submitter interface {
	Submit(ctx context.Context, tx models.SettlementTx) (string, error)
}

// Gateway is a chain endpoint that can both probe fees and submit.
type Gateway interface {
	FeeProbe
	Submitter
}

// NewGateway returns an HTTP gateway when cfg names endpoints, otherwise a
// simulated one.
func NewGateway(cfg config.ChainConfig) Gateway {
	if cfg.FeeEndpoint == "" || cfg.SubmitEndpoint == "" {
		return NewSimulatedGateway(cfg.SimulatedGas)
	}
	return NewHTTPGateway(cfg)
}

// HTTPGateway talks to a chain gateway service over HTTP.
type HTTPGateway struct {
	feeURL     string
	submitURL  string
	httpClient *http.Client
}

// NewHTTPGateway creates a gateway for cfg's endpoints.
func NewHTTPGateway(cfg config.ChainConfig) *HTTPGateway {
	return &HTTPGateway{
		feeURL:     cfg.FeeEndpoint,
		submitURL:  cfg.SubmitEndpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type feeResponse struct {
	Gas float64 `json:"gas"`
}

type submitResponse struct {
	Status string `json:"status"`
}

// Fee issues GET <fee endpoint>?chain=<chain>.
func (g *HTTPGateway) Fee(ctx context.Context, chain string) (float64, error) {
	u, err := url.Parse(g.feeURL)
	if err != nil {
		return 0, fmt.Errorf("invalid fee endpoint: %w", err)
	}
	q := u.Query()
	q.Set("chain", chain)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create fee request: %w", err)
	}

	var out feeResponse
	if err := g.do(req, &out); err != nil {
		return 0, err
	}
	return out.Gas, nil
}

// Submit POSTs tx as JSON and returns the reported status.
func (g *HTTPGateway) Submit(ctx context.Context, tx models.SettlementTx) (string, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.submitURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out submitResponse
	if err := g.do(req, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (g *HTTPGateway) do(req *http.Request, out interface{}) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chain gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("chain gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode chain gateway response: %w", err)
	}
	return nil
}

// SimulatedGateway reports a fixed fee and accepts every submission except
// on chains marked as rejecting.
type SimulatedGateway struct {
	mu        sync.Mutex
	gas       float64
	rejecting map[string]bool
	submitted []models.SettlementTx
}

// NewSimulatedGateway creates a gateway reporting gas for every chain.
func NewSimulatedGateway(gas float64) *SimulatedGateway {
	return &SimulatedGateway{gas: gas, rejecting: map[string]bool{}}
}

// Reject makes submissions to chain come back rejected.
func (g *SimulatedGateway) Reject(chain string) *SimulatedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejecting[chain] = true
	return g
}

// Fee returns the configured gas.
func (g *SimulatedGateway) Fee(ctx context.Context, chain string) (float64, error) {
	return g.gas, ctx.Err()
}

// Submit records tx and returns its simulated status.
func (g *SimulatedGateway) Submit(ctx context.Context, tx models.SettlementTx) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.submitted = append(g.submitted, tx)
	if g.rejecting[tx.Chain] {
		return models.SettlementRejected, nil
	}
	return models.SettlementSubmitted, nil
}

// Submitted returns every transaction handed to the gateway.
func (g *SimulatedGateway) Submitted() []models.SettlementTx {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]models.SettlementTx, len(g.submitted))
	copy(out, g.submitted)
	return out
}
