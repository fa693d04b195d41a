package providers

import (
	"context"
	"io"
	"net/http"
	"time"
)

const defaultProbeTimeout = 2 * time.Second

// HTTPProvider probes a provider's health endpoint over HTTP. Any 2xx
// response counts as reachable.
type HTTPProvider struct {
	config     ProviderConfig
	httpClient *http.Client
}

// NewHTTPProvider creates a provider probing cfg.HealthURL
func NewHTTPProvider(cfg ProviderConfig) *HTTPProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	return &HTTPProvider{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the provider name
func (p *HTTPProvider) Name() string {
	return p.config.Name
}

// Risk returns the configured risk rating
func (p *HTTPProvider) Risk() float64 {
	return p.config.risk()
}

// Ping issues a GET to the health URL
func (p *HTTPProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.HealthURL, nil)
	if err != nil {
		return &ProviderError{Provider: p.config.Name, Message: "failed to create probe request", Err: err}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Provider: p.config.Name, Message: "probe failed", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{Provider: p.config.Name, StatusCode: resp.StatusCode, Message: "unhealthy"}
	}
	return nil
}

// StaticProvider is a provider whose probe result is fixed. It stands in for
// providers without a health endpoint.
type StaticProvider struct {
	name    string
	risk    float64
	latency time.Duration
	err     error
}

// NewStaticProvider creates an always-reachable provider
func NewStaticProvider(name string, risk float64) *StaticProvider {
	if risk == 0 {
		risk = DefaultRisk
	}
	return &StaticProvider{name: name, risk: risk}
}

// WithLatency makes Ping take d
func (p *StaticProvider) WithLatency(d time.Duration) *StaticProvider {
	p.latency = d
	return p
}

// WithError makes Ping fail with err
func (p *StaticProvider) WithError(err error) *StaticProvider {
	p.err = err
	return p
}

// Name returns the provider name
func (p *StaticProvider) Name() string { return p.name }

// Risk returns the provider's risk rating
func (p *StaticProvider) Risk() float64 { return p.risk }

// Ping waits for the configured latency and returns the configured error
func (p *StaticProvider) Ping(ctx context.Context) error {
	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.err
}
