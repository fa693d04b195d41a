package providers

import (
	"context"
	"fmt"
	"time"
)

// DefaultRisk is used for providers without a configured risk rating.
const DefaultRisk = 50

// Provider is a payment provider that routing can send transactions to.
type Provider interface {
	// Name returns the provider name used in routing maps
	Name() string

	// Ping probes the provider; a nil error means it is reachable
	Ping(ctx context.Context) error

	// Risk returns the provider's 0-100 risk rating
	Risk() float64
}

// ProviderConfig describes a provider built from configuration
type ProviderConfig struct {
	Name      string
	HealthURL string
	Risk      float64
	Timeout   time.Duration
}

func (c ProviderConfig) risk() float64 {
	if c.Risk == 0 {
		return DefaultRisk
	}
	return c.Risk
}

// ProviderError represents a failed provider probe
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error
func (e *ProviderError) Unwrap() error {
	return e.Err
}
