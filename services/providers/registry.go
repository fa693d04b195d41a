package providers

import (
	"errors"
	"sort"
	"sync"

	"github.com/upb/payment-control-plane/config"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry manages provider instances by name
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// RegisterProvider registers a provider instance
func (r *Registry) RegisterProvider(provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return ErrProviderAlreadyRegistered
	}
	r.providers[name] = provider
	return nil
}

// GetProvider retrieves a provider by name
func (r *Registry) GetProvider(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, ErrProviderNotFound
	}
	return provider, nil
}

// ListProviders returns all registered provider names, sorted
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetProviderCount returns the number of registered providers
func (r *Registry) GetProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// RegistryBuilder helps build a registry from configuration
type RegistryBuilder struct {
	registry *Registry
	err      error
}

// NewRegistryBuilder creates a new registry builder
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{registry: NewRegistry()}
}

// WithProvider directly adds a provider instance
func (rb *RegistryBuilder) WithProvider(provider Provider) *RegistryBuilder {
	if err := rb.registry.RegisterProvider(provider); err != nil && rb.err == nil {
		rb.err = err
	}
	return rb
}

// WithConfig adds an HTTP provider for every configured health endpoint
func (rb *RegistryBuilder) WithConfig(cfg config.ProvidersConfig) *RegistryBuilder {
	names := make([]string, 0, len(cfg.Endpoints))
	for name := range cfg.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rb.WithProvider(NewHTTPProvider(ProviderConfig{
			Name:      name,
			HealthURL: cfg.Endpoints[name],
			Risk:      cfg.Risks[name],
			Timeout:   cfg.ProbeTimeout,
		}))
	}
	return rb
}

// WithStatic adds an always-reachable provider for each name not yet registered
func (rb *RegistryBuilder) WithStatic(names []string, risks map[string]float64) *RegistryBuilder {
	for _, name := range names {
		if _, err := rb.registry.GetProvider(name); err == nil {
			continue
		}
		rb.WithProvider(NewStaticProvider(name, risks[name]))
	}
	return rb
}

// Build returns the registry or the first registration error
func (rb *RegistryBuilder) Build() (*Registry, error) {
	if rb.err != nil {
		return nil, rb.err
	}
	return rb.registry, nil
}
