package providers

import (
	"errors"
	"fmt"
	"sync"

	"github.com/upb/market-gateway/models"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry maps provider identities to adapters, one map per capability
type Registry struct {
	mu     sync.RWMutex
	search map[models.ProviderID]SearchProvider
	news   map[models.ProviderID]NewsProvider
	info   map[models.ProviderID]InfoProvider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		search: make(map[models.ProviderID]SearchProvider),
		news:   make(map[models.ProviderID]NewsProvider),
		info:   make(map[models.ProviderID]InfoProvider),
	}
}

// RegisterProvider adds an adapter under every capability it implements
func (r *Registry) RegisterProvider(provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	id := provider.ID()
	if id == "" {
		return errors.New("provider id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.has(id) {
		return ErrProviderAlreadyRegistered
	}

	registered := false
	if p, ok := provider.(SearchProvider); ok {
		r.search[id] = p
		registered = true
	}
	if p, ok := provider.(NewsProvider); ok {
		r.news[id] = p
		registered = true
	}
	if p, ok := provider.(InfoProvider); ok {
		r.info[id] = p
		registered = true
	}
	if !registered {
		return fmt.Errorf("provider %s implements no capability", id)
	}
	return nil
}

func (r *Registry) has(id models.ProviderID) bool {
	_, s := r.search[id]
	_, n := r.news[id]
	_, i := r.info[id]
	return s || n || i
}

// Search returns the search adapter of id
func (r *Registry) Search(id models.ProviderID) (SearchProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.search[id]; ok {
		return p, nil
	}
	return nil, ErrProviderNotFound
}

// News returns the news adapter of id
func (r *Registry) News(id models.ProviderID) (NewsProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.news[id]; ok {
		return p, nil
	}
	return nil, ErrProviderNotFound
}

// Info returns the info adapter of id
func (r *Registry) Info(id models.ProviderID) (InfoProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.info[id]; ok {
		return p, nil
	}
	return nil, ErrProviderNotFound
}

// Capable lists the providers implementing an operation, in AllProviders order
func (r *Registry) Capable(operation models.Operation) []models.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]models.ProviderID, 0, len(models.AllProviders))
	for _, id := range models.AllProviders {
		var ok bool
		switch operation {
		case models.OperationSearch:
			_, ok = r.search[id]
		case models.OperationNews:
			_, ok = r.news[id]
		case models.OperationInfo:
			_, ok = r.info[id]
		}
		if ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// ProviderBuilder is a function that creates a provider instance
type ProviderBuilder func(cfg models.ProviderConfig, client *HTTPClient) Provider

// RegistryBuilder helps build a registry with multiple providers
type RegistryBuilder struct {
	builders map[models.ProviderID]ProviderBuilder
}

// NewRegistryBuilder creates a new registry builder
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{
		builders: make(map[models.ProviderID]ProviderBuilder),
	}
}

// WithProviderBuilder registers a provider builder
func (rb *RegistryBuilder) WithProviderBuilder(id models.ProviderID, builder ProviderBuilder) *RegistryBuilder {
	rb.builders[id] = builder
	return rb
}

// Build creates one adapter per config that has a builder. Each adapter gets
// an HTTP client bounded by its configured timeout.
func (rb *RegistryBuilder) Build(configs map[models.ProviderID]models.ProviderConfig) (*Registry, error) {
	registry := NewRegistry()
	for _, id := range models.AllProviders {
		cfg, ok := configs[id]
		if !ok {
			continue
		}
		builder, exists := rb.builders[id]
		if !exists {
			continue
		}
		cfg.ID = id
		if err := registry.RegisterProvider(builder(cfg, NewHTTPClient(cfg.Timeout))); err != nil {
			return nil, fmt.Errorf("failed to register provider %s: %w", id, err)
		}
	}
	return registry, nil
}
