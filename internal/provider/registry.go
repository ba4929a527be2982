package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Registry manages the set of registered providers.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	order       []string
	defaultName string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider. The first registered provider becomes the default
// unless a later one is registered with isDefault.
func (r *Registry) Register(p Provider, isDefault bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if name == "" {
		return fmt.Errorf("provider name is empty")
	}
	if _, ok := r.providers[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	r.providers[name] = p
	r.order = append(r.order, name)
	if isDefault || r.defaultName == "" {
		r.defaultName = name
	}
	return nil
}

// Get returns the provider with the given name, or the default provider when
// name is empty.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultName
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}

// Remove unregisters and returns a provider. The caller is responsible for
// closing it.
func (r *Registry) Remove(name string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.providers, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.defaultName == name {
		r.defaultName = ""
		if len(r.order) > 0 {
			r.defaultName = r.order[0]
		}
	}
	return p, nil
}

// Default returns the name of the default provider, if any.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// List returns providers in registration order.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.providers[name])
	}
	return result
}

// Count returns the number of registered providers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// InitAll initializes all providers concurrently. Failures are logged and do
// not abort the others; the first error is returned.
func (r *Registry) InitAll(ctx context.Context, logger zerolog.Logger) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, p := range r.List() {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			if err := p.Init(ctx); err != nil {
				logger.Error().Err(err).Str("provider", p.Name()).Msg("Provider init failed")
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("init %s: %w", p.Name(), err)
				}
				mu.Unlock()
				return
			}
			logger.Info().Str("provider", p.Name()).Str("kind", string(p.Kind())).Msg("Provider initialized")
		}(p)
	}

	wg.Wait()
	return firstErr
}

// HealthAll probes every provider and returns name -> healthy.
func (r *Registry) HealthAll(ctx context.Context) map[string]bool {
	results := make(map[string]bool)
	for _, p := range r.List() {
		results[p.Name()] = p.Healthy(ctx)
	}
	return results
}

// CloseAll closes every provider, keeping the registry contents.
func (r *Registry) CloseAll(logger zerolog.Logger) {
	for _, p := range r.List() {
		if err := p.Close(); err != nil {
			logger.Error().Err(err).Str("provider", p.Name()).Msg("Provider close failed")
		}
	}
}
