// Package registry implements the layered backend directory the router
// consults to build a request's candidate route (spec.md §4.2).
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/llm-gateway-proxy/internal/models"
)

// ErrModelNotFound is returned by BuildRoute when no backend, default or
// added, is registered under the requested model name.
var ErrModelNotFound = errors.New("model-not-found")

// Store persists the added (runtime-registered) layer so it survives a
// restart. A nil Store makes Register an in-memory-only operation.
type Store interface {
	Upsert(ctx context.Context, b *models.Backend) error
}

// Registry holds a static default layer (loaded once at startup from
// config) and a mutable added layer (populated by the admin register
// endpoint). An added entry may never shadow a default-layer name.
type Registry struct {
	mu sync.RWMutex

	defaultNames []string
	addedNames   []string
	backends     map[string]*models.Backend
	isDefault    map[string]bool
	fallbacks    map[string][]string

	store Store
}

// New creates an empty Registry. LoadDefaults seeds the static layer.
func New(store Store) *Registry {
	return &Registry{
		backends:  make(map[string]*models.Backend),
		isDefault: make(map[string]bool),
		fallbacks: make(map[string][]string),
		store:     store,
	}
}

// LoadDefaults seeds the static default layer at startup. It holds the
// registry lock while it installs the entries, like every other method.
func (r *Registry) LoadDefaults(backends []*models.Backend, fallbacks map[string][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range backends {
		if _, exists := r.backends[b.Name]; !exists {
			r.defaultNames = append(r.defaultNames, b.Name)
		}
		r.backends[b.Name] = b
		r.isDefault[b.Name] = true
	}
	for name, fb := range fallbacks {
		r.fallbacks[name] = fb
	}
}

// LoadAdded seeds the added layer from durable storage at startup,
// without re-persisting (the rows already came from the store).
func (r *Registry) LoadAdded(backends []*models.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range backends {
		if r.isDefault[b.Name] {
			continue
		}
		if _, exists := r.backends[b.Name]; !exists {
			r.addedNames = append(r.addedNames, b.Name)
		}
		r.backends[b.Name] = b
	}
}

// Lookup returns the backend registered under name, or nil.
func (r *Registry) Lookup(name string) *models.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backends[name]
}

// ListNames returns every registered name, defaults first, then added,
// each in the order it was first registered.
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defaultNames)+len(r.addedNames))
	out = append(out, r.defaultNames...)
	out = append(out, r.addedNames...)
	return out
}

// RegisterResult reports whether Register replaced an existing added entry.
type RegisterResult struct {
	Replaced bool
}

// ErrShadowsDefault is returned when a registration attempts to reuse a
// default-layer backend name.
var ErrShadowsDefault = errors.New("backend name shadows a default model")

// Register upserts a backend into the added layer and persists it. It
// rejects registrations that would shadow a default-layer name.
func (r *Registry) Register(ctx context.Context, b *models.Backend, fallbacks []string) (RegisterResult, error) {
	r.mu.Lock()
	if r.isDefault[b.Name] {
		r.mu.Unlock()
		return RegisterResult{}, fmt.Errorf("%w: %s", ErrShadowsDefault, b.Name)
	}
	_, replaced := r.backends[b.Name]
	if !replaced {
		r.addedNames = append(r.addedNames, b.Name)
	}
	r.backends[b.Name] = b
	if fallbacks != nil {
		r.fallbacks[b.Name] = fallbacks
	}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Upsert(ctx, b); err != nil {
			return RegisterResult{Replaced: replaced}, fmt.Errorf("persist backend: %w", err)
		}
	}
	return RegisterResult{Replaced: replaced}, nil
}

// BuildRoute resolves model to an ordered, deduplicated route: the
// primary backend followed by its declared fallbacks, each filtered to
// backends that are actually registered.
func (r *Registry) BuildRoute(model string) ([]*models.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary, ok := r.backends[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, model)
	}

	seen := map[string]bool{primary.Name: true}
	route := []*models.Backend{primary}
	for _, name := range r.fallbacks[model] {
		if seen[name] {
			continue
		}
		if b, ok := r.backends[name]; ok {
			route = append(route, b)
			seen[name] = true
		}
	}
	return route, nil
}
