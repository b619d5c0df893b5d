package chatbox

import (
	"context"
	"fmt"
	"sort"
)

// ProviderFactory builds a Provider from resolved settings.
type ProviderFactory func(ctx context.Context, settings ProviderSettings) (Provider, error)

// FallbackFactory builds a provider for an ID with no registered factory.
type FallbackFactory func(ctx context.Context, id ProviderID, settings ProviderSettings) (Provider, error)

// Registry maps provider IDs to factories.
type Registry struct {
	factories map[ProviderID]ProviderFactory
	fallback  FallbackFactory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[ProviderID]ProviderFactory)}
}

// Register adds or replaces the factory for id.
func (r *Registry) Register(id ProviderID, f ProviderFactory) {
	r.factories[id] = f
}

// SetFallback serves every unregistered ID with f, so providers added to the
// settings after startup can still be opened.
func (r *Registry) SetFallback(f FallbackFactory) {
	r.fallback = f
}

// Has reports whether id can be opened.
func (r *Registry) Has(id ProviderID) bool {
	if id == "" {
		return false
	}
	_, ok := r.factories[id]
	return ok || r.fallback != nil
}

// IDs returns the registered provider IDs, sorted. IDs served only by the
// fallback are not listed.
func (r *Registry) IDs() []ProviderID {
	ids := make([]ProviderID, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Open validates settings for id and constructs the provider. Validation
// happens before the factory runs so misconfiguration never reaches the
// network.
func (r *Registry) Open(ctx context.Context, id ProviderID, settings ProviderSettings) (Provider, error) {
	if !r.Has(id) {
		return nil, &ConfigurationError{Provider: id, Field: "provider", Reason: fmt.Sprintf("unknown provider %q", id)}
	}
	if err := settings.Validate(id); err != nil {
		return nil, err
	}
	if f, ok := r.factories[id]; ok {
		return f(ctx, settings)
	}
	return r.fallback(ctx, id, settings)
}
