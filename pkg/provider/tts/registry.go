package tts

import "sync"

// FallbackKey is the registry key of the default provider. A [Registry]
// always holds a binding for it, so [Registry.Resolve] can never miss.
const FallbackKey = "dummy"

// Registry maps provider keys to Provider implementations with a guaranteed
// fallback: resolving an unknown or empty key returns the default provider
// rather than an error. It is safe for concurrent use; registration after
// traffic has begun is allowed but not synchronised with in-flight requests.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	fallback  Provider
}

// NewRegistry returns a Registry whose fallback provider is registered under
// [FallbackKey]. fallback must not be nil.
func NewRegistry(fallback Provider) *Registry {
	return &Registry{
		providers: map[string]Provider{FallbackKey: fallback},
		fallback:  fallback,
	}
}

// Register binds or rebinds key to p. Registering under [FallbackKey] also
// replaces the fallback returned for unknown keys.
func (r *Registry) Register(key string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[key] = p
	if key == FallbackKey {
		r.fallback = p
	}
}

// Resolve returns the provider bound to key, or the fallback provider when
// key is empty or unbound. It never fails: absence of a binding is policy,
// not an error.
func (r *Registry) Resolve(key string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if key != "" {
		if p, ok := r.providers[key]; ok {
			return p
		}
	}
	return r.fallback
}

// Keys returns the currently registered provider keys in unspecified order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.providers))
	for k := range r.providers {
		keys = append(keys, k)
	}
	return keys
}
