package generation

import "fmt"

// DefaultPreferenceOrder is the fixed failover order used when the caller
// does not name a provider.
var DefaultPreferenceOrder = []string{"replicate", "gemini", "openai"}

// Registry holds the set of configured provider adapters together with a
// fixed preference order for failover. It is built once at startup from the
// available credentials and never mutated afterwards, so it is safe for
// concurrent use. Unconfigured providers are simply absent from the mapping.
type Registry struct {
	providers map[string]Provider
	order     []string
}

// NewRegistry builds a Registry from the given adapters, keeping only those
// whose credentials are present. The preference order lists provider names
// in failover priority; adapters whose name does not appear in the order are
// never selected implicitly but remain reachable by explicit name.
func NewRegistry(order []string, adapters ...Provider) *Registry {
	if len(order) == 0 {
		order = DefaultPreferenceOrder
	}

	providers := make(map[string]Provider, len(adapters))
	for _, p := range adapters {
		if p.IsConfigured() {
			providers[p.Name()] = p
		}
	}

	return &Registry{
		providers: providers,
		order:     order,
	}
}

// Get returns the configured provider with the given name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// All returns the mapping of configured provider names to adapters.
// The returned map is a copy; mutating it does not affect the registry.
func (r *Registry) All() map[string]Provider {
	all := make(map[string]Provider, len(r.providers))
	for name, p := range r.providers {
		all[name] = p
	}
	return all
}

// Names returns the configured provider names in preference order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for _, name := range r.order {
		if _, ok := r.providers[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Candidates builds the ordered provider list for one orchestration call.
//
// If the caller named a provider it comes first; an explicitly named but
// unconfigured provider always fails fast with ErrNoProviderConfigured,
// regardless of the failover flag. With failover enabled, the remaining
// configured providers are appended in preference order. With no explicit
// choice, the list is the full preference order filtered to configured
// providers.
//
// Returns ErrNoProviderConfigured if the resulting list is empty.
func (r *Registry) Candidates(explicit string, failover bool) ([]Provider, error) {
	var candidates []Provider
	seen := make(map[string]bool)

	if explicit != "" {
		p, ok := r.providers[explicit]
		if !ok {
			return nil, fmt.Errorf("%w: provider %q is not configured", ErrNoProviderConfigured, explicit)
		}
		candidates = append(candidates, p)
		seen[explicit] = true
	}

	if explicit == "" || failover {
		for _, name := range r.order {
			if seen[name] {
				continue
			}
			if p, ok := r.providers[name]; ok {
				candidates = append(candidates, p)
				seen[name] = true
			}
		}
	}

	if len(candidates) == 0 {
		return nil, ErrNoProviderConfigured
	}

	return candidates, nil
}
