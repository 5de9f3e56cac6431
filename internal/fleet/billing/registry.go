package billing

import (
	"fmt"
	"sort"

	e "github.com/gartstein/fleet/internal/fleet/errors"
)

// ProviderConfig holds the credentials of one provider.
type ProviderConfig struct {
	SecretKey     string
	WebhookSecret string
}

// Registry selects providers by name.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// NewRegistryFromConfig builds the providers named in cfg. Unknown names are
// rejected.
func NewRegistryFromConfig(cfg map[string]ProviderConfig) (*Registry, error) {
	r := NewRegistry()
	for name, pc := range cfg {
		switch name {
		case ProviderStripe:
			r.providers[name] = NewStripeProvider(pc.WebhookSecret)
		case ProviderPaystack:
			r.providers[name] = NewPaystackProvider(pc.SecretKey)
		default:
			return nil, fmt.Errorf("%w: %s", e.ErrUnknownProvider, name)
		}
	}
	return r, nil
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", e.ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists the configured providers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
