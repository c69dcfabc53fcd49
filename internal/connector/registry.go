package connector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yourorg/payment-switch/internal/domain"
)

// Connector is one gateway integration: a name, the auth shapes it
// accepts, its per-flow integrations, and its webhook capability. Adding a
// connector adds one implementation without touching the dispatcher.
type Connector interface {
	Name() string
	AcceptedAuthKinds() []AuthKind
	// Integration returns the adapter for one flow. The second return is
	// false for cells the capability matrix leaves empty.
	Integration(flow domain.Flow) (Integration, bool)
	// Webhooks returns the webhook capability. Connectors without one
	// return UnimplementedWebhookSource.
	Webhooks() WebhookSource
	// RequiresAccessToken reports whether flows must be preceded by an
	// access-token exchange.
	RequiresAccessToken() bool
}

// Registry maps connector names to instances. It is built once at startup
// and never mutated afterward; the capability table is derived lazily and
// cached.
type Registry struct {
	connectors map[string]Connector

	capOnce sync.Once
	caps    map[string][]domain.Flow
}

// NewRegistry builds a registry, rejecting duplicate names.
func NewRegistry(connectors ...Connector) (*Registry, error) {
	m := make(map[string]Connector, len(connectors))
	for _, c := range connectors {
		if c == nil {
			return nil, fmt.Errorf("registry: nil connector")
		}
		if _, dup := m[c.Name()]; dup {
			return nil, fmt.Errorf("registry: duplicate connector %q", c.Name())
		}
		m[c.Name()] = c
	}
	return &Registry{connectors: m}, nil
}

// Get resolves a connector by name. An unknown connector is a
// configuration failure.
func (r *Registry) Get(name string) (Connector, error) {
	c, ok := r.connectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown connector %q", ErrInvalidConnectorConfig, name)
	}
	return c, nil
}

// Names returns the registered connector names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SupportedFlows returns the populated capability-matrix row for one
// connector. The table is computed once and immutable afterward.
func (r *Registry) SupportedFlows(name string) []domain.Flow {
	r.capOnce.Do(func() {
		r.caps = make(map[string][]domain.Flow, len(r.connectors))
		for cname, c := range r.connectors {
			var flows []domain.Flow
			for _, flow := range domain.AllFlows() {
				if _, ok := c.Integration(flow); ok {
					flows = append(flows, flow)
				}
			}
			r.caps[cname] = flows
		}
	})
	return r.caps[name]
}

// ValidateAuth checks the presented auth value against the connector's
// accepted shapes. Any other shape is a configuration failure.
func (r *Registry) ValidateAuth(name string, auth Auth) error {
	c, err := r.Get(name)
	if err != nil {
		return err
	}
	if err := auth.Validate(); err != nil {
		return err
	}
	if !Accepts(c.AcceptedAuthKinds(), auth.Kind) {
		return fmt.Errorf("%w: connector %q does not accept %s auth", ErrInvalidConnectorConfig, name, auth.Kind)
	}
	return nil
}
