// Package registry holds the route table of a dispatch engine: the mapping
// from canonical (lowercase) route names to endpoint descriptors.
//
// The table is read-mostly. Lookups happen on every request while
// registrations happen at construction and occasionally at runtime, so the
// registry guards itself with an RWMutex rather than requiring callers to
// serialize. There is no deregistration: the table only grows, and a
// re-registration under an existing name overwrites the endpoint in place
// (last registration wins) without disturbing its position in the listing
// order.
package registry

import (
	"net/http"
	"strings"
	"sync"
)

// DefaultMethods is the method set applied to endpoints registered without
// an explicit restriction.
var DefaultMethods = []string{http.MethodGet, http.MethodPost}

// Canonical returns the canonical (lowercase) form of a route name.
func Canonical(name string) string {
	return strings.ToLower(name)
}

// Handler executes a dispatched request. The extra map carries arguments
// bound outside the request itself, such as path parameters.
type Handler func(w http.ResponseWriter, r *http.Request, extra map[string]any)

// Endpoint describes one registered route.
type Endpoint struct {
	// Name is the canonical route name: always lowercase, unique within
	// a registry, without the leading slash ("user/get_profile").
	Name string

	// Handler serves requests dispatched to this route.
	Handler Handler

	// Methods is the non-empty set of allowed HTTP methods.
	Methods []string

	// Doc is the endpoint's human-readable description, if declared.
	Doc string

	// Unit is the namespace prefix for endpoints mounted from a unit,
	// empty for server-level endpoints.
	Unit string
}

// AllowsMethod reports whether the endpoint accepts the HTTP method.
func (e *Endpoint) AllowsMethod(method string) bool {
	for _, m := range e.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// Registry is the set of endpoints known to a server instance.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	order     []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{endpoints: make(map[string]*Endpoint)}
}

// Register adds an endpoint under the lowercase form of its name. Names
// already present are overwritten in place, keeping their original position
// in the registration order.
func (r *Registry) Register(ep *Endpoint) {
	name := Canonical(ep.Name)
	ep.Name = name
	if len(ep.Methods) == 0 {
		ep.Methods = append([]string(nil), DefaultMethods...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.endpoints[name]; !exists {
		r.order = append(r.order, name)
	}
	r.endpoints[name] = ep
}

// Lookup resolves a route name case-insensitively.
func (r *Registry) Lookup(name string) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[strings.ToLower(name)]
	return ep, ok
}

// Has reports whether a route name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Snapshot returns the endpoints in registration order. The slice is a
// copy; the endpoints themselves are shared.
func (r *Registry) Snapshot() []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Endpoint, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.endpoints[name])
	}
	return out
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
