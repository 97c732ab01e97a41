package restkit

import (
	"net/http"

	"github.com/restkit-dev/restkit/pkg/registry"
)

// endpointOptions collects per-endpoint registration options.
type endpointOptions struct {
	methods []string
	doc     string
}

// EndpointOption configures an endpoint at registration time.
type EndpointOption func(*endpointOptions)

// WithMethods restricts the HTTP methods the endpoint accepts.
// The default is GET and POST.
func WithMethods(methods ...string) EndpointOption {
	return func(o *endpointOptions) {
		o.methods = methods
	}
}

// WithDoc attaches a description shown in the index listing.
func WithDoc(doc string) EndpointOption {
	return func(o *endpointOptions) {
		o.doc = doc
	}
}

// Service is a named collection of endpoints built up with the fluent
// Register methods and mounted as a unit with App.MountUnit. A service
// endpoint named "status" mounted as unit "worker" is dispatched at
// /worker/status.
type Service struct {
	endpoints []serviceEndpoint
}

type serviceEndpoint struct {
	name     string
	inv      invoker
	methods  []string
	doc      string
	property bool
}

// NewService creates an empty service.
func NewService() *Service {
	return &Service{}
}

// Register adds an endpoint to the service. Invalid handler signatures
// panic, the same as App.Register. Returns the service for chaining.
func (s *Service) Register(name string, handler Handler, opts ...EndpointOption) *Service {
	var o endpointOptions
	for _, opt := range opts {
		opt(&o)
	}
	s.endpoints = append(s.endpoints, serviceEndpoint{
		name:    name,
		inv:     wrapHandler(handler),
		methods: o.methods,
		doc:     o.doc,
	})
	return s
}

// RegisterProperty adds a read-only property to the service. The getter
// takes only the context; it is exposed GET-only and request arguments
// are not bound.
func (s *Service) RegisterProperty(name string, getter Handler) *Service {
	s.endpoints = append(s.endpoints, serviceEndpoint{
		name:     name,
		inv:      wrapProperty(getter),
		methods:  []string{http.MethodGet},
		property: true,
	})
	return s
}

// route returns the dispatch name for this endpoint under prefix.
// Properties live under a property/ segment, so a service property
// "version" mounted as unit "worker" is dispatched at
// /worker/property/version.
func (sep serviceEndpoint) route(prefix string) string {
	if sep.property {
		return prefix + "/property/" + registry.Canonical(sep.name)
	}
	return prefix + "/" + registry.Canonical(sep.name)
}

// routes returns the route names this service would claim under prefix.
func (s *Service) routes(prefix string) []string {
	names := make([]string, 0, len(s.endpoints))
	for _, sep := range s.endpoints {
		names = append(names, sep.route(prefix))
	}
	return names
}
