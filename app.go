package restkit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/restkit-dev/restkit/pkg/envelope"
	"github.com/restkit-dev/restkit/pkg/logx"
	"github.com/restkit-dev/restkit/pkg/middleware"
	"github.com/restkit-dev/restkit/pkg/pathpolicy"
	"github.com/restkit-dev/restkit/pkg/registry"
	"github.com/restkit-dev/restkit/pkg/upload"
)

// App is a dispatch server. Endpoints are registered by name, looked up
// case-insensitively, and answered with a uniform JSON envelope. Create
// one with New, add endpoints with Register, MountUnit and
// RegisterProperty, then serve it with Run or mount it as an
// http.Handler.
type App struct {
	cfg      Config
	logger   *logx.Logger
	registry *registry.Registry
	mux      *chi.Mux

	uploadStore     upload.Store
	blockedPatterns []*regexp.Regexp
	downloadPolicy  pathpolicy.Policy
	metricsRegistry *prometheus.Registry

	mu    sync.Mutex
	units map[string]bool

	server *http.Server
}

// New creates an App from the configuration. Unset fields fall back to
// their defaults; see DefaultConfig. The built-in endpoints (index,
// get_run_mode, download, upload, list_logs, logs) are registered before
// New returns, so they lead the index listing.
func New(cfg Config) (*App, error) {
	cfg = cfg.withDefaults()

	logger, err := logx.New(logx.Config{
		Dir:     cfg.LogDir,
		AppName: cfg.AppName,
		Verbose: cfg.Verbose,
	})
	if err != nil {
		return nil, err
	}

	blocked := make([]*regexp.Regexp, 0, len(cfg.Upload.BlockedPatterns))
	for _, pattern := range cfg.Upload.BlockedPatterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("restkit: invalid upload pattern %q: %w", pattern, err)
		}
		blocked = append(blocked, re)
	}

	store := cfg.Upload.Store
	if store == nil {
		store = upload.NewDiskStore(cfg.Upload.Dir, cfg.Upload.MaxBytes)
	}

	a := &App{
		cfg:             cfg,
		logger:          logger,
		registry:        registry.New(),
		uploadStore:     store,
		blockedPatterns: blocked,
		downloadPolicy: pathpolicy.Policy{
			Allowed: cfg.Download.AllowedPaths,
			Blocked: cfg.Download.BlockedPaths,
		},
		units: make(map[string]bool),
	}

	mux := chi.NewRouter()
	if cfg.Metrics.Enabled {
		reg := cfg.Metrics.Registry
		if reg == nil {
			reg = prometheus.NewRegistry()
		}
		a.metricsRegistry = reg
		mux.Use(middleware.Prometheus(middleware.WithRegistry(reg)))
	}
	if cfg.Tracing.Enabled {
		mux.Use(middleware.OpenTelemetry())
	}
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.HandlerFor(a.metricsRegistry, promhttp.HandlerOpts{}))
	}
	mux.Get("/logs/tail", a.handleLogTail)
	mux.Get("/logs/{filename}", a.handleLogFile)
	mux.NotFound(a.dispatch)
	a.mux = mux

	a.registerBuiltins()
	return a, nil
}

// Config returns the effective configuration.
func (a *App) Config() Config {
	return a.cfg
}

// Logger returns the server logger.
func (a *App) Logger() *logx.Logger {
	return a.logger
}

// MetricsRegistry returns the Prometheus registry serving /metrics, or
// nil when metrics are disabled.
func (a *App) MetricsRegistry() *prometheus.Registry {
	return a.metricsRegistry
}

// ServeHTTP implements http.Handler. Paths with uppercase letters are
// permanently redirected to their lowercase form with the query string
// preserved untouched; everything else flows into the router.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if lower := strings.ToLower(r.URL.Path); lower != r.URL.Path {
		target := lower
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
		return
	}
	a.mux.ServeHTTP(w, r)
}

// dispatch resolves the request path against the endpoint registry.
// It is mounted as the router's NotFound handler, so explicit routes
// (/metrics, /logs/{filename}) take precedence over registry names.
func (a *App) dispatch(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")
	if name == "" {
		name = "index"
	}

	ep, ok := a.registry.Lookup(name)
	if !ok {
		a.writeEnvelope(w, name, envelope.Error("Endpoint not found", http.StatusNotFound))
		return
	}
	if !ep.AllowsMethod(r.Method) {
		a.writeEnvelope(w, name, envelope.Error("Method not allowed", http.StatusMethodNotAllowed))
		return
	}
	ep.Handler(w, r, nil)
}

// Register adds a server-level endpoint. Registration is allowed while
// the server is running; the new endpoint is dispatchable as soon as
// Register returns. Re-registering a server-level name replaces its
// handler, but a name claimed by a mounted unit is refused with
// ErrRegistrationConflict.
func (a *App) Register(name string, handler Handler, opts ...EndpointOption) error {
	var o endpointOptions
	for _, opt := range opts {
		opt(&o)
	}
	return a.register(registry.Canonical(name), wrapHandler(handler), o.methods, o.doc, "")
}

// RegisterProperty exposes a read-only value at property/<name>. The
// getter takes only the context and is served GET-only; request
// arguments are not bound.
func (a *App) RegisterProperty(name string, getter Handler) error {
	route := "property/" + registry.Canonical(name)
	return a.register(route, wrapProperty(getter), []string{http.MethodGet}, "", "")
}

// MountUnit registers every endpoint of the service under the unit's
// name: a service endpoint "status" mounted as "worker" dispatches at
// /worker/status. Mounting fails with ErrRegistrationConflict when the
// unit name is taken or any generated route is already claimed by a
// different owner; on failure nothing is registered.
func (a *App) MountUnit(name string, svc *Service) error {
	unit := registry.Canonical(name)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.units[unit] {
		return fmt.Errorf("%w: unit %q already mounted", ErrRegistrationConflict, unit)
	}
	for _, route := range svc.routes(unit) {
		if ep, ok := a.registry.Lookup(route); ok && ep.Unit != unit {
			return fmt.Errorf("%w: route %q already registered", ErrRegistrationConflict, route)
		}
	}

	for _, sep := range svc.endpoints {
		route := sep.route(unit)
		a.registry.Register(&registry.Endpoint{
			Name:    route,
			Handler: a.wrapEndpoint(route, sep.inv),
			Methods: sep.methods,
			Doc:     sep.doc,
			Unit:    unit,
		})
	}
	a.units[unit] = true
	return nil
}

// register installs one endpoint, refusing names owned by units. The
// lock keeps the conflict check and the registration atomic against a
// concurrent MountUnit.
func (a *App) register(route string, inv invoker, methods []string, doc, unit string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ep, ok := a.registry.Lookup(route); ok && ep.Unit != unit {
		return fmt.Errorf("%w: route %q already registered by unit %q", ErrRegistrationConflict, route, ep.Unit)
	}
	a.registry.Register(&registry.Endpoint{
		Name:    route,
		Handler: a.wrapEndpoint(route, inv),
		Methods: methods,
		Doc:     doc,
		Unit:    unit,
	})
	return nil
}

// registerBuiltins installs the endpoints every server carries.
func (a *App) registerBuiltins() {
	a.Register("index", a.indexEndpoint,
		WithDoc("Lists all available API endpoints."))
	a.Register("get_run_mode", a.runModeEndpoint,
		WithDoc("Returns the current run mode of the server."))
	a.Register("download", a.downloadEndpoint,
		WithDoc("Downloads a file from the server."))
	a.Register("upload", a.uploadEndpoint,
		WithMethods(http.MethodPost),
		WithDoc("Uploads a file to the server."))
	a.Register("list_logs", a.listLogsEndpoint,
		WithDoc("Lists log files in the logging directory."))
	a.Register("logs", a.logsEndpoint,
		WithDoc("Returns the contents of a log file as plain text."))
}

// indexEndpoint lists every registered route in registration order.
func (a *App) indexEndpoint(ctx *Ctx) (any, error) {
	routes := make([]map[string]any, 0, a.registry.Len())
	for _, ep := range a.registry.Snapshot() {
		routes = append(routes, map[string]any{
			"endpoint": ep.Name,
			"url":      "/" + ep.Name,
			"methods":  ep.Methods,
			"docs":     ep.Doc,
		})
	}
	return map[string]any{
		"message": fmt.Sprintf("Welcome to the %s", a.cfg.AppName),
		"routes":  routes,
	}, nil
}

// runModeEndpoint reports whether the server runs in demo or production
// mode.
func (a *App) runModeEndpoint(ctx *Ctx) (any, error) {
	if a.cfg.DemoMode {
		return map[string]any{
			"message":  "Server is running in demo mode",
			"run_mode": "demo",
		}, nil
	}
	return map[string]any{
		"message":  "Server is running in production mode",
		"run_mode": "production",
	}, nil
}

// Run starts the HTTP server and blocks until SIGINT or SIGTERM, then
// shuts down gracefully.
func (a *App) Run(addr string) error {
	a.server = &http.Server{
		Addr:         addr,
		Handler:      a,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "address", addr, "app", a.cfg.AppName)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		a.logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		return err
	}
	a.logger.Info("server stopped")
	return a.logger.Close()
}

// invokeEndpoint runs a registry endpoint with router-supplied arguments.
// Used by explicit routes like /logs/{filename}.
func (a *App) invokeEndpoint(w http.ResponseWriter, r *http.Request, name string, extra map[string]any) {
	ep, ok := a.registry.Lookup(name)
	if !ok {
		a.writeEnvelope(w, name, envelope.Error("Endpoint not found", http.StatusNotFound))
		return
	}
	ep.Handler(w, r, extra)
}
