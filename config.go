package restkit

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/restkit-dev/restkit/pkg/upload"
)

// Config is the main server configuration.
// The zero value is usable: New fills every unset field with its default.
type Config struct {
	// AppName names the server. Used in log file names and the index
	// welcome message.
	AppName string

	// DemoMode reports the server as running in demo rather than
	// production mode.
	DemoMode bool

	// Verbose enables DEBUG logging and endpoint entry/exit tracing.
	Verbose bool

	// LogDir is the directory log files are written to.
	LogDir string

	// MaxBodyBytes caps the request body size read during argument
	// binding.
	MaxBodyBytes int64

	// Download configures the file download endpoint.
	Download DownloadConfig

	// Upload configures the file upload endpoint.
	Upload UploadConfig

	// Metrics configures the Prometheus metrics endpoint.
	Metrics MetricsConfig

	// Tracing enables OpenTelemetry request tracing.
	Tracing TracingConfig
}

// DownloadConfig controls which files the download endpoint serves.
type DownloadConfig struct {
	// AllowedPaths, when non-empty, restricts downloads to files under
	// these directories. Takes precedence over BlockedPaths.
	AllowedPaths []string

	// BlockedPaths lists directories downloads may never come from.
	// Consulted only when AllowedPaths is empty.
	BlockedPaths []string
}

// UploadConfig controls the upload endpoint.
type UploadConfig struct {
	// Dir is the upload directory for the default disk store.
	Dir string

	// BlockedPatterns are case-insensitive regular expressions matched
	// against the stored filename. A match rejects the upload.
	BlockedPatterns []string

	// MaxBytes caps the upload request body size. Zero means no limit
	// beyond MaxBodyBytes handling elsewhere.
	MaxBytes int64

	// Store overrides the storage backend. Defaults to a DiskStore
	// rooted at Dir.
	Store upload.Store
}

// MetricsConfig controls the /metrics endpoint.
type MetricsConfig struct {
	// Enabled mounts a Prometheus /metrics endpoint and the request
	// metrics middleware.
	Enabled bool

	// Registry is the Prometheus registry to use. Defaults to a fresh
	// registry per server.
	Registry *prometheus.Registry
}

// TracingConfig controls OpenTelemetry request tracing.
type TracingConfig struct {
	// Enabled wraps dispatch with the OpenTelemetry middleware. Spans
	// go to the global tracer provider.
	Enabled bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AppName:      "server",
		LogDir:       "log",
		MaxBodyBytes: 1 << 20,
		Upload: UploadConfig{
			Dir:      "uploads",
			MaxBytes: 32 << 20,
		},
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.AppName == "" {
		c.AppName = def.AppName
	}
	if c.LogDir == "" {
		c.LogDir = def.LogDir
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.Upload.Dir == "" {
		c.Upload.Dir = def.Upload.Dir
	}
	if c.Upload.MaxBytes == 0 {
		c.Upload.MaxBytes = def.Upload.MaxBytes
	}
	return c
}
