package main

import (
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/restkit-dev/restkit"
	"github.com/restkit-dev/restkit/pkg/binder"
	"github.com/restkit-dev/restkit/pkg/envelope"
)

func serveCmd() *cobra.Command {
	var (
		addr      string
		demoMode  bool
		verbose   bool
		logDir    string
		uploadDir string
		metrics   bool
		tracing   bool
		blocked   []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a demo dispatch server",
		Long: `Start a dispatch server populated with sample endpoints.

The sample set exercises every dispatch feature: plain handlers,
error propagation, explicit status codes, typed POST parameters,
mounted units and read-only properties.

Examples:
  restkit serve
  restkit serve --addr=:8080 --demo --verbose
  restkit serve --metrics --blocked-upload='\.exe$'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := restkit.Config{
				AppName:  "restkit_demo",
				DemoMode: demoMode,
				Verbose:  verbose,
				LogDir:   logDir,
			}
			cfg.Upload.Dir = uploadDir
			cfg.Upload.BlockedPatterns = blocked
			cfg.Metrics.Enabled = metrics
			cfg.Tracing.Enabled = tracing

			app, err := restkit.New(cfg)
			if err != nil {
				return err
			}
			if err := registerDemoEndpoints(app); err != nil {
				return err
			}
			return app.Run(addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":5001", "Address to listen on")
	cmd.Flags().BoolVar(&demoMode, "demo", false, "Run in demo mode")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging and endpoint tracing")
	cmd.Flags().StringVar(&logDir, "log-dir", "log", "Logging directory")
	cmd.Flags().StringVar(&uploadDir, "upload-dir", "uploads", "Upload directory")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "Expose Prometheus metrics at /metrics")
	cmd.Flags().BoolVar(&tracing, "tracing", false, "Enable OpenTelemetry request tracing")
	cmd.Flags().StringArrayVar(&blocked, "blocked-upload", nil, "Regex pattern for rejected upload filenames (repeatable)")

	return cmd
}

// registerDemoEndpoints populates the sample endpoint set.
func registerDemoEndpoints(app *restkit.App) error {
	app.Register("hello_world", func(ctx *restkit.Ctx) (any, error) {
		return map[string]string{"message": "Hello, world!"}, nil
	}, restkit.WithDoc("Returns a hello world message."))

	app.Register("error_endpoint", func(ctx *restkit.Ctx) (any, error) {
		return nil, errors.New("This is an error message.")
	}, restkit.WithDoc("Intentionally fails to demonstrate error envelopes."))

	app.Register("specific_http_code", func(ctx *restkit.Ctx) (any, error) {
		return envelope.Result{
			Data: map[string]string{"message": "This endpoint returns a specific HTTP status code."},
			Code: http.StatusCreated,
		}, nil
	}, restkit.WithDoc("Returns a custom success payload with HTTP 201."))

	type postParams struct {
		Var1 string `param:"var1"`
		Var2 string `param:"var2"`
		Var3 string `param:"var3,optional"`
	}
	app.Register("post_example", func(ctx *restkit.Ctx, p postParams) (any, error) {
		if p.Var3 == "" {
			p.Var3 = "default"
		}
		return fmt.Sprintf("var1=%q, var2=%q, var3=%q", p.Var1, p.Var2, p.Var3), nil
	}, restkit.WithMethods(http.MethodPost), restkit.WithDoc("Echoes provided POST arguments."))

	var accessCount atomic.Int64
	if err := app.RegisterProperty("server_property", func(ctx *restkit.Ctx) (any, error) {
		return map[string]any{
			"message":      "Hello from server_property!",
			"access_count": accessCount.Add(1),
		}, nil
	}); err != nil {
		return err
	}

	foo := restkit.NewService().
		Register("bar", func(ctx *restkit.Ctx) (any, error) {
			return map[string]string{"message": "Hello from foo.bar!"}, nil
		}).
		Register("echo", func(ctx *restkit.Ctx, args binder.Args) (any, error) {
			return map[string]any{"message": "Hello from foo.echo!", "kwargs": args}, nil
		}).
		RegisterProperty("test_property", func(ctx *restkit.Ctx) (any, error) {
			return map[string]string{"message": "Hello from foo.test_property!"}, nil
		})
	if err := app.MountUnit("foo", foo); err != nil {
		return err
	}

	fizz := restkit.NewService().
		Register("buzz", func(ctx *restkit.Ctx) (any, error) {
			return map[string]string{"message": "Hello from fizz.buzz!"}, nil
		}).
		Register("error", func(ctx *restkit.Ctx) (any, error) {
			return nil, errors.New("Error from fizz.error")
		})
	return app.MountUnit("fizz", fizz)
}
