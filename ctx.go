package restkit

import (
	"context"
	"net/http"

	"github.com/restkit-dev/restkit/pkg/logx"
)

// Ctx carries per-request state into handlers.
type Ctx struct {
	w      http.ResponseWriter
	req    *http.Request
	logger *logx.Logger
	app    *App
}

// Context returns the request context.
func (c *Ctx) Context() context.Context {
	return c.req.Context()
}

// Request returns the underlying HTTP request.
func (c *Ctx) Request() *http.Request {
	return c.req
}

// Logger returns the server logger.
func (c *Ctx) Logger() *logx.Logger {
	return c.logger
}

// App returns the owning application.
func (c *Ctx) App() *App {
	return c.app
}
