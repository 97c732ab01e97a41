package restkit

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/restkit-dev/restkit/pkg/binder"
	"github.com/restkit-dev/restkit/pkg/envelope"
	"github.com/restkit-dev/restkit/pkg/registry"
)

// ResponseWriterTo lets a handler result take over response writing.
// Results implementing it bypass the JSON envelope entirely; the download
// and log endpoints use this to stream file contents.
type ResponseWriterTo interface {
	WriteResponse(w http.ResponseWriter, r *http.Request) error
}

// wrapEndpoint turns an invoker into the registry handler that runs for a
// dispatched request: bind arguments, trace, invoke, write the envelope.
func (a *App) wrapEndpoint(route string, inv invoker) registry.Handler {
	return func(w http.ResponseWriter, r *http.Request, extra map[string]any) {
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.Error("panic in endpoint", "route", route, "panic", fmt.Sprintf("%v", rec))
				a.writeError(w, route, fmt.Errorf("%v", rec))
			}
		}()

		args, err := binder.FromRequest(r, a.cfg.MaxBodyBytes)
		if err != nil {
			a.writeError(w, route, err)
			return
		}
		// Router-supplied values (path parameters) win over bound ones.
		for k, v := range extra {
			args[k] = v
		}

		ctx := &Ctx{w: w, req: r, logger: a.logger, app: a}

		a.logger.TraceEnter(route, args)
		result, err := inv(ctx, args)
		a.logger.TraceExit(route)

		if err != nil {
			a.writeError(w, route, err)
			return
		}
		a.writeResult(w, r, route, result)
	}
}

// writeResult serializes a successful handler result.
func (a *App) writeResult(w http.ResponseWriter, r *http.Request, route string, result any) {
	switch v := result.(type) {
	case ResponseWriterTo:
		if err := v.WriteResponse(w, r); err != nil {
			a.logger.Error("response write failed", "route", route, "error", err)
		}
	case envelope.Result:
		a.writeEnvelope(w, route, envelope.New(v.Data, v.Code))
	case *envelope.Result:
		a.writeEnvelope(w, route, envelope.New(v.Data, v.Code))
	case envelope.Envelope:
		a.writeEnvelope(w, route, v)
	default:
		a.writeEnvelope(w, route, envelope.OK(result))
	}
}

// writeError maps a handler error to an error envelope. *Error carries
// its own status code; everything else, including binding failures, is
// reported as a 500.
func (a *App) writeError(w http.ResponseWriter, route string, err error) {
	code := http.StatusInternalServerError
	message := err.Error()

	var re *Error
	var be *binder.Error
	switch {
	case errors.As(err, &re):
		code = re.Code
		message = re.Message
	case errors.As(err, &be):
		message = be.Error()
	}

	a.logger.Error("endpoint error", "route", route, "code", code, "error", err)
	a.writeEnvelope(w, route, envelope.Error(message, code))
}

func (a *App) writeEnvelope(w http.ResponseWriter, route string, env envelope.Envelope) {
	if err := env.Write(w); err != nil {
		a.logger.Error("envelope write failed", "route", route, "error", err)
	}
}
