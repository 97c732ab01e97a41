package restkit

import (
	"fmt"
	"reflect"

	"github.com/restkit-dev/restkit/pkg/binder"
)

// Handler is a function invoked for a dispatched request.
// Three signatures are supported:
//   - func(ctx *Ctx) (R, error)                - takes no arguments
//   - func(ctx *Ctx, args binder.Args) (R, error) - arbitrary arguments
//   - func(ctx *Ctx, params P) (R, error)      - typed params struct
//
// For typed params, the struct uses `param` tags to map bound arguments:
//
//	type ProfileParams struct {
//	    UserID string `param:"user_id"`
//	    Format string `param:"format,optional"`
//	}
//	func GetProfile(ctx *restkit.Ctx, p ProfileParams) (any, error) { ... }
//
// Tagged fields are required unless marked optional; arguments that match
// no field fail the call. The result R is wrapped in a response envelope
// unless it is an envelope.Result (which carries its own status code) or
// implements ResponseWriterTo (which bypasses the envelope entirely).
type Handler = any

// invoker is the adapted form every handler is reduced to at
// registration time.
type invoker func(ctx *Ctx, args binder.Args) (any, error)

var (
	ctxType  = reflect.TypeOf((*Ctx)(nil))
	errType  = reflect.TypeOf((*error)(nil)).Elem()
	argsType = reflect.TypeOf(binder.Args(nil))
)

// wrapHandler converts a user Handler to an invoker.
// It inspects the handler signature and creates an appropriate wrapper.
// Invalid signatures panic at registration time, not at request time.
func wrapHandler(handler any) invoker {
	handlerVal := reflect.ValueOf(handler)
	handlerType := handlerVal.Type()

	if handlerType.Kind() != reflect.Func {
		panic(fmt.Sprintf("restkit: handler must be a function, got %T", handler))
	}

	numIn := handlerType.NumIn()
	numOut := handlerType.NumOut()

	if numOut != 2 || !handlerType.Out(1).Implements(errType) {
		panic(fmt.Sprintf("restkit: handler %v must return (result, error)", handlerType))
	}
	if numIn < 1 || handlerType.In(0) != ctxType {
		panic(fmt.Sprintf("restkit: handler %v must take *restkit.Ctx as its first argument", handlerType))
	}

	switch numIn {
	case 1:
		// func(ctx *Ctx) (R, error). The handler declares no
		// arguments, so any bound argument is unexpected.
		return func(ctx *Ctx, args binder.Args) (any, error) {
			for name := range args {
				return nil, &binder.Error{Param: name, Reason: "endpoint accepts no arguments"}
			}
			results := handlerVal.Call([]reflect.Value{reflect.ValueOf(ctx)})
			return extractResults(results)
		}

	case 2:
		argType := handlerType.In(1)

		// func(ctx *Ctx, args binder.Args) (R, error)
		if argType == argsType {
			return func(ctx *Ctx, args binder.Args) (any, error) {
				if args == nil {
					args = binder.Args{}
				}
				results := handlerVal.Call([]reflect.Value{
					reflect.ValueOf(ctx),
					reflect.ValueOf(args),
				})
				return extractResults(results)
			}
		}

		// func(ctx *Ctx, params P) (R, error)
		decoder, err := binder.NewDecoder(argType)
		if err != nil {
			panic(fmt.Sprintf("restkit: handler %v: %v", handlerType, err))
		}
		return func(ctx *Ctx, args binder.Args) (any, error) {
			paramsVal, err := decoder.Decode(args)
			if err != nil {
				return nil, err
			}
			results := handlerVal.Call([]reflect.Value{
				reflect.ValueOf(ctx),
				paramsVal,
			})
			return extractResults(results)
		}

	default:
		panic(fmt.Sprintf("restkit: handler %v has invalid signature (expected 1 or 2 args, got %d)", handlerType, numIn))
	}
}

// wrapProperty converts a property getter to an invoker. Getters take
// only the context; bound arguments are ignored rather than rejected.
func wrapProperty(getter any) invoker {
	getterVal := reflect.ValueOf(getter)
	getterType := getterVal.Type()

	if getterType.Kind() != reflect.Func {
		panic(fmt.Sprintf("restkit: property getter must be a function, got %T", getter))
	}
	if getterType.NumIn() != 1 || getterType.In(0) != ctxType {
		panic(fmt.Sprintf("restkit: property getter %v must take exactly *restkit.Ctx", getterType))
	}
	if getterType.NumOut() != 2 || !getterType.Out(1).Implements(errType) {
		panic(fmt.Sprintf("restkit: property getter %v must return (value, error)", getterType))
	}

	return func(ctx *Ctx, _ binder.Args) (any, error) {
		results := getterVal.Call([]reflect.Value{reflect.ValueOf(ctx)})
		return extractResults(results)
	}
}

// extractResults extracts the result and error from handler reflection
// results.
func extractResults(results []reflect.Value) (any, error) {
	result := results[0].Interface()
	errVal := results[1].Interface()
	if errVal != nil {
		return result, errVal.(error)
	}
	return result, nil
}
