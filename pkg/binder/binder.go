// Package binder converts request inputs into call arguments.
//
// Two sources feed a single keyword-argument map: the flat query string and,
// when the request declares a JSON content type, the request body parsed as
// a flat JSON object. JSON body values win over query-string values for the
// same key, since JSON is the more structured and explicit source. The
// binder performs no type coercion beyond what JSON parsing already
// supplies: query-string values stay strings.
package binder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"reflect"
	"strings"
)

// Args is the merged keyword-argument map for one invocation. Handlers that
// declare an Args parameter accept arbitrary keyword arguments: every merged
// key passes through unchecked.
type Args map[string]any

// Error reports a parameter that could not be bound. Binding failures are
// surfaced to the client as internal errors by the dispatch layer.
type Error struct {
	Param  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot bind parameter %q: %s", e.Param, e.Reason)
}

// Merge combines query-string values and a flat JSON body into one argument
// map. Query values are flattened to their first occurrence; body values
// overwrite query values on key conflict.
func Merge(query url.Values, body map[string]any) Args {
	args := make(Args, len(query)+len(body))
	for key, values := range query {
		if len(values) > 0 {
			args[key] = values[0]
		}
	}
	for key, value := range body {
		args[key] = value
	}
	return args
}

// FromRequest builds the argument map for a request: query string merged
// with the JSON body when one is declared. maxBodyBytes bounds how much of
// the body is read; zero or negative means 1 MiB.
func FromRequest(r *http.Request, maxBodyBytes int64) (Args, error) {
	body, err := parseJSONBody(r, maxBodyBytes)
	if err != nil {
		return nil, err
	}
	return Merge(r.URL.Query(), body), nil
}

// IsJSONContentType reports whether a Content-Type header declares JSON.
func IsJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	contentType = strings.TrimSpace(strings.ToLower(contentType))
	return contentType == "application/json" || strings.HasSuffix(contentType, "+json")
}

// parseJSONBody reads and parses the request body when the request declares
// a JSON content type. The body must be a flat object mapping parameter
// names to values; anything else is a binding failure. Non-JSON requests
// leave the body untouched.
func parseJSONBody(r *http.Request, maxBodyBytes int64) (map[string]any, error) {
	if r.Body == nil || !IsJSONContentType(r.Header.Get("Content-Type")) {
		return nil, nil
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Param: "body", Reason: "unreadable request body"}
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var body map[string]any
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return nil, &Error{Param: "body", Reason: "request body is not a flat JSON object"}
	}
	return body, nil
}

// field holds the pre-computed binding info for one declared parameter.
type field struct {
	index    int
	name     string
	optional bool
}

// Decoder binds an argument map onto a struct whose fields declare
// parameters through `param` tags:
//
//	type profileParams struct {
//	    UserID string `param:"user_id"`
//	    Detail string `param:"detail,optional"`
//	}
//
// Tagged fields are required unless the tag carries the "optional" flag.
// Keys in the argument map that match no declared parameter fail the bind:
// a struct-typed handler does not accept arbitrary keyword arguments.
type Decoder struct {
	typ    reflect.Type
	isPtr  bool
	fields map[string]field
}

// NewDecoder builds a decoder for a struct type (or pointer to struct).
// Registration fails fast on non-struct types and untyped fields so
// misdeclared handlers are caught at construction, not at request time.
func NewDecoder(t reflect.Type) (*Decoder, error) {
	d := &Decoder{typ: t, fields: make(map[string]field)}
	if t.Kind() == reflect.Pointer {
		d.isPtr = true
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("binder: parameter type %s is not a struct", d.typ)
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, ok := sf.Tag.Lookup("param")
		if !ok || !sf.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			return nil, fmt.Errorf("binder: field %s.%s has an empty param name", t.Name(), sf.Name)
		}
		d.fields[name] = field{
			index:    i,
			name:     name,
			optional: strings.Contains(opts, "optional"),
		}
	}
	return d, nil
}

// Decode binds args onto a fresh value of the decoder's type.
func (d *Decoder) Decode(args Args) (reflect.Value, error) {
	structType := d.typ
	if d.isPtr {
		structType = structType.Elem()
	}
	ptr := reflect.New(structType)
	elem := ptr.Elem()

	for key := range args {
		if _, ok := d.fields[key]; !ok {
			return reflect.Value{}, &Error{Param: key, Reason: "unknown parameter"}
		}
	}
	for name, f := range d.fields {
		value, present := args[name]
		if !present {
			if f.optional {
				continue
			}
			return reflect.Value{}, &Error{Param: name, Reason: "missing required parameter"}
		}
		if err := setValue(elem.Field(f.index), name, value); err != nil {
			return reflect.Value{}, err
		}
	}

	if d.isPtr {
		return ptr, nil
	}
	return elem, nil
}

// setValue assigns a bound value to a struct field. Only assignable values
// and JSON-number to Go-number fits are accepted; in particular a query
// string is never coerced into a numeric field.
func setValue(dst reflect.Value, name string, value any) error {
	if value == nil {
		// JSON null leaves the zero value.
		return nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(dst.Type()) {
		dst.Set(v)
		return nil
	}

	// encoding/json parses every number as float64; let those land in the
	// Go numeric kinds they fit.
	if f, ok := value.(float64); ok {
		switch dst.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if f == math.Trunc(f) && !dst.OverflowInt(int64(f)) {
				dst.SetInt(int64(f))
				return nil
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if f >= 0 && f == math.Trunc(f) && !dst.OverflowUint(uint64(f)) {
				dst.SetUint(uint64(f))
				return nil
			}
		case reflect.Float32, reflect.Float64:
			dst.SetFloat(f)
			return nil
		}
	}

	return &Error{
		Param:  name,
		Reason: fmt.Sprintf("value of type %T is not assignable to %s", value, dst.Type()),
	}
}
