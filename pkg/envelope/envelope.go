// Package envelope defines the uniform JSON response wrapper used by every
// dispatched endpoint: {"status": <label>, "data": <payload>, "code": <int>}.
//
// The status label is derived from the HTTP status code so the two can never
// disagree: any code of 400 or above carries a non-OK label.
package envelope

import (
	"encoding/json"
	"net/http"
)

// labels maps the status codes the engine hands out to their symbolic names.
var labels = map[int]string{
	http.StatusOK:                  "OK",
	http.StatusCreated:             "CREATED",
	http.StatusAccepted:            "ACCEPTED",
	http.StatusNoContent:           "NO_CONTENT",
	http.StatusBadRequest:          "BAD_REQUEST",
	http.StatusUnauthorized:        "UNAUTHORIZED",
	http.StatusForbidden:           "FORBIDDEN",
	http.StatusNotFound:            "NOT_FOUND",
	http.StatusMethodNotAllowed:    "METHOD_NOT_ALLOWED",
	http.StatusInternalServerError: "INTERNAL_SERVER_ERROR",
	http.StatusServiceUnavailable:  "SERVICE_UNAVAILABLE",
}

// Label returns the symbolic status label for an HTTP status code.
// Codes outside the known set fall back to the class of the code.
func Label(code int) string {
	if l, ok := labels[code]; ok {
		return l
	}
	if code < 400 {
		return "OK"
	}
	return "ERROR"
}

// Envelope is the wire format for all JSON-returning endpoints.
type Envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
	Code   int    `json:"code"`
}

// New builds an envelope for the given payload and status code.
func New(data any, code int) Envelope {
	return Envelope{Status: Label(code), Data: data, Code: code}
}

// OK builds a 200 envelope for the given payload.
func OK(data any) Envelope {
	return New(data, http.StatusOK)
}

// Error builds an error envelope whose data payload carries the message
// under the "error" key, matching the engine's error wire format.
func Error(message string, code int) Envelope {
	return New(map[string]string{"error": message}, code)
}

// Write serializes the envelope as JSON with its embedded status code.
func (e Envelope) Write(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	return json.NewEncoder(w).Encode(e)
}

// Result lets a handler pair its payload with an explicit status code,
// the two-element return form. A bare return value implies 200.
type Result struct {
	Data any
	Code int
}
