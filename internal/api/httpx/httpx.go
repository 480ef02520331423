// Package httpx holds the JSON request and response helpers shared by the
// handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const maxRequestBody = 1 << 20

// APIError is the error body for every non-2xx response. Details carries
// the underlying cause when it is safe to show.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON writes v with status. Ledger responses are never cached.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an APIError. An error passed as details is reported by
// its message.
func WriteError(w http.ResponseWriter, status int, code, msg string, details any) {
	if err, ok := details.(error); ok {
		details = err.Error()
	}
	WriteJSON(w, status, APIError{Error: msg, Code: code, Details: details})
}

// DecodeJSON reads a single JSON object from r into v, rejecting unknown
// fields, trailing data and bodies over 1 MiB.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("decode body: unexpected data after object")
	}
	return nil
}
