// Package httpx adapts handlers that return errors to net/http.
package httpx

import (
	"errors"
	"net/http"

	"github.com/go-json-experiment/json"
	"golang.org/x/exp/slog"
)

// Error wraps err with the HTTP status code the handler adapter should
// respond with.
func Error(code int, err error) error {
	return &StatusError{code, err}
}

// StatusError is an error that maps to a specific HTTP status code.
type StatusError struct {
	Code int
	Err  error
}

func (se *StatusError) Error() string {
	return se.Err.Error()
}

// Status returns the HTTP status code for this error.
func (se *StatusError) Status() int {
	return se.Code
}

func (se *StatusError) Unwrap() error {
	return se.Err
}

// HandlerFunc adapts fn, a handler that returns an error, to an
// http.HandlerFunc. A returned StatusError selects the response status and
// its message is sent to the client; any other error becomes a 500 with a
// generic body so internal details stay out of responses.
func HandlerFunc[E any](envFn func(r *http.Request) *E, fn func(*E, http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		env := envFn(r)
		if err := fn(env, w, r); err != nil {
			status := http.StatusInternalServerError
			message := "internal server error"
			if se := new(StatusError); errors.As(err, &se) {
				status = se.Status()
				message = se.Error()
			}
			slog.Error("request failed", err, "method", r.Method, "path", r.URL.Path, "status", status)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(status)
			json.MarshalFull(w, map[string]any{
				"error":  message,
				"status": status,
			})
		}
	}
}
