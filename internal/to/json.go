// Package to renders API values onto HTTP responses.
package to

import (
	"net/http"

	"github.com/go-json-experiment/json"
)

// JSON writes obj to the response body as compact JSON and sets the
// matching Content-Type. Nil slices render as [] and nil maps as {}, so
// empty collections never reach clients as null.
func JSON(w http.ResponseWriter, obj any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.MarshalFull(w, obj)
}
