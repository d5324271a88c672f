package httpx_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/require"

	"github.com/vidpod/vidpod/internal/httpx"
)

type testEnv struct{}

func serve(t *testing.T, fn func(*testEnv, http.ResponseWriter, *http.Request) error) *httptest.ResponseRecorder {
	t.Helper()
	handler := httpx.HandlerFunc(func(r *http.Request) *testEnv {
		return &testEnv{}
	}, fn)
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest("GET", "/pods/following", nil))
	return w
}

func TestHandlerFunc(t *testing.T) {
	t.Run("ANilErrorLeavesTheResponseAlone", func(t *testing.T) {
		require := require.New(t)
		w := serve(t, func(env *testEnv, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		})
		require.Equal(http.StatusNoContent, w.Code)
		require.Empty(w.Body.String())
	})

	t.Run("AStatusErrorSetsTheStatusAndBody", func(t *testing.T) {
		require := require.New(t)
		w := serve(t, func(env *testEnv, w http.ResponseWriter, r *http.Request) error {
			return httpx.Error(http.StatusBadRequest, fmt.Errorf("hosts must not be empty"))
		})
		require.Equal(http.StatusBadRequest, w.Code)
		require.Equal("application/json; charset=utf-8", w.Header().Get("Content-Type"))

		var body struct {
			Error  string `json:"error"`
			Status int    `json:"status"`
		}
		require.NoError(json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal("hosts must not be empty", body.Error)
		require.Equal(http.StatusBadRequest, body.Status)
	})

	t.Run("AnUnexpectedErrorBecomesAGeneric500", func(t *testing.T) {
		require := require.New(t)
		w := serve(t, func(env *testEnv, w http.ResponseWriter, r *http.Request) error {
			return errors.New("pk violation on relationships")
		})
		require.Equal(http.StatusInternalServerError, w.Code)

		var body struct {
			Error  string `json:"error"`
			Status int    `json:"status"`
		}
		require.NoError(json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal("internal server error", body.Error)
		require.NotContains(w.Body.String(), "pk violation")
	})

	t.Run("AWrappedStatusErrorIsStillUnwrapped", func(t *testing.T) {
		require := require.New(t)
		w := serve(t, func(env *testEnv, w http.ResponseWriter, r *http.Request) error {
			return fmt.Errorf("authenticating: %w", httpx.Error(http.StatusUnauthorized, errors.New("token not found")))
		})
		require.Equal(http.StatusUnauthorized, w.Code)
	})
}
