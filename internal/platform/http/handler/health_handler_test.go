package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func setupRouter(checks ...Check) *gin.Engine {
	r := gin.New()
	h := Health(checks...)
	r.GET("/healthz", h)
	r.HEAD("/healthz", h)
	r.OPTIONS("/healthz", h)
	return r
}

func okCheck(name string) Check {
	return Check{Name: name, Ping: func(ctx context.Context) error { return nil }}
}

func TestHealth_GET(t *testing.T) {
	t.Parallel()

	router := setupRouter(okCheck("db"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "ok", response.Checks["db"])
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestHealth_GET_NoChecks(t *testing.T) {
	t.Parallel()

	router := setupRouter()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHealth_GET_FailingDependency(t *testing.T) {
	t.Parallel()

	router := setupRouter(
		okCheck("db"),
		Check{Name: "redis", Ping: func(ctx context.Context) error { return errors.New("connection refused") }},
	)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"db":"ok","redis":"connection refused"}}`, w.Body.String())
}

func TestHealth_ResponseStatus(t *testing.T) {
	t.Parallel()

	failing := Check{Name: "db", Ping: func(ctx context.Context) error { return errors.New("down") }}

	tests := []struct {
		method         string
		expectedStatus int
	}{
		{http.MethodGet, http.StatusServiceUnavailable},
		{http.MethodHead, http.StatusOK},
		{http.MethodOptions, http.StatusNoContent},
	}

	router := setupRouter(failing)

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, "/healthz", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
			if tt.method == http.MethodHead {
				assert.Zero(t, w.Body.Len())
			}
		})
	}
}
