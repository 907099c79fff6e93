package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"smart-mail-router/internal/handler"
)

func TestAPIKeyMiddleware(t *testing.T) {
	r := SetupRouter(handler.NewHandlers(handler.Options{}), "s3cret")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scheduler/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/scheduler/status", nil)
	req.Header.Set(APIKeyHeader, "wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthBypassesAPIKey(t *testing.T) {
	r := SetupRouter(handler.NewHandlers(handler.Options{}), "s3cret")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyAccepted(t *testing.T) {
	r := SetupRouter(handler.NewHandlers(handler.Options{}), "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/mail/intercept", nil)
	req.Header.Set(APIKeyHeader, "s3cret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	// Past the middleware; the empty body fails binding.
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNoAPIKeyConfigured(t *testing.T) {
	r := SetupRouter(handler.NewHandlers(handler.Options{}), "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/mail/intercept", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
