package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-mes/internal/auth"
	"github.com/odyssey-erp/odyssey-mes/internal/observability"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
	"github.com/odyssey-erp/odyssey-mes/internal/testing/guard"
	"github.com/odyssey-erp/odyssey-mes/jobs"
)

type tokenResolver map[string]shared.Principal

func (t tokenResolver) Resolve(_ context.Context, credential string) (shared.Principal, error) {
	p, ok := t[credential]
	if !ok {
		return shared.Principal{}, auth.ErrSessionNotFound
	}
	return p, nil
}

func newTestRouter() http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(RouterParams{
		Logger:  logger,
		Config:  &Config{AppEnv: "test", RateLimitPerMinute: 1000},
		Metrics: observability.NewMetrics(),
		Authenticator: auth.Authenticator{
			Sessions: tokenResolver{"good": {UserID: uuid.New(), OrgID: uuid.New()}},
			Logger:   logger,
		},
		JobHandler: jobs.NewHandler(nil, logger),
	})
}

func TestRouterPublicEndpoints(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rec.Header().Get("X-Frame-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "mes_http_requests_total")
}

func TestRouterRequiresAuthentication(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "UNAUTHENTICATED")

	req := httptest.NewRequest(http.MethodGet, "/jobs/health", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/jobs/health", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"queue":"default"`)
}

func TestRouterUnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInTestModeUnderGuard(t *testing.T) {
	require.True(t, guard.Enabled())
	require.True(t, InTestMode())
}
