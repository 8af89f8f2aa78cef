package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/license-plates/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/license-plates/abc", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("/license-plates/{id}", "404")))

	out := httptest.NewRecorder()
	m.Handler().ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(out.Body)
	require.Contains(t, string(body), "mes_http_requests_total")
}

func TestDomainCounters(t *testing.T) {
	m := NewMetrics()
	d := m.DomainMetrics()
	d.LPSplit("ok")
	d.LPSplit("ok")
	d.Transition("work_order", "rejected")
	require.Equal(t, 2.0, testutil.ToFloat64(d.lpSplits.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(d.transitions.WithLabelValues("work_order", "rejected")))

	var nilDomain *Domain
	nilDomain.Consumption("ok")
	var nilMetrics *Metrics
	require.Nil(t, nilMetrics.DomainMetrics())
}
