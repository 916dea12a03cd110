package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	metrics, err := NewMetrics(meter)
	require.NoError(t, err)
	return metrics, reader
}

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	metrics, reader := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(MetricsMiddleware(metrics))
	r.Get("/api/v1/records/{kind}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for i := 0; i < 2; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/records/wps", nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var found bool
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if m.Name != MetricRequests {
			continue
		}
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, sum.DataPoints, 1)

		dp := sum.DataPoints[0]
		assert.Equal(t, int64(2), dp.Value)
		route, _ := dp.Attributes.Value("route")
		assert.Equal(t, "/api/v1/records/{kind}", route.AsString())
		status, _ := dp.Attributes.Value("status")
		assert.Equal(t, int64(http.StatusTeapot), status.AsInt64())
		kind, _ := dp.Attributes.Value("kind")
		assert.Equal(t, "wps", kind.AsString())
		found = true
	}
	assert.True(t, found, "request counter not collected")
}

func TestOTelMiddleware_PassesThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(OTelMiddleware("weldflow-api-test"))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
