package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstancesDoNotCollide(t *testing.T) {
	first := New()
	second := New()

	first.Deliveries.WithLabelValues("market-updates").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(first.Deliveries.WithLabelValues("market-updates")))
	assert.Equal(t, 0.0, testutil.ToFloat64(second.Deliveries.WithLabelValues("market-updates")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.Connections.Set(3)
	m.Evictions.WithLabelValues(ReasonStale).Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "property_feed_connections 3")
	assert.Contains(t, string(body), `property_feed_connection_evictions_total{reason="stale"} 1`)
}
