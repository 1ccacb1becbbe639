package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveCycle("ok")
	m.ObserveCycle("ok")
	m.ObserveCycle("fetch_error")
	m.ObserveNotification(true)
	m.ObserveNotification(false)
	m.SetAvailability(2, 7, time.Unix(1700000000, 0))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("fetch_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.available))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.total))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.lastSuccess))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCycle("ok")
		m.ObserveNotification(true)
		m.SetAvailability(1, 1, time.Now())
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveCycle("ok")
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `pickupwatch_cycles_total{result="ok"} 1`)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
