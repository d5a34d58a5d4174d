package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-systemv1/internal/barstore"
)

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics()
	b := NewMetrics()
	a.RecordsEmitted.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.RecordsEmitted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RecordsEmitted))
}

func TestMetrics_Observer(t *testing.T) {
	m := NewMetrics()
	m.BarAccepted("X", barstore.AppendResult{Action: barstore.Appended, Evicted: 1})
	m.BarAccepted("X", barstore.AppendResult{Action: barstore.Replaced})
	m.BarRejected("X", &barstore.OutOfOrderError{Symbol: "X"})
	m.BarRejected("X", &barstore.ValidationError{Symbol: "X"})
	m.Computed("RSI", time.Microsecond)
	m.ActiveChanged("X", 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BarsTotal.WithLabelValues("appended")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BarsTotal.WithLabelValues("replaced")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BarsTotal.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BarsRejected.WithLabelValues("out_of_order")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BarsRejected.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BarsEvicted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveIndicators.WithLabelValues("X")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordsEmitted.Add(5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "indengine_records_emitted_total 5"))
}

func TestHealth_Status(t *testing.T) {
	h := NewHealthStatus()
	_, code := h.Report()
	assert.Equal(t, http.StatusServiceUnavailable, code, "engine not started")

	h.SetEngineOK(true)
	r, code := h.Report()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", r.Status)

	h.SetRedisEnabled(true)
	r, code = h.Report()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", r.Status)

	h.ObserveBar(time.Unix(1700000000, 0), 2)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Contains(t, rec.Body.String(), `"symbols":2`)
}
