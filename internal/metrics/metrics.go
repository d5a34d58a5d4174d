// Package metrics holds the Prometheus instruments of the indicator engine
// and its health endpoint.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"charting-systemv1/internal/barstore"
)

// Metrics holds all Prometheus metrics for the indicator engine. Each
// instance owns its registry so tests can build as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	BarsTotal       *prometheus.CounterVec // labels: result=appended|replaced|rejected
	BarsRejected    *prometheus.CounterVec // labels: reason=invalid|out_of_order
	BarsEvicted     prometheus.Counter
	BarsArchived    prometheus.Counter
	SQLiteCommitDur prometheus.Histogram
	LastBarLag      prometheus.Gauge

	IndicatorComputeDur *prometheus.HistogramVec // labels: id
	RecordsEmitted      prometheus.Counter
	ActiveIndicators    *prometheus.GaugeVec // labels: symbol

	// Backpressure
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Redis publisher
	RedisWriteDur            prometheus.Histogram
	RedisPublishErrors       prometheus.Counter
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisCommandsTotal       *prometheus.CounterVec // labels: action

	// Websocket gateway
	WSClients      prometheus.Gauge
	WSMessagesSent prometheus.Counter
	WSSlowClients  prometheus.Counter
}

// NewMetrics creates and registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		BarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_bars_total",
			Help: "Bars received, by store result",
		}, []string{"result"}),
		BarsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_bars_rejected_total",
			Help: "Bars rejected by the bar store, by reason",
		}, []string{"reason"}),
		BarsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_bars_evicted_total",
			Help: "Bars evicted from full symbol histories",
		}),
		BarsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_bars_archived_total",
			Help: "Bars committed to the SQLite archive",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		LastBarLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_last_bar_lag_seconds",
			Help: "Wall clock minus the time of the newest accepted bar",
		}),

		IndicatorComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "indengine_indicator_compute_duration_seconds",
			Help:    "Indicator update latency per bar",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}, []string{"id"}),
		RecordsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_records_emitted_total",
			Help: "Indicator records emitted to sinks",
		}),
		ActiveIndicators: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "indengine_active_indicators",
			Help: "Active indicators per symbol",
		}, []string{"symbol"}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_fanout_drops_total",
			Help: "Record batches dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "indengine_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_redis_write_duration_seconds",
			Help:    "Redis publish pipeline latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_redis_publish_errors_total",
			Help: "Failed or skipped Redis publish batches",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisCommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_redis_commands_total",
			Help: "Selection commands received over Redis pub/sub",
		}, []string{"action"}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_ws_clients",
			Help: "Connected websocket clients",
		}),
		WSMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_ws_messages_sent_total",
			Help: "Record messages queued to websocket clients",
		}),
		WSSlowClients: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_ws_slow_client_drops_total",
			Help: "Messages dropped because a client send buffer was full",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BarsTotal,
		m.BarsRejected,
		m.BarsEvicted,
		m.BarsArchived,
		m.SQLiteCommitDur,
		m.LastBarLag,
		m.IndicatorComputeDur,
		m.RecordsEmitted,
		m.ActiveIndicators,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.RedisWriteDur,
		m.RedisPublishErrors,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisCommandsTotal,
		m.WSClients,
		m.WSMessagesSent,
		m.WSSlowClients,
	)

	return m
}

// Registry exposes the registry (for tests and extra collectors).
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ── dispatch.Observer ──

// BarAccepted counts an accepted bar and its eviction.
func (m *Metrics) BarAccepted(_ string, res barstore.AppendResult) {
	m.BarsTotal.WithLabelValues(res.Action.String()).Inc()
	if res.Evicted > 0 {
		m.BarsEvicted.Add(float64(res.Evicted))
	}
}

// BarRejected counts a rejected bar by reason.
func (m *Metrics) BarRejected(_ string, err error) {
	m.BarsTotal.WithLabelValues("rejected").Inc()
	var ooe *barstore.OutOfOrderError
	if errors.As(err, &ooe) {
		m.BarsRejected.WithLabelValues("out_of_order").Inc()
		return
	}
	m.BarsRejected.WithLabelValues("invalid").Inc()
}

// Computed observes one indicator update.
func (m *Metrics) Computed(id string, d time.Duration) {
	m.IndicatorComputeDur.WithLabelValues(id).Observe(d.Seconds())
}

// ActiveChanged sets the active indicator gauge of symbol.
func (m *Metrics) ActiveChanged(symbol string, n int) {
	m.ActiveIndicators.WithLabelValues(symbol).Set(float64(n))
}
