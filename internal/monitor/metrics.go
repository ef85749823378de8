// Package monitor is the snapshot writer (C24): it drains domain events
// off the synchronous bus into an append-only event table, periodically
// summarizes live engine state into an upserted snapshot row per variant,
// and mirrors both onto Prometheus gauges/counters for the operational
// dashboard (out of core, per SPEC_FULL §1) to poll.
//
// Grounded on the teacher's internal/monitor (event-driven alert routing)
// and newplayman-market-maker-go's infrastructure/monitor (a
// promauto-registered gauge/counter set behind its own *prometheus.Registry
// rather than the global one, so multiple strategy instances in the same
// process never collide on metric names).
package monitor

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"optioncore/internal/risk"
)

// Metrics holds the Prometheus instruments the snapshot writer updates.
type Metrics struct {
	registry *prometheus.Registry

	portfolioDelta prometheus.Gauge
	portfolioGamma prometheus.Gauge
	portfolioTheta prometheus.Gauge
	portfolioVega  prometheus.Gauge
	positionCount  prometheus.Gauge

	dailyOpenVolume  prometheus.Gauge
	schedulerBacklog prometheus.Gauge

	riskBreaches        *prometheus.CounterVec
	orderTimeouts       prometheus.Counter
	orderRetryExhausted prometheus.Counter
	hedgesExecuted      prometheus.Counter
	gammaScalps         prometheus.Counter
	manualInterventions *prometheus.CounterVec
	rolloversTotal      prometheus.Counter

	apiRequestsTotal   *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec
}

// Config names the Prometheus namespace/subsystem prefix.
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig returns the prefix used when the strategy config doesn't
// override it.
func DefaultConfig() Config {
	return Config{Namespace: "optioncore", Subsystem: "monitor"}
}

// NewMetrics registers a fresh instrument set against its own registry.
func NewMetrics(cfg Config) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		portfolioDelta: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "portfolio_delta", Help: "Weighted portfolio delta across active positions.",
		}),
		portfolioGamma: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "portfolio_gamma", Help: "Weighted portfolio gamma across active positions.",
		}),
		portfolioTheta: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "portfolio_theta", Help: "Weighted portfolio theta across active positions.",
		}),
		portfolioVega: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "portfolio_vega", Help: "Weighted portfolio vega across active positions.",
		}),
		positionCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "position_count", Help: "Number of currently active positions.",
		}),
		dailyOpenVolume: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "daily_open_volume", Help: "Contracts opened so far in the current trading day.",
		}),
		schedulerBacklog: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "scheduler_backlog", Help: "Advanced orders still ACTIVE in the execution scheduler.",
		}),
		riskBreaches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "risk_breaches_total", Help: "Edge-triggered Greeks threshold breaches.",
		}, []string{"scope", "field"}),
		orderTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "order_timeouts_total", Help: "Managed orders whose deadline elapsed without a terminal fill.",
		}),
		orderRetryExhausted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "order_retry_exhausted_total", Help: "Managed orders that used every retry and gave up.",
		}),
		hedgesExecuted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "hedges_executed_total", Help: "Delta hedge trades dispatched.",
		}),
		gammaScalps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "gamma_scalps_total", Help: "Gamma scalp rebalance trades dispatched.",
		}),
		manualInterventions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "manual_interventions_total", Help: "Broker-side position changes not explained by tracked fills.",
		}, []string{"kind"}),
		rolloversTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "rollovers_total", Help: "Active-contract rollovers applied.",
		}),
		apiRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "api",
			Name: "requests_total", Help: "C25 operational HTTP facade requests.",
		}, []string{"method", "path", "status"}),
		apiRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: "api",
			Name: "request_duration_seconds", Help: "C25 request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// SetPortfolioGreeks updates the four portfolio gauges at once.
func (m *Metrics) SetPortfolioGreeks(g risk.PortfolioGreeks) {
	m.portfolioDelta.Set(g.TotalDelta)
	m.portfolioGamma.Set(g.TotalGamma)
	m.portfolioTheta.Set(g.TotalTheta)
	m.portfolioVega.Set(g.TotalVega)
	m.positionCount.Set(float64(g.PositionCount))
}

func (m *Metrics) SetDailyOpenVolume(n int)   { m.dailyOpenVolume.Set(float64(n)) }
func (m *Metrics) SetSchedulerBacklog(n int)  { m.schedulerBacklog.Set(float64(n)) }
func (m *Metrics) RecordRiskBreach(scope, field string) {
	m.riskBreaches.WithLabelValues(scope, field).Inc()
}
func (m *Metrics) RecordOrderTimeout()        { m.orderTimeouts.Inc() }
func (m *Metrics) RecordOrderRetryExhausted() { m.orderRetryExhausted.Inc() }
func (m *Metrics) RecordHedgeExecuted()       { m.hedgesExecuted.Inc() }
func (m *Metrics) RecordGammaScalp()          { m.gammaScalps.Inc() }
func (m *Metrics) RecordManualIntervention(kind string) {
	m.manualInterventions.WithLabelValues(kind).Inc()
}
func (m *Metrics) RecordRollover() { m.rolloversTotal.Inc() }

// RecordAPIRequest tags one C25 HTTP request with its outcome, for the
// RequestLogger middleware.
func (m *Metrics) RecordAPIRequest(method, path string, status int, d time.Duration) {
	statusStr := strconv.Itoa(status)
	m.apiRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.apiRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Handler serves this instance's metrics in the Prometheus exposition
// format, for C25 (or a standalone metrics server) to mount at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, for tests that want to read
// back a metric's current value.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
