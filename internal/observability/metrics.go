package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the portal.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ordersCreated   prometheus.Counter
	ordersDecided   *prometheus.CounterVec
	overBudget      *prometheus.CounterVec
	periodsClosed   prometheus.Counter
	ordersLocked    prometheus.Counter
}

// NewMetrics initialises the registry with HTTP and domain metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_orders_created_total",
		Help: "Orders submitted into an open period.",
	})
	decided := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_orders_decided_total",
		Help: "Order decisions by resulting status.",
	}, []string{"status"})
	overBudget := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_over_budget_total",
		Help: "Ledger rejections by stage (submit or approve).",
	}, []string{"stage"})
	closed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_periods_closed_total",
		Help: "Quarterly periods closed.",
	})
	locked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_orders_locked_total",
		Help: "Orders locked by period closes.",
	})
	registry.MustRegister(
		requests, duration, created, decided, overBudget, closed, locked,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		ordersCreated:   created,
		ordersDecided:   decided,
		overBudget:      overBudget,
		periodsClosed:   closed,
		ordersLocked:    locked,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// OrderCreated counts a successful submission.
func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// OrderDecided counts a committed decision.
func (m *Metrics) OrderDecided(status string) {
	if m == nil {
		return
	}
	m.ordersDecided.WithLabelValues(status).Inc()
}

// OverBudget counts a ledger rejection.
func (m *Metrics) OverBudget(stage string) {
	if m == nil {
		return
	}
	m.overBudget.WithLabelValues(stage).Inc()
}

// PeriodClosed counts a period close and the orders it locked.
func (m *Metrics) PeriodClosed(lockedOrders int64) {
	if m == nil {
		return
	}
	m.periodsClosed.Inc()
	m.ordersLocked.Add(float64(lockedOrders))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
