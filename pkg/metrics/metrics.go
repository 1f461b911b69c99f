// Package metrics provides Prometheus metrics export for tlw.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tlw"

var (
	enabled         bool
	enabledMutex    sync.RWMutex
	defaultRegistry *Registry
)

// Init initializes the metrics system.
func Init() {
	enabledMutex.Lock()
	defer enabledMutex.Unlock()
	enabled = true
	defaultRegistry = NewRegistry()
}

// Enabled returns true if metrics are enabled.
func Enabled() bool {
	enabledMutex.RLock()
	defer enabledMutex.RUnlock()
	return enabled
}

// Default returns the default metrics registry.
func Default() *Registry {
	enabledMutex.RLock()
	r := defaultRegistry
	enabledMutex.RUnlock()
	if r == nil {
		Init()
		return Default()
	}
	return r
}

// Registry holds all tlw metrics on a private Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	refreshes         *prometheus.CounterVec
	refreshDuration   prometheus.Histogram
	coalesced         prometheus.Counter
	ticks             prometheus.Counter
	expiryRefreshes   prometheus.Counter
	pendingOperations prometheus.Gauge
	locks             *prometheus.GaugeVec
	pendingCountdowns prometheus.Gauge
	expirations       prometheus.Counter
	notifications     *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Lock operations by kind and outcome.",
		}, []string{"kind", "result"}),
		operationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Ledger round-trip time for lock operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refreshes_total",
			Help:      "Lock cache refreshes by outcome.",
		}, []string{"result"}),
		refreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_refresh_duration_seconds",
			Help:      "Time spent fetching locks from the ledger.",
			Buckets:   prometheus.DefBuckets,
		}),
		coalesced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refreshes_coalesced_total",
			Help:      "Refresh requests that joined an in-flight fetch.",
		}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "countdown_ticks_total",
			Help:      "Countdown ticks processed.",
		}),
		expiryRefreshes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "countdown_expiry_refreshes_total",
			Help:      "Refreshes triggered by countdowns reaching zero.",
		}),
		pendingOperations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operations_pending",
			Help:      "Lock operations awaiting a ledger response.",
		}),
		locks: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locks",
			Help:      "Cached locks by status.",
		}, []string{"status"}),
		pendingCountdowns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "countdowns_pending",
			Help:      "Locks whose countdown is still running.",
		}),
		expirations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "countdown_expirations_total",
			Help:      "Countdowns observed reaching zero.",
		}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "User notifications emitted by kind.",
		}, []string{"kind"}),
	}
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordOperation records a create or withdraw attempt that reached the ledger.
func (r *Registry) RecordOperation(kind string, success bool, duration time.Duration) {
	r.operations.WithLabelValues(kind, result(success)).Inc()
	r.operationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordRejected records an operation refused before any ledger call.
func (r *Registry) RecordRejected(kind string) {
	r.operations.WithLabelValues(kind, "rejected").Inc()
}

// RecordRefresh records a cache refresh.
func (r *Registry) RecordRefresh(success bool, duration time.Duration) {
	r.refreshes.WithLabelValues(result(success)).Inc()
	if success {
		r.refreshDuration.Observe(duration.Seconds())
	}
}

// RecordCoalesced counts a refresh request served by an in-flight fetch.
func (r *Registry) RecordCoalesced() {
	r.coalesced.Inc()
}

// RecordTick counts a countdown tick.
func (r *Registry) RecordTick() {
	r.ticks.Inc()
}

// RecordExpiryRefresh counts a batched refresh fired after countdowns expired.
func (r *Registry) RecordExpiryRefresh() {
	r.expiryRefreshes.Inc()
}

// SetPendingOperations records how many lock operations are in flight.
func (r *Registry) SetPendingOperations(n int) {
	r.pendingOperations.Set(float64(n))
}

// SetLocks replaces the per-status lock gauge.
func (r *Registry) SetLocks(byStatus map[string]int) {
	r.locks.Reset()
	for status, n := range byStatus {
		r.locks.WithLabelValues(status).Set(float64(n))
	}
}

// SetPendingCountdowns records how many countdowns are running.
func (r *Registry) SetPendingCountdowns(n int) {
	r.pendingCountdowns.Set(float64(n))
}

// RecordExpirations adds countdowns that just reached zero.
func (r *Registry) RecordExpirations(n int) {
	r.expirations.Add(float64(n))
}

// RecordNotification counts a user notification.
func (r *Registry) RecordNotification(kind string) {
	r.notifications.WithLabelValues(kind).Inc()
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
