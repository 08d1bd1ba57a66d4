package metric

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "usagestats"

// Registry holds the application metrics.
type Registry struct {
	registry *prometheus.Registry

	MaintenanceRuns     *prometheus.CounterVec
	MaintenanceDuration *prometheus.HistogramVec
	ConfigReloads       *prometheus.CounterVec
}

// NewRegistry creates a registry with the Go and process collectors and the
// maintenance metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		MaintenanceRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_runs_total",
			Help:      "Maintenance task runs by task and result.",
		}, []string{"task", "result"}),
		MaintenanceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "maintenance_duration_seconds",
			Help:      "Duration of maintenance task runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"task"}),
		ConfigReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration reloads by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(r.MaintenanceRuns, r.MaintenanceDuration, r.ConfigReloads)
	return r
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() { global = NewRegistry() })
	return global
}

// Registerer returns the registerer for components that own their metrics.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Gatherer returns the underlying gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns the /metrics handler of the registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveMaintenance records one run of a maintenance task.
func (r *Registry) ObserveMaintenance(task string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.MaintenanceRuns.WithLabelValues(task, result).Inc()
	r.MaintenanceDuration.WithLabelValues(task).Observe(time.Since(start).Seconds())
}

// ObserveReload records a configuration reload.
func (r *Registry) ObserveReload(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.ConfigReloads.WithLabelValues(result).Inc()
}

// Handler returns the handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}
