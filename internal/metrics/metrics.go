package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/core"
)

// Collector exposes orchestrator execution metrics in Prometheus format.
// It owns its registry so tests can create collectors without tripping
// over duplicate registration.
type Collector struct {
	registry *prometheus.Registry

	executions  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	pendingJobs prometheus.Gauge
	servers     prometheus.Gauge
}

var _ core.Metrics = (*Collector)(nil)

// NewCollector creates and registers all orchestrator metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plemiona_executions_total",
			Help: "Total number of task executions by kind and outcome",
		}, []string{"task", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plemiona_execution_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"task"}),
		pendingJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plemiona_manual_tasks_pending",
			Help: "Current number of pending manual tasks",
		}),
		servers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plemiona_active_servers",
			Help: "Current number of servers under orchestration",
		}),
	}

	c.registry.MustRegister(c.executions)
	c.registry.MustRegister(c.duration)
	c.registry.MustRegister(c.pendingJobs)
	c.registry.MustRegister(c.servers)
	c.registry.MustRegister(collectors.NewGoCollector())
	c.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return c
}

// RecordExecution counts one finished execution and observes its duration.
func (c *Collector) RecordExecution(kind string, status core.ExecutionStatus, duration time.Duration) {
	c.executions.WithLabelValues(kind, string(status)).Inc()
	c.duration.WithLabelValues(kind).Observe(duration.Seconds())
}

// SetPendingManualTasks updates the manual queue depth gauge.
func (c *Collector) SetPendingManualTasks(n int) {
	c.pendingJobs.Set(float64(n))
}

// SetActiveServers updates the orchestrated-server gauge.
func (c *Collector) SetActiveServers(n int) {
	c.servers.Set(float64(n))
}

// Handler returns the /metrics scrape handler for this collector's
// registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
