// Package metrics publishes queue depth to Prometheus.
//
// A background poller reads task counts by type and status from the store
// and mirrors them into a gauge vector served at /metrics.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashita-ai/taskqueue/internal/model"
)

const (
	defaultInterval = 15 * time.Second
	queryTimeout    = 2 * time.Second
)

// Counter is the store query the collector polls.
type Counter interface {
	CountTasks(ctx context.Context) ([]model.TaskCount, error)
}

// Collector owns a Prometheus registry with the task gauges and the Go
// runtime collectors.
type Collector struct {
	store    Counter
	logger   *slog.Logger
	registry *prometheus.Registry

	tasks       *prometheus.GaugeVec
	lastRefresh prometheus.Gauge
	failures    prometheus.Counter
}

// NewCollector creates a collector over store.
func NewCollector(store Counter, logger *slog.Logger) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		store:    store,
		logger:   logger,
		registry: reg,
		tasks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "taskqueue_tasks",
			Help: "Number of tasks by task type and status.",
		}, []string{"task_type", "task_status"}),
		lastRefresh: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskqueue_metrics_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful task count refresh.",
		}),
		failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskqueue_metrics_refresh_failures_total",
			Help: "Task count refreshes that failed.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Start refreshes the gauges every interval until ctx is cancelled. The
// returned channel closes once the poller has stopped.
func (c *Collector) Start(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = defaultInterval
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("metrics: task count refresh failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return done
}

// Refresh reads the current task counts once. Combinations that no longer
// have tasks are dropped from the gauge vector.
func (c *Collector) Refresh(ctx context.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	counts, err := c.store.CountTasks(queryCtx)
	if err != nil {
		c.failures.Inc()
		return err
	}

	c.tasks.Reset()
	for _, tc := range counts {
		c.tasks.WithLabelValues(tc.TaskType, string(tc.TaskStatus)).Set(float64(tc.Count))
	}
	c.lastRefresh.SetToCurrentTime()
	return nil
}
