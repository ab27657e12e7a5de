// Package telemetry exposes Prometheus metrics for the server and worker.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	GenerationsValid   = prometheus.NewCounter(prometheus.CounterOpts{Name: "playbook_generations_valid_total", Help: "Generations that passed safety validation"})
	GenerationsInvalid = prometheus.NewCounter(prometheus.CounterOpts{Name: "playbook_generations_invalid_total", Help: "Generations rejected by validation or provider failure"})
	TasksSubmitted     = prometheus.NewCounter(prometheus.CounterOpts{Name: "playbook_tasks_submitted_total", Help: "Tasks submitted to the scheduler"})
	TasksRevoked       = prometheus.NewCounter(prometheus.CounterOpts{Name: "playbook_tasks_revoked_total", Help: "Tasks revoked before execution"})
	TasksSucceeded     = prometheus.NewCounter(prometheus.CounterOpts{Name: "playbook_tasks_succeeded_total", Help: "Tasks that finished successfully"})
	TasksFailed        = prometheus.NewCounter(prometheus.CounterOpts{Name: "playbook_tasks_failed_total", Help: "Tasks that finished with failure"})
	QueueDepthGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "playbook_queue_depth", Help: "Scheduled jobs waiting in the execution queue"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			GenerationsValid,
			GenerationsInvalid,
			TasksSubmitted,
			TasksRevoked,
			TasksSucceeded,
			TasksFailed,
			QueueDepthGauge,
		)
	})
	return promhttp.Handler()
}
