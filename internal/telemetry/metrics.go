package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики ядра. Регистрируются в default registry,
// экспортируются через promhttp на /metrics.
var (
	// RunsStarted — количество запущенных runs по типу.
	RunsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maestro_runs_started_total",
		Help: "Total runs transitioned to RUNNING, by run type",
	}, []string{"run_type"})

	// RunsFinished — количество завершённых runs по терминальному статусу.
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maestro_runs_finished_total",
		Help: "Total runs reaching a terminal status",
	}, []string{"status"})

	// ActiveRuns — количество runs в обработке прямо сейчас.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "maestro_active_runs",
		Help: "Runs currently being executed",
	})

	// TasksFinished — количество tasks по терминальному статусу.
	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maestro_tasks_finished_total",
		Help: "Total tasks reaching a terminal status",
	}, []string{"status"})

	// TaskDuration — длительность выполнения task от RUNNING до
	// терминального статуса. Пропущенные (short-circuit) tasks не
	// учитываются: у них нет start_time.
	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "maestro_task_duration_seconds",
		Help:    "Task execution duration from dispatch to terminal status",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	})

	// EvalRunsFinished — количество завершённых eval runs по статусу.
	EvalRunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maestro_eval_runs_finished_total",
		Help: "Total evaluation runs reaching a terminal status",
	}, []string{"status"})
)

// ObserveTaskFinished фиксирует терминальный статус task и его длительность.
func ObserveTaskFinished(status string, d time.Duration) {
	TasksFinished.WithLabelValues(status).Inc()
	if d > 0 {
		TaskDuration.Observe(d.Seconds())
	}
}
