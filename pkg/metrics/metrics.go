package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TaskStatus labels tasks_total.
type TaskStatus string

const (
	TaskStatusOK    TaskStatus = "ok"
	TaskStatusError TaskStatus = "error"
)

type timeSinceFunc func(t time.Time) time.Duration

// Used to override time sensitive properties in tests.
var timeSinceFn = timeSinceFunc(func(t time.Time) time.Duration {
	return time.Since(t)
})

var (
	tasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ghidra_auto_analysis_tasks_total",
		Help: "Counter tracking analyzed submissions and statuses",
	}, []string{"status"})

	taskDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ghidra_auto_analysis_task_duration_seconds",
		Help:    "Histogram tracking submission analysis durations in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
	})

	tagsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ghidra_auto_analysis_tags_total",
		Help: "Counter tracking emitted tags by tag type",
	}, []string{"tag_type"})
)

func init() {
	prometheus.MustRegister(
		tasksTotal,
		taskDuration,
		tagsTotal,
	)
}

func taskStatus(err error) TaskStatus {
	if err != nil {
		return TaskStatusError
	}
	return TaskStatusOK
}

// IncTasksTotal counts a finished task; any error, cancellation included, is an error.
func IncTasksTotal(err error) {
	tasksTotal.WithLabelValues(string(taskStatus(err))).Inc()
}

// ObserveTaskDuration records the time since start.
func ObserveTaskDuration(start time.Time) {
	taskDuration.Observe(timeSinceFn(start).Seconds())
}

// AddTags counts n emitted tags of tagType.
func AddTags(tagType string, n int) {
	if n <= 0 {
		return
	}
	tagsTotal.WithLabelValues(tagType).Add(float64(n))
}
