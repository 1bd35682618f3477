package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	// TasksCompleted 任务进度指标
	TasksCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_tasks_completed_total",
			Help: "Total number of day tasks completed.",
		},
		[]string{"chain"},
	)
	TasksFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_tasks_failed_total",
			Help: "Total number of day tasks that ended with a terminal error.",
		},
		[]string{"chain"},
	)
	TasksSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_tasks_skipped_total",
			Help: "Total number of day tasks skipped because a completed partition already exists.",
		},
		[]string{"chain"},
	)
	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_task_duration_seconds",
			Help:    "Time taken to fetch, enrich and write one day partition.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"chain"},
	)

	// FetcherBisections 范围二分指标
	FetcherBisections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_range_bisections_total",
			Help: "Total number of block ranges split after a range-too-large error.",
		},
		[]string{"chain"},
	)
	FetcherRPCErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_rpc_errors_total",
			Help: "Total number of non-splittable RPC errors during log fetch.",
		},
		[]string{"chain"},
	)

	// EventsEnriched 事件估值指标
	EventsEnriched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_events_total",
			Help: "Total number of swap events written, by pricing outcome.",
		},
		[]string{"chain", "priced"},
	)
)

func init() {
	prometheus.MustRegister(
		TasksCompleted,
		TasksFailed,
		TasksSkipped,
		TaskDuration,
		FetcherBisections,
		FetcherRPCErrors,
		EventsEnriched,
	)
}
