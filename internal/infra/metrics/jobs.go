package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobSubmissionsTotal,
		jobPollsTotal,
		jobAwaitSeconds,
		analysisJobsTotal,
		workerQueueRejections,
		staleRequeuedTotal,
	)
}

var (
	jobSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_job_submissions_total",
			Help:      "Remote job submissions, labeled by success.",
		},
		[]string{"success"},
	)

	jobPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_job_polls_total",
			Help:      "Status queries against the remote service, labeled by observed state.",
		},
		[]string{"result"}, // 'pending', 'ready', 'failed', 'error'
	)

	jobAwaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "media_job_await_seconds",
			Help:      "Time spent awaiting a remote job, labeled by outcome.",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 80, 160, 320, 600},
		},
		[]string{"outcome"},
	)

	analysisJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_jobs_processed_total",
			Help:      "Total number of analysis jobs processed, labeled by status and error kind.",
		},
		[]string{"status", "mode", "kind"},
	)

	workerQueueRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_queue_rejections_total",
			Help:      "Tasks dropped because the worker queue was full.",
		},
	)

	staleRequeuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_jobs_requeued_total",
			Help:      "Analyses moved from processing back to queued after going stale.",
		},
	)
)

func IncJobSubmission(success bool) {
	jobSubmissionsTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func IncPoll(result string) {
	jobPollsTotal.WithLabelValues(norm(result)).Inc()
}

func ObserveAwait(outcome string, d time.Duration) {
	jobAwaitSeconds.WithLabelValues(norm(outcome)).Observe(d.Seconds())
}

func IncAnalysisJob(status, mode, kind string) {
	analysisJobsTotal.WithLabelValues(norm(status), norm(mode), norm(kind)).Inc()
}

func IncQueueRejection() {
	workerQueueRejections.Inc()
}

func IncStaleRequeued(n int) {
	staleRequeuedTotal.Add(float64(n))
}
