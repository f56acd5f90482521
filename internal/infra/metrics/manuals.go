package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(manualChunksTotal, recallLookupsTotal) }

var (
	manualChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_chunks_ingested_total",
			Help:      "Manual chunks embedded and stored.",
		},
	)

	recallLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_recall_lookups_total",
			Help:      "Per-item manual lookups for image recall, by result (hit, miss).",
		},
		[]string{"result"},
	)
)

func IncManualChunks(n int) {
	manualChunksTotal.Add(float64(n))
}

func IncRecall(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	recallLookupsTotal.WithLabelValues(result).Inc()
}
