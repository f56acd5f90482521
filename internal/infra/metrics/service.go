package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(buildInfo, storePool, jobCacheLookups) }

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Always 1; labels carry the running version and commit.",
		},
		[]string{"version", "commit"},
	)

	// Only the postgres store reports; sqlite runs in-process.
	storePool = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_pool_connections",
			Help:      "Job store connections by state.",
		},
		[]string{"state"},
	)

	jobCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_cache_lookups_total",
			Help:      "Redis lookups in front of the job store, by cache and result (hit, miss, error).",
		},
		[]string{"cache", "result"},
	)
)

func SetBuildInfo(version, commit string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit).Set(1)
}

func SetDBPoolStats(total, idle, inUse int32) {
	storePool.WithLabelValues("total").Set(float64(total))
	storePool.WithLabelValues("idle").Set(float64(idle))
	storePool.WithLabelValues("in_use").Set(float64(inUse))
}

func IncCacheRequest(cacheName, result string) {
	jobCacheLookups.WithLabelValues(norm(cacheName), norm(result)).Inc()
}
