package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(httpRequestsTotal) }

var httpRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served, labeled by route pattern and status code.",
	},
	[]string{"route", "method", "code"},
)

func IncHTTPRequest(route, method string, code int) {
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}
