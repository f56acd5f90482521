package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace prefixes every collector exported by the service.
const namespace = "opsvision"

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register queues collectors from each file's init; nothing is exported
// until MustRegister runs.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister exports the queued collectors on the default registry. Only
// the first call has an effect, so the CLI and tests may call it freely.
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(collectors...)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
