package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiTokensTotal,
		aiCallsLatencyMs,
		agentToolCalls,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_tokens_in",
			Help:      "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_tokens_out",
			Help:      "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_tokens_total",
			Help:      "Sum of total tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_calls_latency_ms",
			Help:      "AI call latency distribution in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"provider", "model", "op", "success"},
	)

	agentToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_tool_calls_total",
			Help:      "Tool invocations requested by the agent, labeled by tool and success.",
		},
		[]string{"tool", "success"},
	)
)

func ObserveChatUsage(provider, model string, tokensIn, tokensOut, tokensTotal int, latencyMs int, success bool) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	aiTokensTotal.WithLabelValues(lbl...).Add(float64(tokensTotal))
	ObserveAICall(provider, model, "chat", latencyMs, success)
}

// ObserveAICall records latency for any model call (generate, upload, ...).
func ObserveAICall(provider, model, op string, latencyMs int, success bool) {
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(model), norm(op), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncToolCall(tool string, success bool) {
	agentToolCalls.WithLabelValues(norm(tool), strconv.FormatBool(success)).Inc()
}
