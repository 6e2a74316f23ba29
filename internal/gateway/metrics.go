package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the counters the router exposes at /metrics, grounded on
// the teacher's internal/gateway/http_server.go mounting
// promhttp.Handler() alongside its chat routes.
var (
	chatRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storegate_chat_requests_total",
		Help: "Chat requests by route and outcome.",
	}, []string{"route", "outcome"})

	toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storegate_tool_calls_total",
		Help: "Tool-protocol calls by tool name and outcome.",
	}, []string{"tool", "outcome"})
)

func init() {
	prometheus.MustRegister(chatRequests, toolCalls)
}

// metricsHandler serves GET /metrics for scraping.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
