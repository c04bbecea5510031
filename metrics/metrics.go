package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TurnsTotal counts completed turns by reply type (questions, answer)
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rick",
			Subsystem: "reply",
			Name:      "turns_total",
			Help:      "Total number of completed turns",
		},
		[]string{"type"},
	)

	// CompletionCallsTotal counts outbound model calls by pass (clarify, draft, refine)
	CompletionCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rick",
			Subsystem: "reply",
			Name:      "completion_calls_total",
			Help:      "Total number of chat completion calls",
		},
		[]string{"pass"},
	)

	CompletionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rick",
			Subsystem: "reply",
			Name:      "completion_errors_total",
			Help:      "Total chat completion failures",
		},
		[]string{"pass"},
	)

	ConversationsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rick",
			Subsystem: "reply",
			Name:      "conversations_created_total",
			Help:      "Total conversations created",
		},
	)
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
