package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts conversation turns by outcome:
	// ok | timeout | degraded | error.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatrelay",
		Name:      "turns_total",
		Help:      "Conversation turns by outcome.",
	}, []string{"outcome"})

	// TurnDuration observes wall time of one RunTurn call.
	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chatrelay",
		Name:      "turn_duration_seconds",
		Help:      "Duration of one conversation turn.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	// PollTicks counts run-status polls against the assistant backend.
	PollTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatrelay",
		Name:      "poll_ticks_total",
		Help:      "Run status polls issued against the assistant backend.",
	})

	// ToolDispatches counts tool-call dispatches by tool name and outcome:
	// ok | error | unknown.
	ToolDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatrelay",
		Name:      "tool_dispatches_total",
		Help:      "Tool-call dispatches by tool and outcome.",
	}, []string{"tool", "outcome"})

	// SearchRequests counts outbound search-provider calls by outcome:
	// ok | error | invalid.
	SearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatrelay",
		Name:      "search_requests_total",
		Help:      "Outbound search provider requests by outcome.",
	}, []string{"outcome"})
)
