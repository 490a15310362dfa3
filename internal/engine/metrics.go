package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonathon-love/silky/internal/wire"
)

var (
	requestsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "silky_engine_requests_sent_total",
			Help: "Total number of analysis requests written to the engine.",
		},
	)

	responsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silky_engine_responses_total",
			Help: "Total number of matched analysis responses, by status.",
		},
		[]string{"status"},
	)

	unmatchedResponses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "silky_engine_unmatched_responses_total",
			Help: "Responses whose correlation id matched no pending request.",
		},
	)

	discardedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "silky_engine_discarded_messages_total",
			Help: "Inbound messages dropped because they could not be decoded.",
		},
	)

	pendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "silky_engine_pending_requests",
			Help: "Requests still waiting for a final response.",
		},
	)

	receiveTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "silky_engine_receive_timeouts_total",
			Help: "Receive loop iterations that ended without a message.",
		},
	)

	engineTerminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silky_engine_terminations_total",
			Help: "Engine terminations, by reason.",
		},
		[]string{"reason"},
	)

	dispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "silky_engine_dispatch_seconds",
			Help:    "Time spent delivering one response to the results listeners, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(requestsSent)
	prometheus.MustRegister(responsesTotal)
	prometheus.MustRegister(unmatchedResponses)
	prometheus.MustRegister(discardedMessages)
	prometheus.MustRegister(pendingRequests)
	prometheus.MustRegister(receiveTimeouts)
	prometheus.MustRegister(engineTerminations)
	prometheus.MustRegister(dispatchDuration)

	// Pre-initialize label combinations so they appear in /metrics before
	// the first response arrives.
	for _, s := range wire.AllStatuses {
		responsesTotal.WithLabelValues(s.String())
	}
}
