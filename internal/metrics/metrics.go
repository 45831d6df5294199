// Package metrics declares the Prometheus collectors shared by the taskfeed
// server and client components.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll results.
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultTruncated = "truncated"
)

var (
	// ChangesRecorded counts change events appended by the recorder, by type.
	ChangesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskfeed_changes_recorded_total",
		Help: "Change events appended to the change log by type",
	}, []string{"type"})

	// ChangeRecordFailures counts swallowed recorder write failures, by type.
	ChangeRecordFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskfeed_change_record_failures_total",
		Help: "Change events that could not be recorded by type",
	}, []string{"type"})

	// FeedRequests counts change feed requests by HTTP status code.
	FeedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskfeed_feed_requests_total",
		Help: "Change feed requests by response status",
	}, []string{"code"})

	// FeedPageSize tracks the number of events returned per feed page.
	FeedPageSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskfeed_feed_page_size",
		Help:    "Events returned per change feed page",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 200},
	})

	// Polls counts client poll round trips by result.
	Polls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskfeed_polls_total",
		Help: "Sync poller round trips by result",
	}, []string{"result"})

	// PollsSkipped counts ticks dropped because a poll was already in flight.
	PollsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskfeed_polls_skipped_total",
		Help: "Poll ticks dropped by the single-flight gate",
	})

	// EventsReceived counts feed events handed to the reconciler, by type.
	// Unknown types are counted under "UNKNOWN".
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskfeed_events_received_total",
		Help: "Change feed events received by the sync poller by type",
	}, []string{"type"})

	// PollDuration tracks feed round trip latency.
	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskfeed_poll_duration_seconds",
		Help:    "Change feed round trip duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	})

	// Refetches counts reconciliation refetches by entity and result.
	Refetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskfeed_refetches_total",
		Help: "Entity refetches issued by the reconciler by entity and result",
	}, []string{"entity", "result"})

	// PushClients tracks connected websocket push clients.
	PushClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskfeed_push_clients",
		Help: "Connected websocket push clients",
	})
)

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
