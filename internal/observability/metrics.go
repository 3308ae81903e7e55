package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	actionsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cxlctl",
			Subsystem: "actions",
			Name:      "submitted_total",
			Help:      "Requests handed to the action bus.",
		},
		[]string{"family"},
	)
	actionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cxlctl",
			Subsystem: "actions",
			Name:      "duration_seconds",
			Help:      "Time from submission to completion of an action.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"family"},
	)
	responses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cxlctl",
			Subsystem: "responses",
			Name:      "total",
			Help:      "Responses by validation outcome.",
		},
		[]string{"family", "outcome"},
	)
	remoteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cxlctl",
			Subsystem: "responses",
			Name:      "remote_errors_total",
			Help:      "Responses carrying a failing return code.",
		},
		[]string{"family", "code"},
	)
	viewRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cxlctl",
			Subsystem: "view",
			Name:      "requests_total",
			Help:      "Cache view requests by resource.",
		},
		[]string{"resource", "status"},
	)
	viewDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cxlctl",
			Subsystem: "view",
			Name:      "request_duration_seconds",
			Help:      "Time spent serving a cache view, including the cache lock.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"resource"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(actionsSubmitted, actionDuration, responses, remoteErrors, viewRequests, viewDuration)
	})
}

func RecordSubmitted(family string) {
	RegisterMetrics()
	actionsSubmitted.WithLabelValues(family).Inc()
}

func RecordCompleted(family string, elapsed time.Duration) {
	RegisterMetrics()
	actionDuration.WithLabelValues(family).Observe(elapsed.Seconds())
}

// RecordResponse counts one response outcome, for example "success",
// "in_progress", "remote_error" or "timeout".
func RecordResponse(family, outcome string) {
	RegisterMetrics()
	responses.WithLabelValues(family, outcome).Inc()
}

func RecordRemoteError(family string, code uint16) {
	RegisterMetrics()
	remoteErrors.WithLabelValues(family, strconv.FormatUint(uint64(code), 10)).Inc()
}

func RecordViewRequest(resource string, status int, duration time.Duration) {
	RegisterMetrics()
	viewRequests.WithLabelValues(resource, strconv.Itoa(status)).Inc()
	viewDuration.WithLabelValues(resource).Observe(duration.Seconds())
}
