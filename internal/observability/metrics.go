package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eppkit",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eppkit",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	eppCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eppkit",
			Subsystem: "epp",
			Name:      "commands_total",
			Help:      "EPP commands handled, by object namespace, verb and result code.",
		},
		[]string{"namespace", "verb", "code"},
	)
	eppDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eppkit",
			Subsystem: "epp",
			Name:      "command_duration_seconds",
			Help:      "EPP command handling duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"namespace", "verb"},
	)
	eppSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "eppkit",
			Subsystem: "epp",
			Name:      "sessions_active",
			Help:      "Open EPP connections.",
		},
	)
	pollEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eppkit",
			Subsystem: "poll",
			Name:      "enqueued_total",
			Help:      "Poll messages queued, by kind.",
		},
		[]string{"kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, eppCommands, eppDuration, eppSessions, pollEnqueued)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordCommand(namespace, verb string, code int, duration time.Duration) {
	RegisterMetrics()
	eppCommands.WithLabelValues(namespace, verb, strconv.Itoa(code)).Inc()
	eppDuration.WithLabelValues(namespace, verb).Observe(duration.Seconds())
}

func SessionOpened() {
	RegisterMetrics()
	eppSessions.Inc()
}

func SessionClosed() {
	RegisterMetrics()
	eppSessions.Dec()
}

func RecordPollEnqueued(kind string) {
	RegisterMetrics()
	pollEnqueued.WithLabelValues(kind).Inc()
}
