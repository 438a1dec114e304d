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
			Namespace: "edgelink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route, status and transport result.",
		},
		[]string{"node", "method", "route", "status", "result"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgelink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "route", "status"},
	)
	linesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgelink",
			Subsystem: "transport",
			Name:      "lines_sent_total",
			Help:      "Lines written to the link.",
		},
		[]string{"node"},
	)
	linesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgelink",
			Subsystem: "transport",
			Name:      "lines_received_total",
			Help:      "Complete lines received from the link.",
		},
		[]string{"node"},
	)
	sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgelink",
			Subsystem: "transport",
			Name:      "sends_total",
			Help:      "Finished sends by path and result.",
		},
		[]string{"node", "path", "result"},
	)
	sendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgelink",
			Subsystem: "transport",
			Name:      "send_duration_seconds",
			Help:      "Send duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"node", "path"},
	)
	sessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "edgelink",
			Subsystem: "transport",
			Name:      "session_state",
			Help:      "Current session state (0 idle, 1 sending, 2 failed, 3 completed).",
		},
		[]string{"node"},
	)
	probeGoodput = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "edgelink",
			Subsystem: "probe",
			Name:      "goodput_bytes_per_second",
			Help:      "Goodput of the last successful probe run.",
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			linesSent, linesReceived, sends, sendDuration, sessionState,
			probeGoodput,
		)
	})
}

func RecordHTTPRequest(node, method, route, result string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, route, statusLabel, result).Inc()
	httpDuration.WithLabelValues(node, method, route, statusLabel).Observe(duration.Seconds())
}

func RecordProbe(node string, bytesPerSecond float64) {
	RegisterMetrics()
	probeGoodput.WithLabelValues(node).Set(bytesPerSecond)
}
