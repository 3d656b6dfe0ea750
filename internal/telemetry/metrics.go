// Package telemetry exposes the prometheus metrics emitted by the registrar
// and node binaries, plus an HTTP middleware that instruments handlers with
// request counts, latencies, and in-flight gauges.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringvote",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ringvote",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)

	InFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ringvote",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
		[]string{"op"},
	)

	// RegistrationsTotal counts registration attempts handled by the
	// Registrar, labeled by outcome ("accepted", "duplicate", "rejected").
	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringvote",
			Name:      "registrations_total",
			Help:      "Registration attempts handled by the registrar.",
		},
		[]string{"outcome"},
	)

	// RingRebuildsTotal counts how many times the registrar recomputed
	// ring successors, labeled by trigger ("register", "pre-election",
	// "recover", "forward-failure" or "manual"). A node process counts its
	// own rebuild requests here under the same triggers with a "_client"
	// suffix.
	RingRebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringvote",
			Name:      "ring_rebuilds_total",
			Help:      "Number of times the ring topology was rebuilt.",
		},
		[]string{"trigger"},
	)

	// RingEpoch reports the current ring epoch.
	RingEpoch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ringvote",
			Name:      "ring_epoch",
			Help:      "Current ring topology epoch.",
		},
	)

	// RingSize reports the number of live members in the ring.
	RingSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ringvote",
			Name:      "ring_size",
			Help:      "Number of live members in the current ring.",
		},
	)

	// ElectionRoundsTotal counts election rounds initiated, labeled by
	// trigger ("recovery" or "manual").
	ElectionRoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringvote",
			Name:      "election_rounds_total",
			Help:      "Number of election rounds initiated by a node.",
		},
		[]string{"trigger"},
	)

	// MessagesForwardedTotal counts election/leader tokens a node has
	// forwarded to its successor, labeled by message kind ("election",
	// "leader"); the "leader_received" label counts leader announcements a
	// node has received.
	MessagesForwardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringvote",
			Name:      "messages_forwarded_total",
			Help:      "Election and leader messages forwarded to a successor.",
		},
		[]string{"kind"},
	)

	// ProbeFailuresTotal counts failed leader liveness probes observed by
	// the failure detector, per probing node.
	ProbeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringvote",
			Name:      "probe_failures_total",
			Help:      "Failed leader liveness probes observed by a node's detector.",
		},
		[]string{"node"},
	)

	// RecoveriesTriggeredTotal counts how many times a node's detector
	// initiated a recovery election after declaring the leader unreachable.
	RecoveriesTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringvote",
			Name:      "recoveries_triggered_total",
			Help:      "Recovery elections triggered after leader unreachability.",
		},
		[]string{"node"},
	)

	// SuccessorPushFailuresTotal counts failed SetSuccessor pushes from the
	// registrar to a member during RebuildRing, labeled by target node.
	SuccessorPushFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringvote",
			Name:      "successor_push_failures_total",
			Help:      "Failed SetSuccessor pushes from the registrar to a member.",
		},
		[]string{"node"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "ringvote",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		RequestsTotal, RequestDuration, InFlight,
		RegistrationsTotal, RingRebuildsTotal, RingEpoch, RingSize,
		ElectionRoundsTotal, MessagesForwardedTotal,
		ProbeFailuresTotal, RecoveriesTriggeredTotal, SuccessorPushFailuresTotal,
		uptime,
	)
}

// MetricsHandler exposes /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record request metrics under op.
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		InFlight.WithLabelValues(op).Inc()
		defer InFlight.WithLabelValues(op).Dec()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
