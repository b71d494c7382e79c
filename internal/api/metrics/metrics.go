// Package metrics defines and registers the custom Prometheus metrics of the
// solver API. It is the single source of truth for metric names, labels and
// help strings; HTTP-level request metrics come from echoprometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "solver"

// ── Relay metrics ─────────────────────────────────────────────────────────────

// SolveRequestsTotal counts solve requests by terminal state.
// Labels:
//   - mode: "buffered" or "stream"
//   - outcome: "rejected", "succeeded", "failed" (buffered);
//     "rejected", "failed", "completed", "relayed_error", "abandoned" (stream)
var SolveRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "solve_requests_total",
		Help:      "Total number of solve requests, by mode and terminal state.",
	},
	[]string{"mode", "outcome"},
)

// SolveDuration measures time from request receipt to the last byte written.
// Label:
//   - mode: "buffered" or "stream"
var SolveDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "solve_duration_seconds",
		Help:      "Duration of solve requests from receipt to final write.",
		Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	},
	[]string{"mode"},
)

// StreamChunksTotal counts chunk frames relayed to callers.
var StreamChunksTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_chunks_total",
		Help:      "Total number of chunk frames written to event streams.",
	},
)

// ActiveStreams tracks event streams currently being relayed.
var ActiveStreams = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_streams",
		Help:      "Number of event streams currently open.",
	},
)

// UpstreamErrorsTotal counts classified upstream failures.
// Labels:
//   - kind: "auth", "timeout", "unknown"
//   - phase: "buffered", "stream_open", "mid_stream"
var UpstreamErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_errors_total",
		Help:      "Total number of upstream completion failures, by classification and phase.",
	},
	[]string{"kind", "phase"},
)

// ── Auth metrics ──────────────────────────────────────────────────────────────

// AuthAttemptsTotal counts register/login attempts.
// Labels:
//   - operation: "register" or "login"
//   - result: "success", "rejected", "error"
var AuthAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_attempts_total",
		Help:      "Total number of authentication attempts, by operation and result.",
	},
	[]string{"operation", "result"},
)
