// Package metrics holds the Prometheus collectors shared across the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "maturity_report"

var (
	// PollAttempts counts every job fetch made by a poller.
	PollAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "fetch_attempts_total",
		Help:      "Job fetches made by poll loops.",
	})

	// PollOutcomes counts terminal poll events by outcome.
	PollOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "outcomes_total",
		Help:      "Terminal poll outcomes by kind.",
	}, []string{"outcome"})

	// LenientCompletions counts jobs accepted through the lenient completion path.
	LenientCompletions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "lenient_completions_total",
		Help:      "Jobs accepted with an unrecognised status because a payload was present.",
	})

	// ChatRequests counts assistant requests by how they ended.
	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "requests_total",
		Help:      "Assistant requests by result (ok, error, cancelled, stale).",
	}, []string{"result"})

	// ChatSessions tracks sessions currently held by the chat registry.
	ChatSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "sessions_open",
		Help:      "Chat sessions held in the registry.",
	})

	// NormalizeCacheLookups counts history cache hits and misses.
	NormalizeCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "history",
		Name:      "normalize_cache_lookups_total",
		Help:      "Normalized result cache lookups by result (hit, miss).",
	}, []string{"result"})

	// JobsSubmitted counts report submissions by result.
	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "report",
		Name:      "jobs_submitted_total",
		Help:      "Job submissions by result (ok, error).",
	}, []string{"result"})

	// PersistenceErrors counts storage failures that were logged and not returned.
	PersistenceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "errors_total",
		Help:      "Swallowed persistence errors by operation.",
	}, []string{"op"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
