// Package ops exposes health, store statistics, and Prometheus metrics
// over a small HTTP endpoint, separate from the chat transport.
package ops

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/recaplabs/recap/internal/store"
)

// Metrics holds the service counters.
type Metrics struct {
	MessagesStored  prometheus.Counter
	MessagesDropped prometheus.Counter
	Evictions       prometheus.Counter
	Summaries       prometheus.Counter
	SummaryFailures prometheus.Counter
}

// NewMetrics creates and registers the counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recap_messages_stored_total",
			Help: "Messages appended to the in-memory store.",
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recap_messages_dropped_total",
			Help: "Inbound messages dropped for lack of a resolvable sender.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recap_evictions_total",
			Help: "Messages evicted from full buffers.",
		}),
		Summaries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recap_summaries_total",
			Help: "Summaries generated successfully.",
		}),
		SummaryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recap_summary_failures_total",
			Help: "Summarize requests that failed at the provider boundary.",
		}),
	}
	reg.MustRegister(m.MessagesStored, m.MessagesDropped, m.Evictions, m.Summaries, m.SummaryFailures)
	return m
}

// Handler returns the ops HTTP handler: /healthz, /statsz, /metrics.
func Handler(reg *prometheus.Registry, st *store.Store) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.HandleFunc("/statsz", func(w http.ResponseWriter, _ *http.Request) {
		stats := st.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"buffers":      stats.Buffers,
			"messages":     stats.Messages,
			"approx_bytes": stats.ApproxBytes,
		})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}
