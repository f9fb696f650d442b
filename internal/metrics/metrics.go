// Package metrics exposes Prometheus counters for the client's economic
// pipelines on a private registry, with an optional HTTP listener for local
// scraping during soak tests.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the client's counters.
type Metrics struct {
	registry *prometheus.Registry

	SessionsRequested *prometheus.CounterVec
	SessionsGranted   prometheus.Counter
	SessionsDenied    prometheus.Counter
	Submissions       *prometheus.CounterVec

	Purchases *prometheus.CounterVec

	ClaimsAsserted  prometheus.Counter
	ClaimsConfirmed prometheus.Counter
}

// New creates and registers all counters on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		SessionsRequested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skyrush_sessions_requested_total",
			Help: "Session grant requests, by mode.",
		}, []string{"mode"}),
		SessionsGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skyrush_sessions_granted_total",
			Help: "Session requests granted by the server.",
		}),
		SessionsDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skyrush_sessions_denied_total",
			Help: "Session requests denied by the resource gate.",
		}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skyrush_submissions_total",
			Help: "Result submissions, by outcome (ok, failed, already_processed).",
		}, []string{"outcome"}),
		Purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skyrush_purchases_total",
			Help: "Purchase deliveries, by outcome (verified, duplicate, rejected, unavailable, cancelled).",
		}, []string{"outcome"}),
		ClaimsAsserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skyrush_claims_asserted_total",
			Help: "Reward claims asserted optimistically.",
		}),
		ClaimsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skyrush_claims_confirmed_total",
			Help: "Optimistic claims confirmed by an authoritative snapshot.",
		}),
	}

	registry.MustRegister(
		m.SessionsRequested,
		m.SessionsGranted,
		m.SessionsDenied,
		m.Submissions,
		m.Purchases,
		m.ClaimsAsserted,
		m.ClaimsConfirmed,
	)
	return m
}

// Serve exposes /metrics on addr until ctx is cancelled. Blocks.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics: listener failed: %w", err)
	}
	return nil
}
