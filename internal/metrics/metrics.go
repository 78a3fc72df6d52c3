// Package metrics exposes Prometheus collectors for the watcher.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics collects evaluation, fetch and delivery measurements.
type Metrics struct {
	registry *prometheus.Registry

	MatchOutcomes  *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	FetchErrors    *prometheus.CounterVec
	CycleDuration  *prometheus.HistogramVec
	CycleSnapshots prometheus.Gauge
	Notifications  *prometheus.CounterVec
	BackfillTotal  *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		MatchOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goalline_match_outcomes_total",
				Help: "Per-match evaluation outcomes",
			},
			[]string{"half", "outcome"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goalline_fetch_duration_seconds",
				Help:    "Latency of upstream feed and odds requests",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"source", "op"},
		),
		FetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goalline_fetch_errors_total",
				Help: "Failed upstream requests",
			},
			[]string{"source", "op"},
		),
		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goalline_cycle_duration_seconds",
				Help:    "Duration of evaluation cycles",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
			},
			[]string{"status"},
		),
		CycleSnapshots: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "goalline_cycle_snapshots",
				Help: "In-play snapshots evaluated by the last cycle",
			},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goalline_notifications_total",
				Help: "Notifications handed to the sink",
			},
			[]string{"kind", "status"},
		),
		BackfillTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goalline_backfill_records_total",
				Help: "Records visited by result backfill",
			},
			[]string{"state"},
		),
	}

	m.registry.MustRegister(
		m.MatchOutcomes,
		m.FetchDuration,
		m.FetchErrors,
		m.CycleDuration,
		m.CycleSnapshots,
		m.Notifications,
		m.BackfillTotal,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordOutcome counts one per-match result.
func (m *Metrics) RecordOutcome(half, outcome string) {
	m.MatchOutcomes.WithLabelValues(half, outcome).Inc()
}

// ObserveFetch matches fetcher.ObserveFunc.
func (m *Metrics) ObserveFetch(source, op string, elapsed time.Duration, err error) {
	m.FetchDuration.WithLabelValues(source, op).Observe(elapsed.Seconds())
	if err != nil {
		m.FetchErrors.WithLabelValues(source, op).Inc()
	}
}

// RecordCycle records one evaluation cycle.
func (m *Metrics) RecordCycle(elapsed time.Duration, snapshots, _ int, err error) {
	m.CycleDuration.WithLabelValues(statusStr(err == nil)).Observe(elapsed.Seconds())
	if err == nil {
		m.CycleSnapshots.Set(float64(snapshots))
	}
}

// RecordDelivery counts one notification hand-off.
func (m *Metrics) RecordDelivery(kind string, err error) {
	m.Notifications.WithLabelValues(kind, statusStr(err == nil)).Inc()
}

// RecordBackfill counts the records of one backfill pass by state.
func (m *Metrics) RecordBackfill(completed, pending, failed int) {
	m.BackfillTotal.WithLabelValues("completed").Add(float64(completed))
	m.BackfillTotal.WithLabelValues("pending").Add(float64(pending))
	m.BackfillTotal.WithLabelValues("failed").Add(float64(failed))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes the registry on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr, path string, logger zerolog.Logger) error {
	if path == "" || !strings.HasPrefix(path, "/") {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Str("path", path).Msg("metrics server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func statusStr(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}
