// Package metrics defines the Prometheus collectors for preprocessing runs and
// exposes an HTTP handler for scraping.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors on a private registry. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	Registry *prometheus.Registry

	RecordsEncodedTotal *prometheus.CounterVec
	RecordErrorsTotal   *prometheus.CounterVec
	CacheLookupsTotal   *prometheus.CounterVec
	SplitRecords        *prometheus.GaugeVec
	MaterializeDuration *prometheus.HistogramVec
	BatchesServedTotal  *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RecordsEncodedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taxoprep_records_encoded_total",
				Help: "Records cleaned, tokenized and label-encoded, by scheme.",
			},
			[]string{"scheme"},
		),
		RecordErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taxoprep_record_errors_total",
				Help: "Records that aborted a run, by scheme.",
			},
			[]string{"scheme"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taxoprep_cache_lookups_total",
				Help: "Cache lookups by result (hit, miss, invalid).",
			},
			[]string{"result"},
		),
		SplitRecords: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "taxoprep_split_records",
				Help: "Records per subset of the last materialized split.",
			},
			[]string{"key", "subset"},
		),
		MaterializeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taxoprep_materialize_duration_seconds",
				Help:    "Time to load or compute a split.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"cache_status"},
		),
		BatchesServedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taxoprep_batches_served_total",
				Help: "Batches delivered by the loader, by subset.",
			},
			[]string{"subset"},
		),
	}

	m.Registry.MustRegister(
		m.RecordsEncodedTotal,
		m.RecordErrorsTotal,
		m.CacheLookupsTotal,
		m.SplitRecords,
		m.MaterializeDuration,
		m.BatchesServedTotal,
	)
	return m
}

// RecordsEncoded adds n encoded records for scheme.
func (m *Metrics) RecordsEncoded(scheme string, n int) {
	if m == nil {
		return
	}
	m.RecordsEncodedTotal.WithLabelValues(scheme).Add(float64(n))
}

// RecordError counts a failed record for scheme.
func (m *Metrics) RecordError(scheme string) {
	if m == nil {
		return
	}
	m.RecordErrorsTotal.WithLabelValues(scheme).Inc()
}

// CacheLookup counts a cache lookup with result hit, miss or invalid.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// SplitSizes records the subset sizes of key.
func (m *Metrics) SplitSizes(key string, train, valid, test int) {
	if m == nil {
		return
	}
	m.SplitRecords.WithLabelValues(key, "train").Set(float64(train))
	m.SplitRecords.WithLabelValues(key, "valid").Set(float64(valid))
	m.SplitRecords.WithLabelValues(key, "test").Set(float64(test))
}

// Materialized observes how long a split took to load or compute.
func (m *Metrics) Materialized(cacheStatus string, d time.Duration) {
	if m == nil {
		return
	}
	m.MaterializeDuration.WithLabelValues(cacheStatus).Observe(d.Seconds())
}

// BatchServed counts one delivered batch of subset.
func (m *Metrics) BatchServed(subset string) {
	if m == nil {
		return
	}
	m.BatchesServedTotal.WithLabelValues(subset).Inc()
}

// Handler returns the Prometheus scrape HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Default().With("component", "metrics").Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
