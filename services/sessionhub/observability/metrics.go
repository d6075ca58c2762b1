// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the session hub.
//
// # Description
//
// Metrics cover the HTTP surface (request counts and latency), the
// reconciliation engine (merged rows, degraded pages) and the purpose cache
// (results by source, summarizer latency). Exposed on /metrics.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "qraftbox"

const sessionhubSubsystem = "sessionhub"

// Metrics holds all Prometheus metrics for the session hub service.
// Initialize once at startup via InitMetrics().
type Metrics struct {
	// RequestsTotal counts HTTP requests.
	// Labels: route, method, status
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures HTTP request latency.
	// Labels: route
	RequestDurationSeconds *prometheus.HistogramVec

	// ReconcileMergedRowsTotal counts runtime-only rows synthesized into
	// session list pages.
	ReconcileMergedRowsTotal prometheus.Counter

	// ReconcileDegradedPagesTotal counts pages served without runtime
	// augmentation because the runtime store was unavailable.
	ReconcileDegradedPagesTotal prometheus.Counter

	// PurposeResultsTotal counts resolved purposes by source.
	// Labels: source (llm, fallback)
	PurposeResultsTotal *prometheus.CounterVec

	// SummarizerDurationSeconds measures summarizer call latency.
	SummarizerDurationSeconds prometheus.Histogram
}

// DefaultMetrics is the singleton instance, nil until InitMetrics runs.
// Increment helpers nil-check it so library code works without metrics.
var DefaultMetrics *Metrics

// InitMetrics creates and registers all metrics on the default registry.
// Call once at startup; a second call panics on duplicate registration.
func InitMetrics() *Metrics {
	DefaultMetrics = &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionhubSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		RequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionhubSubsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		ReconcileMergedRowsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionhubSubsystem,
				Name:      "reconcile_merged_rows_total",
				Help:      "Runtime-only session rows synthesized into list pages",
			},
		),
		ReconcileDegradedPagesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionhubSubsystem,
				Name:      "reconcile_degraded_pages_total",
				Help:      "Session list pages served without runtime augmentation",
			},
		),
		PurposeResultsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionhubSubsystem,
				Name:      "purpose_results_total",
				Help:      "Resolved session purposes by source",
			},
			[]string{"source"},
		),
		SummarizerDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionhubSubsystem,
				Name:      "summarizer_duration_seconds",
				Help:      "Summarizer call latency",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
		),
	}
	return DefaultMetrics
}

// ObserveRequest records one finished HTTP request.
func ObserveRequest(route, method, status string, duration time.Duration) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.RequestsTotal.WithLabelValues(route, method, status).Inc()
	DefaultMetrics.RequestDurationSeconds.WithLabelValues(route).Observe(duration.Seconds())
}

// CountMergedRows records synthesized entries added to a list page.
func CountMergedRows(n int) {
	if DefaultMetrics == nil || n <= 0 {
		return
	}
	DefaultMetrics.ReconcileMergedRowsTotal.Add(float64(n))
}

// CountDegradedPage records one transcript-only page.
func CountDegradedPage() {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.ReconcileDegradedPagesTotal.Inc()
}

// CountPurposeResult records one resolved purpose.
func CountPurposeResult(source string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.PurposeResultsTotal.WithLabelValues(source).Inc()
}

// ObserveSummarizer records one summarizer call.
func ObserveSummarizer(duration time.Duration) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.SummarizerDurationSeconds.Observe(duration.Seconds())
}
