// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics bundles Prometheus collectors for the pipeline. A nil
// *Metrics disables collection, so stages call the helpers unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline collectors on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	ArchivesLocatedTotal prometheus.Counter
	VolumesExpandedTotal prometheus.Counter
	VolumesCleanedTotal  prometheus.Counter
	FailuresTotal        *prometheus.CounterVec
	CleanDuration        prometheus.Histogram
	PendingVolumes       prometheus.Gauge
}

// New constructs and registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	located := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "volmill_archives_located_total",
			Help: "Archives discovered under the source root.",
		},
	)
	expanded := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "volmill_volumes_expanded_total",
			Help: "Archives successfully moved and unpacked into staging.",
		},
	)
	cleaned := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "volmill_volumes_cleaned_total",
			Help: "Volumes successfully written to the output root.",
		},
	)
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volmill_failures_total",
			Help: "Per-volume failures by pipeline stage.",
		},
		[]string{"stage"},
	)
	cleanDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "volmill_clean_duration_seconds",
			Help:    "Wall-clock time to clean one volume, analyzer call included.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
	pending := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "volmill_pending_volumes",
			Help: "Volumes staged but not yet cleaned at the last check.",
		},
	)

	registry.MustRegister(located, expanded, cleaned, failures, cleanDuration, pending)

	return &Metrics{
		Registry:             registry,
		ArchivesLocatedTotal: located,
		VolumesExpandedTotal: expanded,
		VolumesCleanedTotal:  cleaned,
		FailuresTotal:        failures,
		CleanDuration:        cleanDuration,
		PendingVolumes:       pending,
	}
}

// AddLocated counts discovered archives.
func (m *Metrics) AddLocated(n int) {
	if m == nil {
		return
	}
	m.ArchivesLocatedTotal.Add(float64(n))
}

// AddExpanded counts successful expansions.
func (m *Metrics) AddExpanded(n int) {
	if m == nil {
		return
	}
	m.VolumesExpandedTotal.Add(float64(n))
}

// ObserveClean counts one successful clean and records its duration.
func (m *Metrics) ObserveClean(d time.Duration) {
	if m == nil {
		return
	}
	m.VolumesCleanedTotal.Inc()
	m.CleanDuration.Observe(d.Seconds())
}

// IncFailure counts a per-volume failure for a stage label.
func (m *Metrics) IncFailure(stage string) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(stage).Inc()
}

// SetPending records the size of the pending set.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingVolumes.Set(float64(n))
}
