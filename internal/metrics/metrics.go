/*
Copyright 2025 The Citewatch Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes the process's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the citewatch collectors.
type Metrics struct {
	registry *prometheus.Registry

	JobsProcessed     *prometheus.CounterVec
	ProviderRequests  *prometheus.HistogramVec
	RateLimitWaits    *prometheus.HistogramVec
	QueueReadyDepth   prometheus.Gauge
	QueueDelayedDepth prometheus.Gauge
	ScoreComputations prometheus.Counter
	AlertsEmitted     *prometheus.CounterVec
}

// New builds and registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citewatch",
			Name:      "tracking_jobs_total",
			Help:      "Tracking jobs counted by platform and status: completed, failed or retrying.",
		}, []string{"platform", "status"}),
		ProviderRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "citewatch",
			Name:      "provider_request_duration_seconds",
			Help:      "Provider query duration, by platform and outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"platform", "outcome"}),
		RateLimitWaits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "citewatch",
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting on provider rate-limit windows.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"platform"}),
		QueueReadyDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "citewatch",
			Name:      "queue_ready_depth",
			Help:      "Messages on the ready list.",
		}),
		QueueDelayedDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "citewatch",
			Name:      "queue_delayed_depth",
			Help:      "Messages parked for backoff re-delivery.",
		}),
		ScoreComputations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "citewatch",
			Name:      "score_computations_total",
			Help:      "Visibility score computations performed.",
		}),
		AlertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citewatch",
			Name:      "alerts_emitted_total",
			Help:      "Alerts persisted, by type.",
		}, []string{"type"}),
	}

	registry.MustRegister(
		m.JobsProcessed,
		m.ProviderRequests,
		m.RateLimitWaits,
		m.QueueReadyDepth,
		m.QueueDelayedDepth,
		m.ScoreComputations,
		m.AlertsEmitted,
	)
	return m
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
