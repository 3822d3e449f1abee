/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package msglimit

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-msglimit/internal/libinfo"
)

// MetricsCollector collects the decisions made by KeyedLimiter.
type MetricsCollector interface {
	// IncAdmitted increments the total number of admitted messages.
	IncAdmitted()
	// IncRejected increments the total number of rejected (rate-limited) messages.
	IncRejected()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is prepended to all metric names.
	Namespace string
	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
	// CurriedLabelNames is a list of label names that must be curried with PrometheusMetrics.MustCurryWith
	// before the collector is used.
	CurriedLabelNames []string
}

// PrometheusMetrics represents Prometheus metrics for the message rate limiting.
type PrometheusMetrics struct {
	AdmittedTotal *prometheus.CounterVec
	RejectedTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
// The library version is added to the constant labels.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	constLabels := libinfo.AddPrometheusLibVersionLabel(opts.ConstLabels)
	return &PrometheusMetrics{
		AdmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "msglimit_messages_admitted_total",
			Help:        "Number of messages admitted by the sliding window rate limiter.",
			ConstLabels: constLabels,
		}, opts.CurriedLabelNames),
		RejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "msglimit_messages_rejected_total",
			Help:        "Number of messages rejected by the sliding window rate limiter.",
			ConstLabels: constLabels,
		}, opts.CurriedLabelNames),
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		AdmittedTotal: pm.AdmittedTotal.MustCurryWith(labels),
		RejectedTotal: pm.RejectedTotal.MustCurryWith(labels),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.AdmittedTotal, pm.RejectedTotal)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.AdmittedTotal)
	prometheus.Unregister(pm.RejectedTotal)
}

// IncAdmitted increments the total number of admitted messages.
func (pm *PrometheusMetrics) IncAdmitted() {
	pm.AdmittedTotal.With(nil).Inc()
}

// IncRejected increments the total number of rejected messages.
func (pm *PrometheusMetrics) IncRejected() {
	pm.RejectedTotal.With(nil).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncAdmitted() {}
func (disabledMetrics) IncRejected() {}
