// Package metrics holds the Prometheus instruments for the front desk.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeInvalid = "invalid"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Transitions         *prometheus.CounterVec
	Submissions         *prometheus.CounterVec
	Snapshots           *prometheus.CounterVec
	SubscriptionErrors  *prometheus.CounterVec
	ActiveSubscriptions prometheus.Gauge
	Notifications       *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_status_transitions_total",
			Help: "Status transition writes by kind and outcome",
		}, []string{"kind", "outcome"}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_submissions_total",
			Help: "Visit submissions by outcome",
		}, []string{"outcome"}),
		Snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_snapshots_applied_total",
			Help: "Live collection snapshots applied to a local mirror",
		}, []string{"collection"}),
		SubscriptionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_subscription_errors_total",
			Help: "Live subscriptions terminated by an error",
		}, []string{"collection"}),
		ActiveSubscriptions: f.NewGauge(prometheus.GaugeOpts{
			Name: "frontdesk_active_subscriptions",
			Help: "Live subscriptions currently held by consumers",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_host_notifications_total",
			Help: "Host employee notification emails by outcome",
		}, []string{"outcome"}),
	}
}

// TransitionRecorded counts one status transition attempt.
func (m *Metrics) TransitionRecorded(kind, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(kind, outcome).Inc()
}

// SubmissionRecorded counts one submission attempt.
func (m *Metrics) SubmissionRecorded(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

// SnapshotApplied counts a snapshot that replaced a mirror.
func (m *Metrics) SnapshotApplied(collection string) {
	if m == nil {
		return
	}
	m.Snapshots.WithLabelValues(collection).Inc()
}

// SubscriptionFailed counts a subscription ended by an error.
func (m *Metrics) SubscriptionFailed(collection string) {
	if m == nil {
		return
	}
	m.SubscriptionErrors.WithLabelValues(collection).Inc()
}

// SubscriptionOpened increments the active subscription gauge.
func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.Inc()
}

// SubscriptionClosed decrements the active subscription gauge.
func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.Dec()
}

// NotificationRecorded counts one host notification attempt.
func (m *Metrics) NotificationRecorded(outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}
