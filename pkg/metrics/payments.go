package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records reconciliation and notification outcomes.
type PaymentMetrics struct {
	reconcileDuration *prometheus.HistogramVec
	reconcileOutcomes *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	broadcast         *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	reconcileDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconcile_duration_seconds",
		Help:    "Duration of payment confirmation reconciliation in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	reconcileOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_outcomes",
		Help: "Confirmation reconciliation results by record kind and outcome.",
	}, []string{"kind", "outcome"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_sends",
		Help: "Confirmation email delivery attempts by result.",
	}, []string{"result"})
	broadcast := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_recipients",
		Help: "Broadcast fan-out recipients by result.",
	}, []string{"result"})
	reg.MustRegister(reconcileDuration, reconcileOutcomes, notifications, broadcast)
	return &PaymentMetrics{
		reconcileDuration: reconcileDuration,
		reconcileOutcomes: reconcileOutcomes,
		notifications:     notifications,
		broadcast:         broadcast,
	}
}

// ObserveReconcile records the duration for one confirmation pass.
func (p *PaymentMetrics) ObserveReconcile(kind string, duration time.Duration) {
	if p == nil || p.reconcileDuration == nil {
		return
	}
	p.reconcileDuration.WithLabelValues(normalizeLabel(kind)).Observe(duration.Seconds())
}

// IncReconcileOutcome counts one confirmation result.
func (p *PaymentMetrics) IncReconcileOutcome(kind, outcome string) {
	if p == nil || p.reconcileOutcomes == nil {
		return
	}
	p.reconcileOutcomes.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

// IncNotification counts one confirmation email attempt.
func (p *PaymentMetrics) IncNotification(result string) {
	if p == nil || p.notifications == nil {
		return
	}
	p.notifications.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncBroadcast counts one broadcast recipient result.
func (p *PaymentMetrics) IncBroadcast(result string) {
	if p == nil || p.broadcast == nil {
		return
	}
	p.broadcast.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
