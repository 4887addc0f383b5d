// Package metrics holds the prometheus collectors of the reconciler. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "warden"

type Metrics struct {
	Evaluations        *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	InventoryQueries   *prometheus.CounterVec
	FirewallUpdates    *prometheus.CounterVec
	RuleStatuses       *prometheus.CounterVec
	NotificationDrops  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Evaluation passes by outcome.",
		}, []string{"outcome"}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of one evaluation pass.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		InventoryQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_queries_total",
			Help:      "Inventory queries by cache result.",
		}, []string{"result"}),
		FirewallUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "firewall_updates_total",
			Help:      "Rule group replacements by outcome.",
		}, []string{"outcome"}),
		RuleStatuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_status_total",
			Help:      "Final rule statuses written by the updater.",
		}, []string{"status"}),
		NotificationDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_drops_total",
			Help:      "Notifications dropped because the queue was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Evaluations,
			m.EvaluationDuration,
			m.InventoryQueries,
			m.FirewallUpdates,
			m.RuleStatuses,
			m.NotificationDrops,
		)
	}
	return m
}

func (m *Metrics) ObserveEvaluation(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(outcome).Inc()
	m.EvaluationDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) InventoryQuery(result string) {
	if m == nil {
		return
	}
	m.InventoryQueries.WithLabelValues(result).Inc()
}

func (m *Metrics) FirewallUpdate(outcome string) {
	if m == nil {
		return
	}
	m.FirewallUpdates.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RuleStatus(status string) {
	if m == nil {
		return
	}
	m.RuleStatuses.WithLabelValues(status).Inc()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationDrops.Inc()
}
