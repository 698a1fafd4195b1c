package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

type Metrics struct {
	deliveries   *prometheus.CounterVec
	auditRecords *prometheus.CounterVec
}

// NewMetrics registers the report counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tap_notify",
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		auditRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tap_notify",
			Name:      "audit_records_total",
			Help:      "Audit records written by stream name.",
		}, []string{"stream"}),
	}
}

func (m *Metrics) delivery(channel string, delivered bool) {
	if m == nil {
		return
	}
	outcome := OutcomeFailed
	if delivered {
		outcome = OutcomeDelivered
	}
	m.deliveries.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) auditRecord(stream string) {
	if m == nil {
		return
	}
	m.auditRecords.WithLabelValues(stream).Inc()
}
