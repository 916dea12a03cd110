package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DomainMetrics counts business events on a Prometheus registry scraped at /metrics.
// A nil *DomainMetrics is valid and records nothing.
type DomainMetrics struct {
	quotaRejections     *prometheus.CounterVec
	approvalTransitions *prometheus.CounterVec
	recordWrites        *prometheus.CounterVec
}

// NewDomainMetrics registers the business counters on reg.
func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	m := &DomainMetrics{
		quotaRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weldflow",
			Name:      "quota_rejections_total",
			Help:      "Creates rejected because the membership tier limit was reached.",
		}, []string{"resource", "tier"}),
		approvalTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weldflow",
			Name:      "approval_transitions_total",
			Help:      "Approval actions applied, by action and resulting status.",
		}, []string{"action", "result"}),
		recordWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weldflow",
			Name:      "record_writes_total",
			Help:      "Business record writes, by kind, operation and workspace type.",
		}, []string{"kind", "op", "workspace_type"}),
	}
	reg.MustRegister(m.quotaRejections, m.approvalTransitions, m.recordWrites)
	return m
}

func (m *DomainMetrics) QuotaRejected(resource, tier string) {
	if m == nil {
		return
	}
	m.quotaRejections.WithLabelValues(resource, tier).Inc()
}

func (m *DomainMetrics) ApprovalTransition(action, result string) {
	if m == nil {
		return
	}
	m.approvalTransitions.WithLabelValues(action, result).Inc()
}

func (m *DomainMetrics) RecordWrite(kind, op, workspaceType string) {
	if m == nil {
		return
	}
	m.recordWrites.WithLabelValues(kind, op, workspaceType).Inc()
}
