package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDomainMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDomainMetrics(reg)

	m.QuotaRejected("wps", "free")
	m.QuotaRejected("wps", "free")
	m.ApprovalTransition("approve", "approved")
	m.RecordWrite("wps", "create", "personal")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.quotaRejections.WithLabelValues("wps", "free")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.approvalTransitions.WithLabelValues("approve", "approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordWrites.WithLabelValues("wps", "create", "personal")))
}

func TestDomainMetrics_NilIsNoop(t *testing.T) {
	var m *DomainMetrics
	assert.NotPanics(t, func() {
		m.QuotaRejected("wps", "free")
		m.ApprovalTransition("reject", "rejected")
		m.RecordWrite("pqr", "delete", "enterprise")
	})
}
