package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncTransformation("sales", "BC")
	m.IncTransformation("sales", "BC")
	m.IncPayment("cash")
	m.ObserveReplication(false, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transformations.WithLabelValues("sales", "BC")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payments.WithLabelValues("cash")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.replicationHealthy))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.replicationLag))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncTransformation("sales", "BC")
		m.IncReturn("sales")
		m.IncPayment("cash")
		m.IncStockAdjustment("MANUAL")
		m.ObserveReplication(true, 0)
	})
}
