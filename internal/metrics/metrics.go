package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes ledger-level instruments. A nil *Metrics is valid and
// records nothing, which keeps services usable in tests without a registry.
type Metrics struct {
	transformations    *prometheus.CounterVec
	returns            *prometheus.CounterVec
	payments           *prometheus.CounterVec
	stockAdjustments   *prometheus.CounterVec
	replicationPushes  *prometheus.CounterVec
	replicationLag     prometheus.Gauge
	replicationHealthy prometheus.Gauge
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transformations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "document_transformations_total",
			Help:      "Documents created by transformation, by channel and target type.",
		}, []string{"channel", "target"}),
		returns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "document_returns_total",
			Help:      "Return documents created, by channel.",
		}, []string{"channel"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "payments_recorded_total",
			Help:      "Payments recorded against invoices, by method.",
		}, []string{"method"}),
		stockAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "stock_adjustments_total",
			Help:      "Signed stock adjustments applied, by reason.",
		}, []string{"reason"}),
		replicationPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "replication_pushes_total",
			Help:      "Snapshot pushes to the remote authority, by result.",
		}, []string{"result"}),
		replicationLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledger",
			Name:      "replication_lag_revisions",
			Help:      "Local revisions not yet held by the remote authority.",
		}),
		replicationHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledger",
			Name:      "replication_healthy",
			Help:      "1 when the last replication attempt succeeded.",
		}),
	}

	reg.MustRegister(
		m.transformations,
		m.returns,
		m.payments,
		m.stockAdjustments,
		m.replicationPushes,
		m.replicationLag,
		m.replicationHealthy,
	)
	m.replicationHealthy.Set(1)
	return m
}

func (m *Metrics) IncTransformation(channel, target string) {
	if m == nil {
		return
	}
	m.transformations.WithLabelValues(channel, target).Inc()
}

func (m *Metrics) IncReturn(channel string) {
	if m == nil {
		return
	}
	m.returns.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncPayment(method string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(method).Inc()
}

func (m *Metrics) IncStockAdjustment(reason string) {
	if m == nil {
		return
	}
	m.stockAdjustments.WithLabelValues(reason).Inc()
}

// ObserveReplication records one push attempt outcome and the current lag.
func (m *Metrics) ObserveReplication(ok bool, lag int64) {
	if m == nil {
		return
	}
	result := "success"
	healthy := 1.0
	if !ok {
		result = "failure"
		healthy = 0
	}
	m.replicationPushes.WithLabelValues(result).Inc()
	m.replicationHealthy.Set(healthy)
	m.replicationLag.Set(float64(lag))
}
