// Package metrics holds the Prometheus collectors for ledger writes,
// payment reconciliations and replay repairs.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	ledgerOps       *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	repairs         *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "travel_ledger",
			Name:      "ledger_operations_total",
			Help:      "Ledger writes by operation and result.",
		}, []string{"op", "result"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "travel_ledger",
			Name:      "payment_reconciliations_total",
			Help:      "Payment status transitions reconciled into the ledger.",
		}, []string{"from", "to"}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "travel_ledger",
			Name:      "replay_repairs_total",
			Help:      "Ledger rows fixed by the replay backstop, by booking kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.ledgerOps, m.reconciliations, m.repairs)
	}
	return m
}

// LedgerOp counts one ledger write.
func (m *Metrics) LedgerOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ledgerOps.WithLabelValues(op, result).Inc()
}

// Reconciled counts one payment transition.
func (m *Metrics) Reconciled(from, to string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(from, to).Inc()
}

// Repaired counts rows fixed by a replay run.
func (m *Metrics) Repaired(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.repairs.WithLabelValues(kind).Add(float64(n))
}

// Handler exposes the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
