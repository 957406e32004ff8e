package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	checkouts       *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	refunds         *prometheus.CounterVec
	refundedAmount  prometheus.Counter
	stockRejections prometheus.Counter
}

// New registers the service collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		checkouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_checkouts_total",
			Help: "Checkout attempts by result.",
		}, []string{"result"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_status_transitions_total",
			Help: "Status transition requests by target status and result.",
		}, []string{"to", "result"}),
		refunds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_refunds_total",
			Help: "Refund requests by result.",
		}, []string{"result"}),
		refundedAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "orders_refunded_amount_total",
			Help: "Sum of refunded amounts in minor units.",
		}),
		stockRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "inventory_stock_rejections_total",
			Help: "Checkouts rejected for insufficient stock.",
		}),
	}
}

// Nop returns collectors bound to a private registry.
func Nop() *Metrics { return New(prometheus.NewRegistry()) }

func (m *Metrics) Checkout(result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
}

func (m *Metrics) StockRejected() {
	if m == nil {
		return
	}
	m.stockRejections.Inc()
}

func (m *Metrics) Transition(to, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to, result).Inc()
}

func (m *Metrics) Refund(result string, amount int64) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(result).Inc()
	if amount > 0 {
		m.refundedAmount.Add(float64(amount))
	}
}

// Result turns an error into a low-cardinality label.
func Result(code string, err error) string {
	switch {
	case err == nil:
		return "ok"
	case code != "":
		return code
	}
	return "error"
}
