package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the pipeline counters. Register once per process; tests use
// a private registry.
type Metrics struct {
	OrdersCreated   prometheus.Counter
	OrdersRejected  *prometheus.CounterVec
	Settlements     prometheus.Counter
	Restocks        prometheus.Counter
	CallbackResults *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "orders_created_total",
			Help:      "Invoices created with status NEW.",
		}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "orders_rejected_total",
			Help:      "Order requests rejected during validation.",
		}, []string{"reason"}),
		Settlements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "stock_settlements_total",
			Help:      "Invoices whose stock decrement committed.",
		}),
		Restocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "stock_restocks_total",
			Help:      "Compensating restocks after abort of a settled invoice.",
		}),
		CallbackResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "gateway_callbacks_total",
			Help:      "Gateway callbacks by structured return code.",
		}, []string{"code"}),
	}

	reg.MustRegister(
		m.OrdersCreated,
		m.OrdersRejected,
		m.Settlements,
		m.Restocks,
		m.CallbackResults,
	)
	return m
}
