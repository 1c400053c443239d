package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters exposed on /metrics alongside the default Go collectors.
var (
	PaymentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtracker_payments_total",
		Help: "Number of payments successfully applied.",
	})

	PaymentAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtracker_payments_amount_total",
		Help: "Sum of applied payment amounts.",
	})

	RolloversTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtracker_cycle_rollovers_total",
		Help: "Number of weekly cycle rollovers applied.",
	})

	ReconcileMismatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtracker_reconcile_mismatches_total",
		Help: "Students whose lifetime total disagreed with the payment log.",
	})
)
