// monitor/metrics.go
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trader_cycles_total",
		Help: "Number of completed trading cycles.",
	})

	SignalsGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_signals_generated_total",
		Help: "Signals produced by the strategy, by pair.",
	}, []string{"pair"})

	SignalsApproved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_signals_approved_total",
		Help: "Signals that passed risk management, by pair.",
	}, []string{"pair"})

	SignalsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trader_signals_rejected_total",
		Help: "Signals rejected by risk management.",
	})

	OrdersPlaced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_orders_placed_total",
		Help: "Orders placed on the exchange, by side.",
	}, []string{"side"})

	PortfolioValue = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trader_portfolio_value",
		Help: "Total portfolio value in the quote currency.",
	})

	CycleErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trader_cycle_errors_total",
		Help: "Errors encountered during trading cycles.",
	})
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		SignalsGenerated,
		SignalsApproved,
		SignalsRejected,
		OrdersPlaced,
		PortfolioValue,
		CycleErrors,
	)
}
