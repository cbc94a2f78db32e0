// Package metrics exposes the bot's Prometheus collectors, served at
// /metrics by the web server in the text exposition format.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Orders placed, by symbol and order type",
		},
		[]string{"symbol", "type"}, // type: market|reduce_market|reduce_limit|stop_market
	)

	addsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_adds_total",
			Help: "Scale-in adds executed",
		},
		[]string{"symbol"},
	)

	exitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_exits_total",
			Help: "Indicator-triggered closes, by condition name",
		},
		[]string{"symbol", "reason"},
	)

	loopErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_loop_errors_total",
			Help: "Auto-management loop errors swallowed per instrument",
		},
		[]string{"symbol"},
	)

	roundSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_round_size_usdt",
			Help: "Base order size of the current round (0 when unset)",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_open_positions",
			Help: "Number of instruments with a tracked position",
		},
	)
)

func init() {
	prometheus.MustRegister(ordersTotal, addsTotal, exitsTotal, loopErrors, roundSize, openPositions)
}

func IncOrder(symbol, orderType string) { ordersTotal.WithLabelValues(symbol, orderType).Inc() }
func IncAdd(symbol string)              { addsTotal.WithLabelValues(symbol).Inc() }
func IncExit(symbol, reason string)     { exitsTotal.WithLabelValues(symbol, reason).Inc() }
func IncLoopError(symbol string)        { loopErrors.WithLabelValues(symbol).Inc() }
func SetRoundSize(v float64)            { roundSize.Set(v) }
func SetOpenPositions(n int)            { openPositions.Set(float64(n)) }
