// Package metrics registers the Prometheus collectors the sniper updates
// during operation. Served by the API server at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	listingsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sniper_listings_detected_total",
			Help: "New listings confirmed and recorded",
		},
	)

	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniper_trades_total",
			Help: "Trade execution attempts by mode and terminal status",
		},
		[]string{"mode", "status"},
	)

	riskRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniper_risk_rejections_total",
			Help: "Trades rejected by the risk gate, by reason",
		},
		[]string{"reason"},
	)

	tradeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sniper_trade_latency_ms",
			Help:    "Execution latency from decision to persisted outcome in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"mode"},
	)

	wsReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sniper_ws_reconnects_total",
			Help: "WebSocket reconnection attempts scheduled",
		},
	)

	wsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sniper_ws_connected",
			Help: "WebSocket connection status (1 = connected)",
		},
	)

	autoTradeEnabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sniper_auto_trade_enabled",
			Help: "Auto-trade mode status (1 = enabled)",
		},
	)

	positionCloses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniper_position_closes_total",
			Help: "Positions closed by trigger reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(listingsDetected, tradesTotal, riskRejections, tradeLatency)
	prometheus.MustRegister(wsReconnects, wsConnected, autoTradeEnabled, positionCloses)
}

func ListingDetected() { listingsDetected.Inc() }

func TradeRecorded(mode, status string, latencyMs int64) {
	tradesTotal.WithLabelValues(mode, status).Inc()
	tradeLatency.WithLabelValues(mode).Observe(float64(latencyMs))
}

func RiskRejected(reason string) { riskRejections.WithLabelValues(reason).Inc() }

func WSReconnect() { wsReconnects.Inc() }

func SetWSConnected(connected bool) {
	if connected {
		wsConnected.Set(1)
	} else {
		wsConnected.Set(0)
	}
}

func SetAutoTrade(enabled bool) {
	if enabled {
		autoTradeEnabled.Set(1)
	} else {
		autoTradeEnabled.Set(0)
	}
}

func PositionClosed(reason string) { positionCloses.WithLabelValues(reason).Inc() }
