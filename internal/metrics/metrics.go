// Package metrics exposes Prometheus instrumentation for the prediction
// pipeline. Collectors register at init and are served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts completed pipeline cycles.
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pred_cycles_total",
		Help: "Completed prediction cycles.",
	})

	// CycleDuration observes wall time of a full cycle.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pred_cycle_duration_seconds",
		Help:    "Duration of a full prediction cycle.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// PredictionsSaved counts persisted prediction rows.
	PredictionsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pred_predictions_saved_total",
		Help: "Prediction rows persisted.",
	})

	// SignalsCreated counts signals that passed the gate.
	SignalsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pred_signals_created_total",
		Help: "Trading signals created.",
	})

	// TradesCreated counts paper/live trades materialized from signals.
	TradesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pred_trades_created_total",
		Help: "Trades materialized from signals.",
	})

	// MarketErrors counts per-market failures, labeled by stage.
	MarketErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pred_market_errors_total",
		Help: "Per-market pipeline failures by stage.",
	}, []string{"stage"})

	// GateRejections counts markets that failed the signal gate, by reason.
	GateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pred_gate_rejections_total",
		Help: "Signal gate rejections by reason.",
	}, []string{"reason"})

	// PortfolioValue is the total value of the latest portfolio snapshot.
	PortfolioValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pred_portfolio_total_value",
		Help: "Total value of the latest portfolio snapshot.",
	})
)
