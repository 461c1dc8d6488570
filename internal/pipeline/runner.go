// Package pipeline runs the prediction cycle: discover markets, prefetch
// order book data, then fan out per-market workers that aggregate, featurize,
// predict, and persist. Worker failures are counted and logged; they never
// stop the cycle or each other.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"polymarket-pred/internal/aggregate"
	"polymarket-pred/internal/config"
	"polymarket-pred/internal/features"
	"polymarket-pred/internal/market"
	"polymarket-pred/internal/metrics"
	"polymarket-pred/internal/model"
	"polymarket-pred/internal/trading"
	"polymarket-pred/pkg/types"
)

// CycleParams selects the scope of one cycle run.
type CycleParams struct {
	Limit       int
	AutoSignals bool
	AutoTrades  bool
}

// Runner orchestrates one full prediction cycle.
type Runner struct {
	source     *market.Source
	aggregator *aggregate.Aggregator
	pipeline   *features.Pipeline
	ensemble   *model.Ensemble
	engine     *trading.Engine
	cfg        config.PipelineConfig
	logger     *slog.Logger
}

// NewRunner wires a cycle runner over the pipeline stages.
func NewRunner(
	source *market.Source,
	aggregator *aggregate.Aggregator,
	ensemble *model.Ensemble,
	engine *trading.Engine,
	cfg config.PipelineConfig,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		source:     source,
		aggregator: aggregator,
		pipeline:   features.NewPipeline(ensemble.FeatureNames()),
		ensemble:   ensemble,
		engine:     engine,
		cfg:        cfg,
		logger:     logger.With("component", "pipeline"),
	}
}

// DefaultLimit is the market limit a cycle uses when the caller passes none.
func (r *Runner) DefaultLimit() int {
	return r.cfg.DefaultLimit
}

// RunCycle executes one cycle and returns its counters. It never returns an
// error: every fault is absorbed into the report and the logs.
func (r *Runner) RunCycle(ctx context.Context, params CycleParams) types.CycleReport {
	start := time.Now()
	if params.Limit <= 0 {
		params.Limit = r.cfg.DefaultLimit
	}

	r.logger.Info("cycle started",
		"limit", params.Limit,
		"auto_signals", params.AutoSignals,
		"auto_trades", params.AutoTrades,
	)

	markets := r.source.ActiveMarkets(ctx, params.Limit)
	report := types.CycleReport{MarketsConsidered: len(markets)}
	if len(markets) == 0 {
		r.logger.Warn("no eligible markets, cycle is a no-op")
		r.finish(start, &report)
		return report
	}

	r.aggregator.WarmMidpoints(ctx, markets)

	var predictions, signals, trades, errs atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, m := range markets {
		m := m
		g.Go(func() error {
			result, err := r.processMarket(gctx, m, params)
			if err != nil {
				errs.Add(1)
				r.logger.Error("market failed",
					"market_id", m.MarketID,
					"error", err,
				)
				return nil // one market's failure never cancels the group
			}
			predictions.Add(1)
			if result.Signal != nil {
				signals.Add(1)
			}
			if result.Trade != nil {
				trades.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	report.PredictionsSaved = int(predictions.Load())
	report.SignalsCreated = int(signals.Load())
	report.TradesCreated = int(trades.Load())
	report.Errors = int(errs.Load())
	r.finish(start, &report)
	return report
}

// processMarket runs one market through the pipeline under its own deadline.
// A panic in any stage is recovered and reported as this market's error.
func (r *Runner) processMarket(ctx context.Context, m types.Market, params CycleParams) (result trading.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			metrics.MarketErrors.WithLabelValues("panic").Inc()
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.PerMarketTimeout)
	defer cancel()

	data := r.aggregator.FetchAll(ctx, m)

	vec, err := r.pipeline.Build(data, time.Now().UTC())
	if err != nil {
		metrics.MarketErrors.WithLabelValues("features").Inc()
		return result, fmt.Errorf("features: %w", err)
	}

	pred, err := r.ensemble.Predict(vec)
	if err != nil {
		metrics.MarketErrors.WithLabelValues("predict").Inc()
		return result, fmt.Errorf("predict: %w", err)
	}

	result, err = r.engine.PersistCycleResult(ctx, m, pred, params.AutoSignals, params.AutoTrades)
	if err != nil {
		metrics.MarketErrors.WithLabelValues("persist").Inc()
		return result, fmt.Errorf("persist: %w", err)
	}

	r.logger.Debug("market processed",
		"market_id", m.MarketID,
		"probability", pred.Probability,
		"edge", result.Prediction.Edge,
		"signal", result.Signal != nil,
		"trade", result.Trade != nil,
	)
	return result, nil
}

func (r *Runner) finish(start time.Time, report *types.CycleReport) {
	metrics.CyclesTotal.Inc()
	metrics.CycleDuration.Observe(time.Since(start).Seconds())

	r.logger.Info("cycle finished",
		"duration", time.Since(start).Round(time.Millisecond),
		"markets", report.MarketsConsidered,
		"predictions", report.PredictionsSaved,
		"signals", report.SignalsCreated,
		"trades", report.TradesCreated,
		"errors", report.Errors,
	)
}
