// Package trading turns ensemble predictions into persisted rows: the
// prediction itself, a gated signal, an optional paper trade, and a portfolio
// snapshot. Everything for one market happens inside one transaction, so a
// failure at any step leaves no partial rows behind.
package trading

import (
	"context"
	"database/sql"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"polymarket-pred/internal/config"
	"polymarket-pred/internal/metrics"
	"polymarket-pred/internal/store"
	"polymarket-pred/pkg/types"
)

// Strength bucket boundaries on |edge|. The gate threshold (MinEdge) opens
// the WEAK bucket; these close it and open the next ones.
const (
	mediumEdge = 0.10
	strongEdge = 0.20
)

// Result is what one market's persistence pass produced. Signal, Trade, and
// Snapshot are nil when the corresponding step was gated off or disabled.
type Result struct {
	Prediction types.Prediction
	Signal     *types.Signal
	Trade      *types.Trade
	Snapshot   *types.PortfolioSnapshot
}

// Engine persists one market's cycle output under the configured rules.
type Engine struct {
	store   *store.Store
	signals config.SignalsConfig
	trading config.TradingConfig
	logger  *slog.Logger

	// now is replaceable in tests
	now func() time.Time
}

// NewEngine creates a trading engine over the store.
func NewEngine(st *store.Store, signals config.SignalsConfig, trading config.TradingConfig, logger *slog.Logger) *Engine {
	return &Engine{
		store:   st,
		signals: signals,
		trading: trading,
		logger:  logger.With("component", "trading"),
		now:     time.Now,
	}
}

// PersistCycleResult writes one market's prediction and everything downstream
// of it in a single transaction: market upsert, prediction append, signal
// gating, optional trade, and (only when a trade was created) a portfolio
// snapshot.
func (e *Engine) PersistCycleResult(
	ctx context.Context,
	market types.Market,
	pred types.EnsemblePrediction,
	autoSignals, autoTrades bool,
) (Result, error) {
	now := e.now().UTC().Truncate(time.Second)

	prediction := types.Prediction{
		ID:               uuid.NewString(),
		MarketID:         market.MarketID,
		PredictionTime:   now,
		ModelProbability: pred.Probability,
		MarketPrice:      market.PriceYes,
		Edge:             pred.Probability - market.PriceYes,
		Confidence:       pred.Confidence,
	}

	var result Result
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.store.UpsertMarket(ctx, tx, market); err != nil {
			return err
		}
		if err := e.store.InsertPrediction(ctx, tx, prediction); err != nil {
			return err
		}
		result.Prediction = prediction

		if !autoSignals {
			return nil
		}
		signal, ok := e.gate(market, prediction)
		if !ok {
			return nil
		}
		signal.CreatedAt = now
		if err := e.store.InsertSignal(ctx, tx, signal); err != nil {
			return err
		}
		result.Signal = &signal

		if !autoTrades {
			return nil
		}
		trade := e.materialize(market, signal, now)
		if err := e.store.InsertTrade(ctx, tx, trade); err != nil {
			return err
		}
		if err := e.store.MarkSignalExecuted(ctx, tx, signal.ID); err != nil {
			return err
		}
		signal.Executed = true
		result.Trade = &trade

		snap, err := e.snapshot(ctx, tx, market, now)
		if err != nil {
			return err
		}
		result.Snapshot = &snap
		return e.store.InsertSnapshot(ctx, tx, snap)
	})
	if err != nil {
		return Result{}, err
	}

	metrics.PredictionsSaved.Inc()
	if result.Signal != nil {
		metrics.SignalsCreated.Inc()
	}
	if result.Trade != nil {
		metrics.TradesCreated.Inc()
	}
	if result.Snapshot != nil {
		metrics.PortfolioValue.Set(result.Snapshot.TotalValue)
	}
	return result, nil
}

// gate applies the signal thresholds. Every rejection is logged with its
// reason; a market with unknown volume is treated as having none.
func (e *Engine) gate(market types.Market, p types.Prediction) (types.Signal, bool) {
	log := e.logger.With("market_id", market.MarketID)

	absEdge := math.Abs(p.Edge)
	if absEdge < e.signals.MinEdge {
		log.Info("signal gated", "reason", "edge_too_small", "edge", p.Edge)
		metrics.GateRejections.WithLabelValues("edge_too_small").Inc()
		return types.Signal{}, false
	}
	if p.Confidence < e.signals.MinConfidence {
		log.Info("signal gated", "reason", "confidence_too_low", "confidence", p.Confidence)
		metrics.GateRejections.WithLabelValues("confidence_too_low").Inc()
		return types.Signal{}, false
	}

	volume := 0.0
	if market.Volume24h != nil {
		volume = *market.Volume24h
	}
	if volume < e.signals.MinLiquidity {
		log.Info("signal gated", "reason", "liquidity_too_low", "volume_24h", volume)
		metrics.GateRejections.WithLabelValues("liquidity_too_low").Inc()
		return types.Signal{}, false
	}

	side := types.SideYes
	if p.Edge < 0 {
		side = types.SideNo
	}
	strength := e.strength(absEdge)

	return types.Signal{
		ID:            uuid.NewString(),
		PredictionID:  p.ID,
		MarketID:      market.MarketID,
		Side:          side,
		Strength:      strength,
		SuggestedSize: e.size(strength),
	}, true
}

// strength buckets |edge|: [MinEdge, 0.10) WEAK, [0.10, 0.20) MEDIUM,
// [0.20, ∞) STRONG.
func (e *Engine) strength(absEdge float64) types.Strength {
	switch {
	case absEdge >= strongEdge:
		return types.StrengthStrong
	case absEdge >= mediumEdge:
		return types.StrengthMedium
	default:
		return types.StrengthWeak
	}
}

// size scales the base unit by the strength multiplier and caps it.
func (e *Engine) size(strength types.Strength) float64 {
	mult := e.signals.MediumMultiplier
	switch strength {
	case types.StrengthWeak:
		mult = e.signals.WeakMultiplier
	case types.StrengthStrong:
		mult = e.signals.StrongMultiplier
	}

	size := decimal.NewFromFloat(e.signals.BaseUnit).
		Mul(decimal.NewFromFloat(mult))
	max := decimal.NewFromFloat(e.signals.MaxPositionSize)
	if size.GreaterThan(max) {
		size = max
	}
	return size.InexactFloat64()
}

// materialize opens a trade at the market price the prediction was made
// against. NO positions carry the same entry price; their direction lives in
// the side column and flips the sign of unrealized PnL.
func (e *Engine) materialize(market types.Market, sig types.Signal, now time.Time) types.Trade {
	return types.Trade{
		ID:           uuid.NewString(),
		SignalID:     sig.ID,
		MarketID:     market.MarketID,
		Side:         sig.Side,
		EntryPrice:   market.PriceYes,
		Size:         sig.SuggestedSize,
		EntryTime:    now,
		Status:       types.TradeOpen,
		PaperTrading: e.trading.PaperTrading,
	}
}

// snapshot values the portfolio inside the open transaction, so it includes
// the trade just inserted.
//
// Open positions in the market being processed are marked at its current
// price_yes; every other open position is carried at its stored entry price
// until that market comes through a cycle again. Each position is valued at
// size × current price; the move against cost flips sign for NO positions.
func (e *Engine) snapshot(ctx context.Context, tx *sql.Tx, market types.Market, now time.Time) (types.PortfolioSnapshot, error) {
	open, err := e.store.OpenTrades(ctx, tx)
	if err != nil {
		return types.PortfolioSnapshot{}, err
	}
	realized, err := e.store.SumRealizedPnL(ctx, tx)
	if err != nil {
		return types.PortfolioSnapshot{}, err
	}

	exposure := decimal.Zero
	positions := decimal.Zero
	unrealized := decimal.Zero
	for _, t := range open {
		size := decimal.NewFromFloat(t.Size)
		exposure = exposure.Add(size)

		current := t.EntryPrice
		if t.MarketID == market.MarketID {
			current = market.PriceYes
		}
		value := size.Mul(decimal.NewFromFloat(current))
		positions = positions.Add(value)

		move := value.Sub(size)
		if t.Side == types.SideNo {
			move = move.Neg()
		}
		unrealized = unrealized.Add(move)
	}

	realizedDec := decimal.NewFromFloat(realized)
	cash := decimal.NewFromFloat(e.trading.StartingCash).
		Sub(exposure).
		Add(realizedDec)
	total := cash.Add(positions)

	daily := decimal.Zero
	baseline, err := e.store.FirstSnapshotOfDay(ctx, tx, e.trading.PaperTrading, now)
	if err != nil {
		return types.PortfolioSnapshot{}, err
	}
	if baseline != nil {
		daily = total.Sub(decimal.NewFromFloat(baseline.TotalValue))
	}

	return types.PortfolioSnapshot{
		ID:             uuid.NewString(),
		SnapshotTime:   now,
		TotalValue:     total.InexactFloat64(),
		Cash:           cash.InexactFloat64(),
		PositionsValue: positions.InexactFloat64(),
		TotalExposure:  exposure.InexactFloat64(),
		DailyPnL:       daily.InexactFloat64(),
		UnrealizedPnL:  unrealized.InexactFloat64(),
		RealizedPnL:    realized,
		PaperTrading:   e.trading.PaperTrading,
	}, nil
}
