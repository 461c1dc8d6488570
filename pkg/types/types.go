// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot — market snapshots, the
// per-market data bundle flowing through the pipeline, prediction and signal
// rows, and the enums that classify them. It has no dependencies on internal
// packages, so it can be imported by any layer.
package types

import (
	"errors"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side is the direction of a signal or trade on a binary market.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Strength buckets a signal by the magnitude of its edge.
type Strength string

const (
	StrengthWeak   Strength = "WEAK"
	StrengthMedium Strength = "MEDIUM"
	StrengthStrong Strength = "STRONG"
)

// TradeStatus tracks the lifecycle of a simulated trade.
type TradeStatus string

const (
	TradeOpen      TradeStatus = "OPEN"
	TradeClosed    TradeStatus = "CLOSED"
	TradeCancelled TradeStatus = "CANCELLED"
)

// ————————————————————————————————————————————————————————————————————————
// Market snapshot
// ————————————————————————————————————————————————————————————————————————

// Market is an immutable snapshot of one binary prediction market, merged
// from the CLOB price feed and the Gamma metadata feed. A binary market has
// two complementary tokens (YES and NO) whose prices sum to ~$1.
//
// Volume24h and Liquidity are nil when the metadata source was unavailable
// for this market; ResolutionDate is nil when no end date is published.
type Market struct {
	MarketID string `json:"market_id"` // condition ID (falls back to question ID)
	Question string `json:"question"`
	Category string `json:"category"`

	YesTokenID string `json:"yes_token_id"` // CLOB token ID for the YES outcome
	NoTokenID  string `json:"no_token_id"`  // CLOB token ID for the NO outcome

	PriceYes float64 `json:"price_yes"`
	PriceNo  float64 `json:"price_no"`

	ResolutionDate *time.Time `json:"resolution_date,omitempty"`
	Volume24h      *float64   `json:"volume_24h,omitempty"`
	Liquidity      *float64   `json:"liquidity,omitempty"`

	Archived bool `json:"archived"`
	Active   bool `json:"active"`
	Closed   bool `json:"closed"`
}

// NewsItem is one article returned by the news provider.
type NewsItem struct {
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"published_at"`
	Source      string    `json:"source"`
}

// SocialItem is one post from an optional social source (Twitter/Reddit).
type SocialItem struct {
	Text     string    `json:"text"`
	Author   string    `json:"author"`
	PostedAt time.Time `json:"posted_at"`
	Source   string    `json:"source"`
}

// AggregatedData is the transient per-market bundle handed from the data
// aggregator to the feature pipeline. It is owned by the worker processing a
// single market and discarded at cycle end; it is never persisted.
//
// Midpoint and BookSpread are nil when the order book had nothing to report
// (a midpoint 404 is a normal outcome, not an error).
type AggregatedData struct {
	Market     Market
	News       []NewsItem
	Social     []SocialItem
	Midpoint   *float64
	BookSpread *float64
}

// ————————————————————————————————————————————————————————————————————————
// Inference
// ————————————————————————————————————————————————————————————————————————

// FeatureVector is a fixed-length, fixed-order vector of feature values with
// an aligned name list. The name list is frozen at model-training time and
// shipped inside the model artifacts; the runtime must reproduce it exactly.
type FeatureVector struct {
	Names  []string
	Values []float64
}

// EnsemblePrediction is the transient output of the model ensemble for one
// market: a calibrated YES probability, an inter-model agreement confidence,
// and the raw per-model probabilities that produced them.
type EnsemblePrediction struct {
	Probability float64            `json:"probability"`
	Confidence  float64            `json:"confidence"`
	PerModel    map[string]float64 `json:"per_model"`
}

// ————————————————————————————————————————————————————————————————————————
// Persistent rows
// ————————————————————————————————————————————————————————————————————————

// Prediction is one persisted model output for one market in one cycle.
// Rows are append-only and never mutated.
type Prediction struct {
	ID               string    `json:"id"`
	MarketID         string    `json:"market_id"`
	PredictionTime   time.Time `json:"prediction_time"` // UTC, second precision
	ModelProbability float64   `json:"model_probability"`
	MarketPrice      float64   `json:"market_price"` // price_yes at snapshot time
	Edge             float64   `json:"edge"`         // model_probability - market_price
	Confidence       float64   `json:"confidence"`
}

// Signal is a persisted trading signal derived from a prediction that passed
// the gating thresholds. Executed flips to true when a trade is materialized;
// nothing else is ever mutated.
type Signal struct {
	ID            string    `json:"id"`
	PredictionID  string    `json:"prediction_id"`
	MarketID      string    `json:"market_id"`
	CreatedAt     time.Time `json:"created_at"`
	Side          Side      `json:"side"`
	Strength      Strength  `json:"strength"`
	SuggestedSize float64   `json:"suggested_size"`
	Executed      bool      `json:"executed"`
}

// Trade is a simulated (paper) or live trade materialized from a signal.
// Closure happens outside this system; exit fields stay nil until then.
type Trade struct {
	ID           string      `json:"id"`
	SignalID     string      `json:"signal_id"`
	MarketID     string      `json:"market_id"`
	Side         Side        `json:"side"`
	EntryPrice   float64     `json:"entry_price"`
	Size         float64     `json:"size"`
	EntryTime    time.Time   `json:"entry_time"`
	ExitPrice    *float64    `json:"exit_price,omitempty"`
	ExitTime     *time.Time  `json:"exit_time,omitempty"`
	PnL          *float64    `json:"pnl,omitempty"`
	Status       TradeStatus `json:"status"`
	PaperTrading bool        `json:"paper_trading"`
}

// PortfolioSnapshot is an append-only observation of portfolio state, written
// only in cycles that created or closed a trade. Readers always take the row
// with the greatest SnapshotTime.
type PortfolioSnapshot struct {
	ID             string    `json:"id"`
	SnapshotTime   time.Time `json:"snapshot_time"`
	TotalValue     float64   `json:"total_value"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	TotalExposure  float64   `json:"total_exposure"`
	DailyPnL       float64   `json:"daily_pnl"`
	UnrealizedPnL  float64   `json:"unrealized_pnl"`
	RealizedPnL    float64   `json:"realized_pnl"`
	PaperTrading   bool      `json:"paper_trading"`
}

// ————————————————————————————————————————————————————————————————————————
// Cycle reporting
// ————————————————————————————————————————————————————————————————————————

// CycleReport counts what one pipeline cycle accomplished.
type CycleReport struct {
	MarketsConsidered int `json:"markets_considered"`
	PredictionsSaved  int `json:"predictions_saved"`
	SignalsCreated    int `json:"signals_created"`
	TradesCreated     int `json:"trades_created"`
	Errors            int `json:"errors"`
}

// ————————————————————————————————————————————————————————————————————————
// Sentinel errors
// ————————————————————————————————————————————————————————————————————————

var (
	// ErrFeatureShape means the computed feature vector does not match the
	// frozen name list shipped with the models. The affected market fails;
	// the cycle continues.
	ErrFeatureShape = errors.New("feature vector does not match frozen feature names")

	// ErrDuplicatePrediction means a prediction for this market already
	// exists at the same second. The market's transaction rolls back.
	ErrDuplicatePrediction = errors.New("duplicate prediction for market in the same second")

	// ErrNoModels means no model artifact could be loaded at startup.
	// The bot refuses to run without at least one model.
	ErrNoModels = errors.New("no model artifacts loaded")
)
