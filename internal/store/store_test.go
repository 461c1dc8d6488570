package store

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"polymarket-pred/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr(v float64) *float64 { return &v }

func testMarket(id string) types.Market {
	resolution := time.Now().UTC().Add(7 * 24 * time.Hour)
	return types.Market{
		MarketID:       id,
		Question:       "Will it happen?",
		Category:       "politics",
		YesTokenID:     "tok-yes",
		NoTokenID:      "tok-no",
		PriceYes:       0.6,
		PriceNo:        0.4,
		ResolutionDate: &resolution,
		Volume24h:      ptr(1200),
		Liquidity:      ptr(800),
		Active:         true,
	}
}

func insertMarketAndPrediction(t *testing.T, s *Store, marketID string, at time.Time) types.Prediction {
	t.Helper()
	p := types.Prediction{
		ID:               uuid.NewString(),
		MarketID:         marketID,
		PredictionTime:   at,
		ModelProbability: 0.7,
		MarketPrice:      0.6,
		Edge:             0.1,
		Confidence:       0.8,
	}
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		if err := s.UpsertMarket(context.Background(), tx, testMarket(marketID)); err != nil {
			return err
		}
		return s.InsertPrediction(context.Background(), tx, p)
	})
	if err != nil {
		t.Fatalf("insert market+prediction: %v", err)
	}
	return p
}

func TestUpsertMarketInsertThenUpdate(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	m := testMarket("0xm")
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.UpsertMarket(ctx, tx, m)
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	m.PriceYes = 0.75
	m.Volume24h = ptr(5000)
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.UpsertMarket(ctx, tx, m)
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.GetMarket(ctx, "0xm")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if got == nil {
		t.Fatal("market not found after upsert")
	}
	if got.PriceYes != 0.75 {
		t.Errorf("PriceYes = %v, want updated 0.75", got.PriceYes)
	}
	if got.Volume24h == nil || *got.Volume24h != 5000 {
		t.Errorf("Volume24h = %v, want 5000", got.Volume24h)
	}
}

func TestListMarketsCutoff(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	fresh := testMarket("0xfresh")
	stale := testMarket("0xstale")
	staleDate := time.Now().UTC().Add(-45 * 24 * time.Hour)
	stale.ResolutionDate = &staleDate
	noDate := testMarket("0xnodate")
	noDate.ResolutionDate = nil

	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, m := range []types.Market{fresh, stale, noDate} {
			if err := s.UpsertMarket(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	markets, err := s.ListMarkets(ctx, 100)
	if err != nil {
		t.Fatalf("ListMarkets: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("got %d markets, want 2 (stale excluded)", len(markets))
	}
	for _, m := range markets {
		if m.MarketID == "0xstale" {
			t.Error("market resolved >30 days ago returned by ListMarkets")
		}
	}
}

func TestInsertPredictionDuplicateSameSecond(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	insertMarketAndPrediction(t, s, "0xm", at)

	dup := types.Prediction{
		ID:             uuid.NewString(),
		MarketID:       "0xm",
		PredictionTime: at.Add(500 * time.Millisecond), // same second after truncation
	}
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.InsertPrediction(ctx, tx, dup)
	})
	if !errors.Is(err, types.ErrDuplicatePrediction) {
		t.Fatalf("err = %v, want ErrDuplicatePrediction", err)
	}

	// A different second is fine.
	next := dup
	next.PredictionTime = at.Add(time.Second)
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.InsertPrediction(ctx, tx, next)
	}); err != nil {
		t.Fatalf("insert next-second prediction: %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.UpsertMarket(ctx, tx, testMarket("0xrollback")); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}

	got, err := s.GetMarket(ctx, "0xrollback")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if got != nil {
		t.Error("market visible after rollback")
	}
}

func TestSignalLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	p := insertMarketAndPrediction(t, s, "0xm", time.Now().UTC())

	sig := types.Signal{
		ID:            uuid.NewString(),
		PredictionID:  p.ID,
		MarketID:      "0xm",
		CreatedAt:     time.Now().UTC(),
		Side:          types.SideYes,
		Strength:      types.StrengthMedium,
		SuggestedSize: 50,
	}
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.InsertSignal(ctx, tx, sig); err != nil {
			return err
		}
		return s.MarkSignalExecuted(ctx, tx, sig.ID)
	}); err != nil {
		t.Fatalf("signal tx: %v", err)
	}

	signals, err := s.ListSignals(ctx, "0xm", 10)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	if !signals[0].Executed {
		t.Error("signal not marked executed")
	}
	if signals[0].Strength != types.StrengthMedium {
		t.Errorf("strength = %q", signals[0].Strength)
	}
}

func TestTradesAndOpenTrades(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	p := insertMarketAndPrediction(t, s, "0xm", time.Now().UTC())

	sig := types.Signal{
		ID: uuid.NewString(), PredictionID: p.ID, MarketID: "0xm",
		CreatedAt: time.Now().UTC(), Side: types.SideYes,
		Strength: types.StrengthStrong, SuggestedSize: 100,
	}
	trade := types.Trade{
		ID: uuid.NewString(), SignalID: sig.ID, MarketID: "0xm",
		Side: types.SideYes, EntryPrice: 0.6, Size: 100,
		EntryTime: time.Now().UTC(), Status: types.TradeOpen,
		PaperTrading: true,
	}

	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.InsertSignal(ctx, tx, sig); err != nil {
			return err
		}
		if err := s.InsertTrade(ctx, tx, trade); err != nil {
			return err
		}
		open, err := s.OpenTrades(ctx, tx)
		if err != nil {
			return err
		}
		if len(open) != 1 {
			t.Errorf("got %d open trades inside tx, want 1", len(open))
		}
		return nil
	}); err != nil {
		t.Fatalf("trade tx: %v", err)
	}

	trades, err := s.ListTrades(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	if trades[0].ExitPrice != nil || trades[0].PnL != nil {
		t.Error("open trade has exit fields set")
	}
}

func TestLatestSnapshot(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	snap, err := s.LatestSnapshot(ctx, true)
	if err != nil {
		t.Fatalf("LatestSnapshot empty: %v", err)
	}
	if snap != nil {
		t.Fatal("expected nil snapshot on empty table")
	}

	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for i, total := range []float64{10000, 10100} {
			err := s.InsertSnapshot(ctx, tx, types.PortfolioSnapshot{
				ID:           uuid.NewString(),
				SnapshotTime: base.Add(time.Duration(i) * time.Hour),
				TotalValue:   total,
				Cash:         total,
				PaperTrading: true,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	snap, err = s.LatestSnapshot(ctx, true)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if snap == nil || snap.TotalValue != 10100 {
		t.Errorf("latest snapshot = %+v, want total 10100", snap)
	}

	// Live snapshots are a separate series.
	if live, _ := s.LatestSnapshot(ctx, false); live != nil {
		t.Error("paper snapshot leaked into the live series")
	}
}
