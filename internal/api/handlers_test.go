package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"polymarket-pred/internal/aggregate"
	"polymarket-pred/internal/config"
	"polymarket-pred/internal/exchange"
	"polymarket-pred/internal/market"
	"polymarket-pred/internal/model"
	"polymarket-pred/internal/news"
	"polymarket-pred/internal/pipeline"
	"polymarket-pred/internal/store"
	"polymarket-pred/internal/trading"
	"polymarket-pred/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	modelDir := t.TempDir()
	artifact := model.Artifact{
		Name:         "stump",
		FeatureNames: []string{"price_yes"},
		Trees: [][]model.Node{
			{
				{Feature: 0, Threshold: 0.5, Left: 1, Right: 2},
				{Leaf: true, Value: -1},
				{Leaf: true, Value: 1},
			},
		},
	}
	data, _ := json.Marshal(artifact)
	if err := os.WriteFile(filepath.Join(modelDir, "stump.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	ensemble, err := model.LoadDir(modelDir, nil, 0.5, logger)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	// Dead upstreams: the trigger endpoint only needs a wired runner, the
	// background cycle it schedules degrades to a no-op.
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(dead.Close)

	clob := exchange.NewClient(dead.URL, logger)
	src := market.NewSource(clob, market.NewGammaClient(dead.URL, logger), logger)
	agg := aggregate.New(clob, news.NewClient(dead.URL, "", logger), aggregate.Options{}, logger)
	engine := trading.NewEngine(st, config.SignalsConfig{
		MinEdge: 0.05, MinConfidence: 0.55, MinLiquidity: 500,
		BaseUnit: 50, WeakMultiplier: 0.5, MediumMultiplier: 1, StrongMultiplier: 2,
		MaxPositionSize: 200,
	}, config.TradingConfig{PaperTrading: true, StartingCash: 10000}, logger)
	runner := pipeline.NewRunner(src, agg, ensemble, engine, config.PipelineConfig{
		DefaultLimit: 10, Concurrency: 3,
		PerMarketTimeout: 30 * time.Second, MidpointConcurrency: 20,
		CallTimeout: time.Second,
	}, logger)

	return NewServer(0, runner, st, ensemble, logger), st
}

func seedRows(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	resolution := time.Now().UTC().Add(48 * time.Hour)
	vol := 2000.0

	predID := uuid.NewString()
	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		if err := st.UpsertMarket(ctx, tx, types.Market{
			MarketID: "0xm", Question: "Will it happen?", PriceYes: 0.6, PriceNo: 0.4,
			ResolutionDate: &resolution, Volume24h: &vol, Active: true,
		}); err != nil {
			return err
		}
		if err := st.InsertPrediction(ctx, tx, types.Prediction{
			ID: predID, MarketID: "0xm", PredictionTime: time.Now().UTC(),
			ModelProbability: 0.72, MarketPrice: 0.6, Edge: 0.12, Confidence: 0.8,
		}); err != nil {
			return err
		}
		return st.InsertSignal(ctx, tx, types.Signal{
			ID: uuid.NewString(), PredictionID: predID, MarketID: "0xm",
			CreatedAt: time.Now().UTC(), Side: types.SideYes,
			Strength: types.StrengthMedium, SuggestedSize: 50,
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func doRequest(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestGenerateAcksImmediately(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/predictions/generate?limit=5&auto_trades=true")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "started" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["limit"] != float64(5) {
		t.Errorf("limit = %v, want 5", body["limit"])
	}
	if body["auto_signals"] != true || body["auto_trades"] != true {
		t.Errorf("flags = %v/%v", body["auto_signals"], body["auto_trades"])
	}
}

func TestGenerateAckEchoesDefaultLimit(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	// No limit parameter: the ack reports the configured default, not zero.
	rec := doRequest(t, s, http.MethodPost, "/predictions/generate")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["limit"] != float64(10) {
		t.Errorf("limit = %v, want configured default 10", body["limit"])
	}
}

func TestGenerateRejectsBadParams(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	for _, target := range []string{
		"/predictions/generate?limit=abc",
		"/predictions/generate?limit=-1",
		"/predictions/generate?auto_signals=maybe",
		"/predictions/generate?auto_trades=2x",
	} {
		if rec := doRequest(t, s, http.MethodPost, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestReadEndpoints(t *testing.T) {
	t.Parallel()
	s, st := newTestServer(t)
	seedRows(t, st)

	for _, tt := range []struct {
		target string
		field  string
		count  int
	}{
		{"/markets", "markets", 1},
		{"/predictions", "predictions", 1},
		{"/predictions?market_id=0xother", "predictions", 0},
		{"/signals", "signals", 1},
		{"/trades", "trades", 0},
	} {
		rec := doRequest(t, s, http.MethodGet, tt.target)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", tt.target, rec.Code)
			continue
		}
		var body map[string]json.RawMessage
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Errorf("%s: %v", tt.target, err)
			continue
		}
		var count int
		if err := json.Unmarshal(body["count"], &count); err != nil || count != tt.count {
			t.Errorf("%s: count = %d, want %d", tt.target, count, tt.count)
		}
	}
}

func TestPortfolioLatest404WhenEmpty(t *testing.T) {
	t.Parallel()
	s, st := newTestServer(t)

	if rec := doRequest(t, s, http.MethodGet, "/portfolio/latest"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 with no snapshots", rec.Code)
	}

	ctx := context.Background()
	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		return st.InsertSnapshot(ctx, tx, types.PortfolioSnapshot{
			ID: uuid.NewString(), SnapshotTime: time.Now().UTC(),
			TotalValue: 10000, Cash: 10000, PaperTrading: true,
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, s, http.MethodGet, "/portfolio/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap types.PortfolioSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.TotalValue != 10000 {
		t.Errorf("TotalValue = %v", snap.TotalValue)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if body["models"] != float64(1) {
		t.Errorf("models = %v, want 1", body["models"])
	}
}

func TestMetricsServed(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty metrics body")
	}
}
