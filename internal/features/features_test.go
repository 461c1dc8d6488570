package features

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"polymarket-pred/pkg/types"
)

// testSchema is a compact frozen schema covering every feature family.
func testSchema() []string {
	names := []string{
		"price_yes", "book_spread", "log_volume_24h", "log_liquidity",
		"days_to_resolution",
		"cat_politics", "cat_crypto", "cat_sports", "cat_science",
		"cat_business", "cat_culture", "cat_other",
		"news_sentiment", "social_sentiment", "news_count",
		"hour_sin", "hour_cos", "dow_sin", "dow_cos",
	}
	for i := 0; i < 8; i++ {
		names = append(names, fmt.Sprintf("embed_%03d", i))
	}
	return names
}

func ptr(v float64) *float64 { return &v }

func TestBuildMatchesSchema(t *testing.T) {
	t.Parallel()

	p := NewPipeline(testSchema())
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	resolution := now.Add(10 * 24 * time.Hour)

	vec, err := p.Build(types.AggregatedData{
		Market: types.Market{
			MarketID:       "0xm",
			Question:       "Will Bitcoin rally?",
			Category:       "Crypto",
			PriceYes:       0.60,
			Volume24h:      ptr(1000),
			Liquidity:      ptr(500),
			ResolutionDate: &resolution,
		},
		Midpoint:   ptr(0.62),
		BookSpread: ptr(0.02),
	}, now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(vec.Values) != len(testSchema()) {
		t.Fatalf("got %d values, want %d", len(vec.Values), len(testSchema()))
	}

	byName := map[string]float64{}
	for i, n := range vec.Names {
		byName[n] = vec.Values[i]
	}

	if byName["price_yes"] != 0.62 {
		t.Errorf("price_yes = %v, want midpoint 0.62 over page price", byName["price_yes"])
	}
	if byName["book_spread"] != 0.02 {
		t.Errorf("book_spread = %v", byName["book_spread"])
	}
	if got, want := byName["log_volume_24h"], math.Log1p(1000); got != want {
		t.Errorf("log_volume_24h = %v, want %v", got, want)
	}
	if byName["days_to_resolution"] != 10 {
		t.Errorf("days_to_resolution = %v, want 10", byName["days_to_resolution"])
	}
	if byName["cat_crypto"] != 1 || byName["cat_other"] != 0 {
		t.Errorf("category one-hot wrong: crypto=%v other=%v", byName["cat_crypto"], byName["cat_other"])
	}
}

func TestBuildMissingInputsAreNeutral(t *testing.T) {
	t.Parallel()

	p := NewPipeline(testSchema())
	now := time.Now().UTC()

	vec, err := p.Build(types.AggregatedData{
		Market: types.Market{MarketID: "0xm", Question: "Anything?", Category: "weird"},
	}, now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	byName := map[string]float64{}
	for i, n := range vec.Names {
		byName[n] = vec.Values[i]
	}

	if byName["book_spread"] != 0 {
		t.Errorf("book_spread = %v, want 0 for missing spread", byName["book_spread"])
	}
	if byName["log_volume_24h"] != 0 {
		t.Errorf("log_volume_24h = %v, want 0 for unknown volume", byName["log_volume_24h"])
	}
	if byName["days_to_resolution"] != 0 {
		t.Errorf("days_to_resolution = %v, want 0 for missing date", byName["days_to_resolution"])
	}
	if byName["cat_other"] != 1 {
		t.Errorf("cat_other = %v, want 1 for unknown category", byName["cat_other"])
	}
	if byName["news_sentiment"] != 0 {
		t.Errorf("news_sentiment = %v, want neutral 0 with no news", byName["news_sentiment"])
	}
}

func TestBuildUnknownFeatureName(t *testing.T) {
	t.Parallel()

	p := NewPipeline([]string{"price_yes", "feature_from_the_future"})
	_, err := p.Build(types.AggregatedData{Market: types.Market{MarketID: "0xm"}}, time.Now())
	if !errors.Is(err, types.ErrFeatureShape) {
		t.Fatalf("err = %v, want ErrFeatureShape", err)
	}
}

func TestSentimentPolarity(t *testing.T) {
	t.Parallel()

	if s := scoreText("Candidate wins in record surge, strong momentum"); s <= 0 {
		t.Errorf("positive text scored %v", s)
	}
	if s := scoreText("Markets crash as talks fail, concerns rise over losses"); s >= 0 {
		t.Errorf("negative text scored %v", s)
	}
	if s := scoreText("The meeting is scheduled for Tuesday"); s != 0 {
		t.Errorf("neutral text scored %v", s)
	}
}

func TestSentimentDecayWeighting(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	out := map[string]float64{}

	// A fresh positive headline and a 3-day-old negative one: the fresh one
	// dominates under 24h half-life decay.
	sentimentFeatures(out, []types.NewsItem{
		{Title: "strong rally wins", PublishedAt: now},
		{Title: "crash fails losses", PublishedAt: now.Add(-72 * time.Hour)},
	}, nil, now)

	if out["news_sentiment"] <= 0 {
		t.Errorf("news_sentiment = %v, want > 0 (fresh item dominates)", out["news_sentiment"])
	}
	if want := math.Log1p(2); out["news_count"] != want {
		t.Errorf("news_count = %v, want %v", out["news_count"], want)
	}
}

func TestTemporalCyclicalEncoding(t *testing.T) {
	t.Parallel()

	out := map[string]float64{}
	temporalFeatures(out, time.Date(2026, 8, 26, 6, 0, 0, 0, time.UTC))

	// 06:00 is a quarter turn: sin=1, cos=0.
	if math.Abs(out["hour_sin"]-1) > 1e-9 {
		t.Errorf("hour_sin = %v, want 1", out["hour_sin"])
	}
	if math.Abs(out["hour_cos"]) > 1e-9 {
		t.Errorf("hour_cos = %v, want 0", out["hour_cos"])
	}

	// sin²+cos² = 1 always.
	if r := out["dow_sin"]*out["dow_sin"] + out["dow_cos"]*out["dow_cos"]; math.Abs(r-1) > 1e-9 {
		t.Errorf("dow encoding norm = %v, want 1", r)
	}
}

func TestEmbeddingDeterministicAndNormalized(t *testing.T) {
	t.Parallel()

	e := newEmbedder(8)

	a := map[string]float64{}
	b := map[string]float64{}
	e.embed(a, "Will Bitcoin reach $100k?")
	e.embed(b, "Will Bitcoin reach $100k?")

	var norm float64
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("embed_%03d", i)
		if a[name] != b[name] {
			t.Errorf("%s differs between identical texts: %v vs %v", name, a[name], b[name])
		}
		norm += a[name] * a[name]
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Errorf("embedding norm² = %v, want 1", norm)
	}

	// Different text embeds differently.
	c := map[string]float64{}
	e.embed(c, "Will the Fed cut rates?")
	same := true
	for name := range a {
		if a[name] != c[name] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical embeddings")
	}
}
