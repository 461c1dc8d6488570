// Package market discovers active markets by merging two upstream feeds:
// the CLOB API (prices, token IDs) and the Gamma API (volume, liquidity,
// category metadata). The CLOB side is authoritative for prices; Gamma only
// enriches. Markets present in just one source are still usable, with the
// missing side's fields left at their zero or nil values.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-pred/internal/exchange"
	"polymarket-pred/pkg/types"
)

// staleCutoff is how long past its end date a market remains eligible.
// Recently-ended markets are kept because resolution often lags the end date.
const staleCutoff = 30 * 24 * time.Hour

// GammaMarket is the JSON shape of one market from the Gamma /markets feed.
// Numeric fields arrive as strings; list fields arrive as JSON-encoded strings.
type GammaMarket struct {
	ConditionID string `json:"conditionId"`
	Question    string `json:"question"`
	Category    string `json:"category"`
	EndDate     string `json:"endDate"`
	Volume24hr  string `json:"volume24hr"`
	Liquidity   string `json:"liquidity"`
	Archived    bool   `json:"archived"`
	Active      bool   `json:"active"`
	Closed      bool   `json:"closed"`

	OutcomePrices string `json:"outcomePrices"` // e.g. `["0.55", "0.45"]`
	ClobTokenIDs  string `json:"clobTokenIds"`  // e.g. `["123...", "456..."]`
}

// GammaClient reads market metadata from the Gamma API.
type GammaClient struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewGammaClient creates a Gamma metadata client with retry on 5xx.
func NewGammaClient(baseURL string, logger *slog.Logger) *GammaClient {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &GammaClient{
		http:   httpClient,
		logger: logger.With("component", "gamma"),
	}
}

// ListActive fetches active, unclosed markets ordered by 24h volume.
func (g *GammaClient) ListActive(ctx context.Context, limit int) ([]GammaMarket, error) {
	var markets []GammaMarket
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"active":    "true",
			"closed":    "false",
			"order":     "volume24hr",
			"ascending": "false",
			"limit":     strconv.Itoa(limit),
		}).
		SetResult(&markets).
		Get("/markets")
	if err != nil {
		return nil, fmt.Errorf("gamma list markets: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("gamma list markets: status %d: %s", resp.StatusCode(), resp.String())
	}
	return markets, nil
}

// Source merges CLOB and Gamma market feeds into canonical market snapshots.
type Source struct {
	clob   *exchange.Client
	gamma  *GammaClient
	logger *slog.Logger
}

// NewSource creates a market source over the two upstream clients.
func NewSource(clob *exchange.Client, gamma *GammaClient, logger *slog.Logger) *Source {
	return &Source{
		clob:   clob,
		gamma:  gamma,
		logger: logger.With("component", "market_source"),
	}
}

// ActiveMarkets fetches both feeds concurrently, merges on condition ID, and
// returns up to limit eligible markets. A failure of either feed degrades to
// single-source markets; both failing yields an empty slice, never an error —
// the cycle runner treats an empty batch as a no-op cycle.
func (s *Source) ActiveMarkets(ctx context.Context, limit int) []types.Market {
	// Over-fetch so filtering still leaves enough to fill the limit.
	fetchN := limit * 2
	if fetchN < 50 {
		fetchN = 50
	}

	var (
		wg          sync.WaitGroup
		clobMarkets []exchange.ClobMarket
		gammaList   []GammaMarket
		clobErr     error
		gammaErr    error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		clobMarkets, clobErr = s.clob.ListMarkets(ctx, fetchN)
	}()
	go func() {
		defer wg.Done()
		gammaList, gammaErr = s.gamma.ListActive(ctx, fetchN)
	}()
	wg.Wait()

	if clobErr != nil {
		s.logger.Warn("clob market fetch failed, continuing with gamma only", "error", clobErr)
	}
	if gammaErr != nil {
		s.logger.Warn("gamma market fetch failed, continuing with clob only", "error", gammaErr)
	}
	if clobErr != nil && gammaErr != nil {
		s.logger.Error("both market sources failed, skipping cycle")
		return nil
	}

	merged := merge(clobMarkets, gammaList)

	eligible := make([]types.Market, 0, len(merged))
	now := time.Now().UTC()
	for _, m := range merged {
		if m.Archived {
			continue
		}
		if m.ResolutionDate != nil && now.Sub(*m.ResolutionDate) > staleCutoff {
			continue
		}
		eligible = append(eligible, m)
		if len(eligible) >= limit {
			break
		}
	}

	s.logger.Info("active markets resolved",
		"clob", len(clobMarkets),
		"gamma", len(gammaList),
		"merged", len(merged),
		"eligible", len(eligible),
	)
	return eligible
}

// merge joins the two feeds on condition ID. CLOB wins on every shared field
// except volume, liquidity, and category, which only Gamma carries reliably.
// Order follows the CLOB feed, with Gamma-only markets appended after.
func merge(clobMarkets []exchange.ClobMarket, gammaList []GammaMarket) []types.Market {
	gammaByID := make(map[string]GammaMarket, len(gammaList))
	for _, g := range gammaList {
		if g.ConditionID != "" {
			gammaByID[g.ConditionID] = g
		}
	}

	var out []types.Market
	seen := make(map[string]bool)

	for _, cm := range clobMarkets {
		key := cm.Key()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		m := fromClob(cm)
		if g, ok := gammaByID[key]; ok {
			enrichFromGamma(&m, g)
		}
		out = append(out, m)
	}

	for _, g := range gammaList {
		if g.ConditionID == "" || seen[g.ConditionID] {
			continue
		}
		seen[g.ConditionID] = true
		out = append(out, fromGamma(g))
	}

	return out
}

func fromClob(cm exchange.ClobMarket) types.Market {
	m := types.Market{
		MarketID: cm.Key(),
		Question: cm.Question,
		Category: cm.Category,
		Archived: cm.Archived,
		Active:   cm.Active,
		Closed:   cm.Closed,
	}
	for _, tok := range cm.Tokens {
		switch strings.ToLower(tok.Outcome) {
		case "yes":
			m.YesTokenID = tok.TokenID
			m.PriceYes = tok.Price
		case "no":
			m.NoTokenID = tok.TokenID
			m.PriceNo = tok.Price
		}
	}
	if t, err := time.Parse(time.RFC3339, cm.EndDateISO); err == nil {
		utc := t.UTC()
		m.ResolutionDate = &utc
	}
	return m
}

// enrichFromGamma fills the metadata fields CLOB does not carry. Price fields
// are never overwritten: the price source is authoritative.
func enrichFromGamma(m *types.Market, g GammaMarket) {
	if v, err := strconv.ParseFloat(g.Volume24hr, 64); err == nil {
		m.Volume24h = &v
	}
	if l, err := strconv.ParseFloat(g.Liquidity, 64); err == nil {
		m.Liquidity = &l
	}
	if g.Category != "" {
		m.Category = g.Category
	}
	if m.Question == "" {
		m.Question = g.Question
	}
	if m.ResolutionDate == nil {
		if t, err := time.Parse(time.RFC3339, g.EndDate); err == nil {
			utc := t.UTC()
			m.ResolutionDate = &utc
		}
	}
	m.Archived = m.Archived || g.Archived
}

// fromGamma builds a market seen only in the metadata feed. Prices come from
// the outcomePrices field; token IDs from clobTokenIds. Both are JSON arrays
// encoded as strings, ordered [YES, NO].
func fromGamma(g GammaMarket) types.Market {
	m := types.Market{
		MarketID: g.ConditionID,
		Question: g.Question,
		Category: g.Category,
		Archived: g.Archived,
		Active:   g.Active,
		Closed:   g.Closed,
	}
	enrichFromGamma(&m, g)

	var prices []string
	if err := json.Unmarshal([]byte(g.OutcomePrices), &prices); err == nil && len(prices) == 2 {
		if p, err := strconv.ParseFloat(prices[0], 64); err == nil {
			m.PriceYes = p
		}
		if p, err := strconv.ParseFloat(prices[1], 64); err == nil {
			m.PriceNo = p
		}
	}

	var tokens []string
	if err := json.Unmarshal([]byte(g.ClobTokenIDs), &tokens); err == nil && len(tokens) == 2 {
		m.YesTokenID = tokens[0]
		m.NoTokenID = tokens[1]
	}

	return m
}
