// Package exchange implements the Polymarket CLOB read clients.
//
// The REST client (Client) talks to the public CLOB API:
//   - ListMarkets:  GET /markets   — paged market list with token prices
//   - GetMidpoint:  GET /midpoint  — mid of best bid/ask for a token
//   - GetSpread:    GET /spread    — best-ask minus best-bid for a token
//
// Every request is rate-limited via per-category TokenBuckets and retried on
// 5xx errors. No endpoint here requires authentication: the bot only reads.
// A midpoint 404 is a normal response ("no midpoint available"), returned as
// a nil value rather than an error.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// ClobToken is one outcome token inside a CLOB market object.
type ClobToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"` // "Yes" or "No" (case varies upstream)
	Price   float64 `json:"price"`
}

// ClobMarket is the JSON shape of one market in the CLOB /markets page.
// ConditionID is the primary key; some older markets only carry QuestionID.
type ClobMarket struct {
	ConditionID string      `json:"condition_id"`
	QuestionID  string      `json:"question_id"`
	Question    string      `json:"question"`
	Category    string      `json:"category"`
	EndDateISO  string      `json:"end_date_iso"`
	Archived    bool        `json:"archived"`
	Active      bool        `json:"active"`
	Closed      bool        `json:"closed"`
	Tokens      []ClobToken `json:"tokens"`
}

// Key returns the market identifier, trying condition_id then question_id.
func (m ClobMarket) Key() string {
	if m.ConditionID != "" {
		return m.ConditionID
	}
	return m.QuestionID
}

// marketsPage is the paged envelope around the CLOB /markets response.
type marketsPage struct {
	Data       []ClobMarket `json:"data"`
	NextCursor string       `json:"next_cursor"`
}

// endCursor is the CLOB API's sentinel for "no more pages".
const endCursor = "LTE="

// Client is the Polymarket CLOB read-only REST client.
// It wraps a resty HTTP client with rate limiting and retry.
type Client struct {
	http   *resty.Client
	rl     *RateLimiter
	logger *slog.Logger
}

// NewClient creates a CLOB read client with rate limiting and retry.
func NewClient(baseURL string, logger *slog.Logger) *Client {
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
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		rl:     NewRateLimiter(),
		logger: logger.With("component", "clob"),
	}
}

// ListMarkets fetches up to limit markets, following next_cursor pagination.
// limit <= 0 means "fetch everything the API will give".
func (c *Client) ListMarkets(ctx context.Context, limit int) ([]ClobMarket, error) {
	var all []ClobMarket
	cursor := ""

	for {
		if err := c.rl.Markets.Wait(ctx); err != nil {
			return all, err
		}

		var page marketsPage
		req := c.http.R().
			SetContext(ctx).
			SetResult(&page)
		if cursor != "" {
			req.SetQueryParam("next_cursor", cursor)
		}
		resp, err := req.Get("/markets")
		if err != nil {
			return all, fmt.Errorf("list markets: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return all, fmt.Errorf("list markets: status %d: %s", resp.StatusCode(), resp.String())
		}

		all = append(all, page.Data...)

		if limit > 0 && len(all) >= limit {
			return all[:limit], nil
		}
		if page.NextCursor == "" || page.NextCursor == endCursor || len(page.Data) == 0 {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// GetMidpoint fetches the order book midpoint for a token.
// Returns (nil, nil) on 404: no midpoint is a normal outcome for thin books.
func (c *Client) GetMidpoint(ctx context.Context, tokenID string) (*float64, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	var result struct {
		Mid string `json:"mid"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&result).
		Get("/midpoint")
	if err != nil {
		return nil, fmt.Errorf("get midpoint: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get midpoint: status %d: %s", resp.StatusCode(), resp.String())
	}

	mid, err := strconv.ParseFloat(result.Mid, 64)
	if err != nil {
		return nil, fmt.Errorf("get midpoint: parse %q: %w", result.Mid, err)
	}
	return &mid, nil
}

// GetSpread fetches the best-ask minus best-bid spread for a token.
// Returns (nil, nil) on 404, mirroring GetMidpoint.
func (c *Client) GetSpread(ctx context.Context, tokenID string) (*float64, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	var result struct {
		Spread string `json:"spread"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&result).
		Get("/spread")
	if err != nil {
		return nil, fmt.Errorf("get spread: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get spread: status %d: %s", resp.StatusCode(), resp.String())
	}

	spread, err := strconv.ParseFloat(result.Spread, 64)
	if err != nil {
		return nil, fmt.Errorf("get spread: parse %q: %w", result.Spread, err)
	}
	return &spread, nil
}
