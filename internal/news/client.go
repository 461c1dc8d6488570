// Package news fetches recent articles relevant to a market question from a
// NewsAPI-compatible provider. News is a soft input: any failure (including
// rate limiting) degrades to an empty article list and is never surfaced as
// an error to the caller.
package news

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-pred/pkg/types"
)

// maxArticles caps how many articles one query returns.
const maxArticles = 20

// stopwords are dropped when turning a market question into a search query.
var stopwords = map[string]bool{
	"will": true, "the": true, "a": true, "an": true, "in": true, "on": true,
	"by": true, "be": true, "is": true, "are": true, "of": true, "to": true,
	"at": true, "for": true, "before": true, "after": true, "than": true,
	"and": true, "or": true, "more": true, "less": true, "this": true,
	"that": true, "it": true, "its": true, "do": true, "does": true,
}

type article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

type everythingResponse struct {
	Status   string    `json:"status"`
	Code     string    `json:"code"`
	Articles []article `json:"articles"`
}

// Client talks to a NewsAPI-compatible /v2/everything endpoint.
type Client struct {
	http    *resty.Client
	apiKey  string
	enabled bool
	logger  *slog.Logger
}

// NewClient creates a news client. An empty API key disables the client: all
// queries return empty results.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &Client{
		http:    httpClient,
		apiKey:  apiKey,
		enabled: apiKey != "",
		logger:  logger.With("component", "news"),
	}
}

// Search fetches recent articles matching a market question. Failures degrade
// to an empty slice: news absence must never fail a market.
func (c *Client) Search(ctx context.Context, question string) []types.NewsItem {
	if !c.enabled {
		return nil
	}

	query := buildQuery(question)
	if query == "" {
		return nil
	}

	var result everythingResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Api-Key", c.apiKey).
		SetQueryParams(map[string]string{
			"q":        query,
			"sortBy":   "publishedAt",
			"language": "en",
			"pageSize": fmt.Sprintf("%d", maxArticles),
			"from":     time.Now().UTC().AddDate(0, 0, -7).Format("2006-01-02"),
		}).
		SetResult(&result).
		Get("/v2/everything")
	if err != nil {
		c.logger.Debug("news fetch failed", "query", query, "error", err)
		return nil
	}
	if resp.StatusCode() == http.StatusTooManyRequests || result.Code == "rateLimited" {
		c.logger.Debug("news provider rate limited", "query", query)
		return nil
	}
	if resp.StatusCode() != http.StatusOK || result.Status != "ok" {
		c.logger.Debug("news fetch rejected",
			"query", query,
			"status", resp.StatusCode(),
			"code", result.Code,
		)
		return nil
	}

	items := make([]types.NewsItem, 0, len(result.Articles))
	for _, a := range result.Articles {
		published, err := time.Parse(time.RFC3339, a.PublishedAt)
		if err != nil {
			published = time.Now().UTC()
		}
		items = append(items, types.NewsItem{
			Title:       a.Title,
			Body:        a.Description,
			PublishedAt: published.UTC(),
			Source:      a.Source.Name,
		})
	}
	return items
}

// buildQuery turns a market question into a keyword search string by dropping
// stopwords and punctuation. "Will Bitcoin reach $100k by March?" becomes
// "bitcoin reach $100k march".
func buildQuery(question string) string {
	words := strings.Fields(strings.ToLower(question))
	keep := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, "?.,!\"'()")
		if w == "" || stopwords[w] {
			continue
		}
		keep = append(keep, w)
	}
	// Keep queries short; news search relevance degrades past a few terms.
	if len(keep) > 6 {
		keep = keep[:6]
	}
	return strings.Join(keep, " ")
}
