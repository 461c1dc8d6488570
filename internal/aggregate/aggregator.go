// Package aggregate assembles the per-market data bundle the feature pipeline
// consumes. It fans out to the order book, the news provider, and any social
// sources concurrently, with a per-call budget, and always produces a bundle:
// every input is soft, so a partial bundle is a valid bundle.
package aggregate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"polymarket-pred/internal/exchange"
	"polymarket-pred/internal/news"
	"polymarket-pred/pkg/types"
)

// SocialProvider supplies posts about a market question. Implementations are
// optional; a nil provider means no social data.
type SocialProvider interface {
	Posts(ctx context.Context, question string) []types.SocialItem
}

// MidpointFeed is a live midpoint source consulted before REST book reads.
// Track subscribes token IDs so subsequent Midpoint calls can hit; both are
// satisfied by *exchange.PriceFeed.
type MidpointFeed interface {
	Midpoint(tokenID string) (float64, bool)
	Track(tokenIDs []string)
}

// bookEntry is a cached midpoint/spread observation for one token.
type bookEntry struct {
	midpoint *float64
	spread   *float64
}

// Aggregator gathers market, news, social, and order book data for one market.
type Aggregator struct {
	clob   *exchange.Client
	news   *news.Client
	social SocialProvider // nil when social sources are disabled
	feed   MidpointFeed   // nil when the ws feed is disabled

	callTimeout  time.Duration
	warmParallel int
	logger       *slog.Logger

	cacheMu sync.RWMutex
	cache   map[string]bookEntry // tokenID → last warmed observation
}

// Options configures optional aggregator inputs.
type Options struct {
	Social       SocialProvider
	Feed         MidpointFeed
	CallTimeout  time.Duration // budget per upstream call; 0 means 5s
	WarmParallel int           // midpoint prefetch parallelism; 0 means 20
}

// New creates an aggregator over the given clients.
func New(clob *exchange.Client, newsClient *news.Client, opts Options, logger *slog.Logger) *Aggregator {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	if opts.WarmParallel <= 0 {
		opts.WarmParallel = 20
	}
	return &Aggregator{
		clob:         clob,
		news:         newsClient,
		social:       opts.Social,
		feed:         opts.Feed,
		callTimeout:  opts.CallTimeout,
		warmParallel: opts.WarmParallel,
		logger:       logger.With("component", "aggregator"),
	}
}

// WarmMidpoints prefetches midpoint and spread for a batch of markets in
// parallel, bounded by WarmParallel, and subscribes the batch's tokens on the
// live feed when one is configured. Individual failures are logged and
// skipped: a cold cache entry degrades to a nil midpoint later, never to a
// failed market.
func (a *Aggregator) WarmMidpoints(ctx context.Context, markets []types.Market) {
	if a.feed != nil {
		tokenIDs := make([]string, 0, len(markets))
		for _, m := range markets {
			if m.YesTokenID != "" {
				tokenIDs = append(tokenIDs, m.YesTokenID)
			}
		}
		a.feed.Track(tokenIDs)
	}

	fresh := make(map[string]bookEntry, len(markets))
	var freshMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.warmParallel)

	for _, m := range markets {
		tokenID := m.YesTokenID
		if tokenID == "" {
			continue
		}
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, a.callTimeout)
			defer cancel()

			mid, err := a.clob.GetMidpoint(callCtx, tokenID)
			if err != nil {
				a.logger.Debug("midpoint warm failed", "token_id", tokenID, "error", err)
				return nil
			}
			spread, err := a.clob.GetSpread(callCtx, tokenID)
			if err != nil {
				a.logger.Debug("spread warm failed", "token_id", tokenID, "error", err)
				spread = nil
			}

			freshMu.Lock()
			fresh[tokenID] = bookEntry{midpoint: mid, spread: spread}
			freshMu.Unlock()
			return nil
		})
	}
	g.Wait()

	a.cacheMu.Lock()
	a.cache = fresh
	a.cacheMu.Unlock()

	a.logger.Debug("midpoint cache warmed", "markets", len(markets), "entries", len(fresh))
}

// FetchAll gathers everything known about one market. It never returns an
// error: each input degrades independently to its empty value.
func (a *Aggregator) FetchAll(ctx context.Context, m types.Market) types.AggregatedData {
	data := types.AggregatedData{Market: m}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
		data.News = a.news.Search(callCtx, m.Question)
	}()

	if a.social != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
			defer cancel()
			data.Social = a.social.Posts(callCtx, m.Question)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		data.Midpoint, data.BookSpread = a.bookData(ctx, m.YesTokenID)
	}()

	wg.Wait()
	return data
}

// bookData resolves midpoint and spread for a token: live ws feed first, then
// the warmed cache, then a direct REST call as last resort.
func (a *Aggregator) bookData(ctx context.Context, tokenID string) (*float64, *float64) {
	if tokenID == "" {
		return nil, nil
	}

	if a.feed != nil {
		if mid, ok := a.feed.Midpoint(tokenID); ok {
			m := mid
			a.cacheMu.RLock()
			entry := a.cache[tokenID]
			a.cacheMu.RUnlock()
			return &m, entry.spread
		}
	}

	a.cacheMu.RLock()
	entry, cached := a.cache[tokenID]
	a.cacheMu.RUnlock()
	if cached {
		return entry.midpoint, entry.spread
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	mid, err := a.clob.GetMidpoint(callCtx, tokenID)
	if err != nil {
		a.logger.Debug("midpoint fetch failed", "token_id", tokenID, "error", err)
		return nil, nil
	}
	spread, err := a.clob.GetSpread(callCtx, tokenID)
	if err != nil {
		spread = nil
	}
	return mid, spread
}
