// feed.go implements the optional WebSocket market feed.
//
// The feed subscribes to the public CLOB market channel by token ID and keeps
// the last known midpoint per token in memory. The data aggregator consults
// this cache before falling back to REST midpoint calls, which removes one
// network round trip per market on busy cycles.
//
// The feed auto-reconnects with exponential backoff (1s → 30s max) and
// re-subscribes to all tracked token IDs on reconnection. A read deadline
// (90s) ensures silent server failures are detected within ~2 missed pings.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval     = 50 * time.Second // how often we send PING to keep alive
	readTimeout      = 90 * time.Second // ~2 missed pings triggers reconnect
	maxReconnectWait = 30 * time.Second // cap on exponential backoff
	writeTimeout     = 10 * time.Second // deadline for outgoing messages
)

// bookLevel is one price level in a ws book snapshot.
type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// wsBookEvent is a full book snapshot for one token.
type wsBookEvent struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Bids      []bookLevel `json:"bids"`
	Asks      []bookLevel `json:"asks"`
}

// wsSubscribeMsg is the initial subscription frame for the market channel.
type wsSubscribeMsg struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

// PriceFeed maintains a live midpoint cache fed by the CLOB market channel.
// Safe for concurrent use; readers call Midpoint, the feed goroutine writes.
type PriceFeed struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex // protects conn reads/writes

	// Track subscriptions for automatic re-subscribe on reconnect
	subscribedMu sync.RWMutex
	subscribed   map[string]bool // token IDs

	midpointsMu sync.RWMutex
	midpoints   map[string]float64 // tokenID → last computed midpoint

	logger *slog.Logger
}

// NewPriceFeed creates a market-channel feed for the given WebSocket URL.
func NewPriceFeed(wsURL string, logger *slog.Logger) *PriceFeed {
	return &PriceFeed{
		url:        wsURL,
		subscribed: make(map[string]bool),
		midpoints:  make(map[string]float64),
		logger:     logger.With("component", "price_feed"),
	}
}

// Midpoint returns the cached midpoint for a token, if the feed has seen one.
func (f *PriceFeed) Midpoint(tokenID string) (float64, bool) {
	f.midpointsMu.RLock()
	defer f.midpointsMu.RUnlock()
	mid, ok := f.midpoints[tokenID]
	return mid, ok
}

// Track adds token IDs to the subscription set and subscribes them if connected.
func (f *PriceFeed) Track(tokenIDs []string) {
	f.subscribedMu.Lock()
	fresh := make([]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if id == "" || f.subscribed[id] {
			continue
		}
		f.subscribed[id] = true
		fresh = append(fresh, id)
	}
	f.subscribedMu.Unlock()

	if len(fresh) == 0 {
		return
	}
	if err := f.writeJSON(wsSubscribeMsg{Type: "market", AssetIDs: fresh}); err != nil {
		// Not connected yet; the IDs are tracked and will be sent on connect.
		f.logger.Debug("subscribe deferred", "tokens", len(fresh), "error", err)
	}
}

// Run connects and maintains the WebSocket connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (f *PriceFeed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("websocket disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		// Exponential backoff: 1s, 2s, 4s, 8s, ..., 30s max
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Close gracefully closes the connection.
func (f *PriceFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *PriceFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	// Re-subscribe everything we track
	f.subscribedMu.RLock()
	ids := make([]string, 0, len(f.subscribed))
	for id := range f.subscribed {
		ids = append(ids, id)
	}
	f.subscribedMu.RUnlock()
	if len(ids) > 0 {
		if err := f.writeJSON(wsSubscribeMsg{Type: "market", AssetIDs: ids}); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	f.logger.Info("websocket connected", "tracked_tokens", len(ids))

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	// Read loop with deadline so we reconnect if server goes silent
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.handleMessage(msg)
	}
}

func (f *PriceFeed) handleMessage(data []byte) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}

	// Only book snapshots carry both sides of the spread; everything else on
	// the market channel is informational for our purposes.
	if envelope.EventType != "book" {
		return
	}

	var evt wsBookEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		f.logger.Debug("unmarshal book event", "error", err)
		return
	}

	mid, ok := midFromBook(evt)
	if !ok {
		return
	}

	f.midpointsMu.Lock()
	f.midpoints[evt.AssetID] = mid
	f.midpointsMu.Unlock()
}

// midFromBook computes (bestBid + bestAsk) / 2 from a book snapshot.
// Returns false when either side of the book is empty or unparseable.
func midFromBook(evt wsBookEvent) (float64, bool) {
	if len(evt.Bids) == 0 || len(evt.Asks) == 0 {
		return 0, false
	}

	// Bids ascend, asks descend in CLOB snapshots; take the best of each.
	bestBid, err1 := strconv.ParseFloat(evt.Bids[len(evt.Bids)-1].Price, 64)
	bestAsk, err2 := strconv.ParseFloat(evt.Asks[len(evt.Asks)-1].Price, 64)
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return (bestBid + bestAsk) / 2, true
}

func (f *PriceFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.TextMessage, []byte("PING")); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *PriceFeed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *PriceFeed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}
