package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"polymarket-pred/internal/pipeline"
)

// handleGenerate schedules a prediction cycle in the background and
// acknowledges immediately. The caller polls the read endpoints for results.
//
// Query parameters: limit (int, default from config), auto_signals (bool,
// default true), auto_trades (bool, default false). Malformed values are a
// 400, not a silent default.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := s.runner.DefaultLimit()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	autoSignals := true
	if raw := q.Get("auto_signals"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, "auto_signals must be a boolean")
			return
		}
		autoSignals = b
	}

	autoTrades := false
	if raw := q.Get("auto_trades"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, "auto_trades must be a boolean")
			return
		}
		autoTrades = b
	}

	params := pipeline.CycleParams{
		Limit:       limit,
		AutoSignals: autoSignals,
		AutoTrades:  autoTrades,
	}

	// The cycle outlives this request: run it on a background context.
	go s.runner.RunCycle(context.Background(), params)

	s.logger.Info("cycle scheduled",
		"limit", limit,
		"auto_signals", autoSignals,
		"auto_trades", autoTrades,
	)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "started",
		"limit":        limit,
		"auto_signals": autoSignals,
		"auto_trades":  autoTrades,
	})
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, 100)
	if !ok {
		return
	}
	markets, err := s.store.ListMarkets(r.Context(), limit)
	if err != nil {
		s.internalError(w, "list markets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets, "count": len(markets)})
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, 100)
	if !ok {
		return
	}
	predictions, err := s.store.ListPredictions(r.Context(), r.URL.Query().Get("market_id"), limit)
	if err != nil {
		s.internalError(w, "list predictions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": predictions, "count": len(predictions)})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, 100)
	if !ok {
		return
	}
	signals, err := s.store.ListSignals(r.Context(), r.URL.Query().Get("market_id"), limit)
	if err != nil {
		s.internalError(w, "list signals", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": signals, "count": len(signals)})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, 100)
	if !ok {
		return
	}
	trades, err := s.store.ListTrades(r.Context(), r.URL.Query().Get("market_id"), limit)
	if err != nil {
		s.internalError(w, "list trades", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades, "count": len(trades)})
}

// handlePortfolioLatest serves the newest snapshot. 404 until the first trade
// produces one.
func (s *Server) handlePortfolioLatest(w http.ResponseWriter, r *http.Request) {
	paper := true
	if raw := r.URL.Query().Get("paper_trading"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, "paper_trading must be a boolean")
			return
		}
		paper = b
	}

	snap, err := s.store.LatestSnapshot(r.Context(), paper)
	if err != nil {
		s.internalError(w, "latest snapshot", err)
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no portfolio snapshot yet"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	overall := "ok"
	dbState := "ok"
	if err := s.store.Ping(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		overall = "degraded"
		dbState = err.Error()
	}
	writeJSON(w, status, map[string]any{
		"status":   overall,
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"models":   s.ensemble.Size(),
		"database": dbState,
	})
}

func limitParam(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		badRequest(w, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
}
