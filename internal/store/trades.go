package store

import (
	"context"
	"database/sql"
	"fmt"

	"polymarket-pred/pkg/types"
)

// InsertTrade appends a trade row inside tx.
func (s *Store) InsertTrade(ctx context.Context, tx *sql.Tx, t types.Trade) error {
	var exitPrice, pnl any
	var exitTime any
	if t.ExitPrice != nil {
		exitPrice = *t.ExitPrice
	}
	if t.ExitTime != nil {
		exitTime = formatTime(*t.ExitTime)
	}
	if t.PnL != nil {
		pnl = *t.PnL
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO trades (
			id, signal_id, market_id, side, entry_price, size, entry_time,
			exit_price, exit_time, pnl, status, paper_trading
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SignalID, t.MarketID, string(t.Side), t.EntryPrice, t.Size,
		formatTime(t.EntryTime), exitPrice, exitTime, pnl,
		string(t.Status), t.PaperTrading,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// OpenTrades returns all OPEN trades inside tx. The trading engine reads
// them in the same transaction that may add one, so the portfolio snapshot
// sees a consistent position set.
func (s *Store) OpenTrades(ctx context.Context, tx *sql.Tx) ([]types.Trade, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, signal_id, market_id, side, entry_price, size, entry_time,
		       exit_price, exit_time, pnl, status, paper_trading
		FROM trades WHERE status = 'OPEN'
		ORDER BY entry_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("open trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// ListTrades returns recent trades, newest entry first.
func (s *Store) ListTrades(ctx context.Context, marketID string, limit int) ([]types.Trade, error) {
	query := `
		SELECT id, signal_id, market_id, side, entry_price, size, entry_time,
		       exit_price, exit_time, pnl, status, paper_trading
		FROM trades`
	var args []any
	if marketID != "" {
		query += ` WHERE market_id = ?`
		args = append(args, marketID)
	}
	query += ` ORDER BY entry_time DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// SumRealizedPnL totals the booked pnl of closed trades inside tx.
func (s *Store) SumRealizedPnL(ctx context.Context, tx *sql.Tx) (float64, error) {
	var total sql.NullFloat64
	err := tx.QueryRowContext(ctx,
		`SELECT SUM(pnl) FROM trades WHERE status = 'CLOSED'`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum realized pnl: %w", err)
	}
	return total.Float64, nil
}

func collectTrades(rows *sql.Rows) ([]types.Trade, error) {
	var out []types.Trade
	for rows.Next() {
		var (
			t                types.Trade
			side, status, ts string
			exitPrice, pnl   sql.NullFloat64
			exitTime         sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.SignalID, &t.MarketID, &side,
			&t.EntryPrice, &t.Size, &ts, &exitPrice, &exitTime, &pnl,
			&status, &t.PaperTrading); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}

		entry, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parse entry_time %q: %w", ts, err)
		}
		t.EntryTime = entry
		t.Side = types.Side(side)
		t.Status = types.TradeStatus(status)

		if exitPrice.Valid {
			t.ExitPrice = &exitPrice.Float64
		}
		if exitTime.Valid {
			if et, err := parseTime(exitTime.String); err == nil {
				t.ExitTime = &et
			}
		}
		if pnl.Valid {
			t.PnL = &pnl.Float64
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
