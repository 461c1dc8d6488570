package store

import (
	"context"
	"database/sql"
	"fmt"

	"polymarket-pred/pkg/types"
)

// InsertSignal appends a signal row inside tx.
func (s *Store) InsertSignal(ctx context.Context, tx *sql.Tx, sig types.Signal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO signals (
			id, prediction_id, market_id, created_at,
			side, strength, suggested_size, executed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.PredictionID, sig.MarketID, formatTime(sig.CreatedAt),
		string(sig.Side), string(sig.Strength), sig.SuggestedSize, sig.Executed,
	)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// MarkSignalExecuted flips the executed flag. The only mutation signals
// ever receive.
func (s *Store) MarkSignalExecuted(ctx context.Context, tx *sql.Tx, signalID string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE signals SET executed = 1 WHERE id = ?`, signalID)
	if err != nil {
		return fmt.Errorf("mark signal executed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark signal executed: signal %s not found", signalID)
	}
	return nil
}

// ListSignals returns recent signals, newest first.
func (s *Store) ListSignals(ctx context.Context, marketID string, limit int) ([]types.Signal, error) {
	query := `
		SELECT id, prediction_id, market_id, created_at,
		       side, strength, suggested_size, executed
		FROM signals`
	var args []any
	if marketID != "" {
		query += ` WHERE market_id = ?`
		args = append(args, marketID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var out []types.Signal
	for rows.Next() {
		var (
			sig            types.Signal
			ts, side, strg string
		)
		if err := rows.Scan(&sig.ID, &sig.PredictionID, &sig.MarketID, &ts,
			&side, &strg, &sig.SuggestedSize, &sig.Executed); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		if sig.CreatedAt, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", ts, err)
		}
		sig.Side = types.Side(side)
		sig.Strength = types.Strength(strg)
		out = append(out, sig)
	}
	return out, rows.Err()
}
