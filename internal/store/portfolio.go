package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"polymarket-pred/pkg/types"
)

// InsertSnapshot appends a portfolio snapshot inside tx.
func (s *Store) InsertSnapshot(ctx context.Context, tx *sql.Tx, snap types.PortfolioSnapshot) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO portfolio_snapshots (
			id, snapshot_time, total_value, cash, positions_value,
			total_exposure, daily_pnl, unrealized_pnl, realized_pnl,
			paper_trading
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, formatTime(snap.SnapshotTime), snap.TotalValue, snap.Cash,
		snap.PositionsValue, snap.TotalExposure, snap.DailyPnL,
		snap.UnrealizedPnL, snap.RealizedPnL, snap.PaperTrading,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the newest snapshot for the trading mode, or
// (nil, nil) when none exists yet.
func (s *Store) LatestSnapshot(ctx context.Context, paperTrading bool) (*types.PortfolioSnapshot, error) {
	return latestSnapshot(ctx, s.db, paperTrading)
}

func latestSnapshot(ctx context.Context, q querier, paperTrading bool) (*types.PortfolioSnapshot, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, snapshot_time, total_value, cash, positions_value,
		       total_exposure, daily_pnl, unrealized_pnl, realized_pnl,
		       paper_trading
		FROM portfolio_snapshots
		WHERE paper_trading = ?
		ORDER BY snapshot_time DESC
		LIMIT 1`, paperTrading)

	var (
		snap types.PortfolioSnapshot
		ts   string
	)
	err := row.Scan(&snap.ID, &ts, &snap.TotalValue, &snap.Cash,
		&snap.PositionsValue, &snap.TotalExposure, &snap.DailyPnL,
		&snap.UnrealizedPnL, &snap.RealizedPnL, &snap.PaperTrading)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	if snap.SnapshotTime, err = parseTime(ts); err != nil {
		return nil, fmt.Errorf("parse snapshot_time %q: %w", ts, err)
	}
	return &snap, nil
}

// FirstSnapshotOfDay returns the earliest snapshot taken on the UTC day of t,
// or (nil, nil) when the day has none. Used as the daily pnl baseline.
func (s *Store) FirstSnapshotOfDay(ctx context.Context, tx *sql.Tx, paperTrading bool, t time.Time) (*types.PortfolioSnapshot, error) {
	dayStart := t.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	row := tx.QueryRowContext(ctx, `
		SELECT id, snapshot_time, total_value, cash, positions_value,
		       total_exposure, daily_pnl, unrealized_pnl, realized_pnl,
		       paper_trading
		FROM portfolio_snapshots
		WHERE paper_trading = ? AND snapshot_time >= ? AND snapshot_time < ?
		ORDER BY snapshot_time ASC
		LIMIT 1`, paperTrading, formatTime(dayStart), formatTime(dayEnd))

	var (
		snap types.PortfolioSnapshot
		ts   string
	)
	err := row.Scan(&snap.ID, &ts, &snap.TotalValue, &snap.Cash,
		&snap.PositionsValue, &snap.TotalExposure, &snap.DailyPnL,
		&snap.UnrealizedPnL, &snap.RealizedPnL, &snap.PaperTrading)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first snapshot of day: %w", err)
	}
	if snap.SnapshotTime, err = parseTime(ts); err != nil {
		return nil, fmt.Errorf("parse snapshot_time %q: %w", ts, err)
	}
	return &snap, nil
}
