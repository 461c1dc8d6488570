package store

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS markets (
		market_id       TEXT PRIMARY KEY,
		question        TEXT NOT NULL,
		category        TEXT NOT NULL DEFAULT '',
		yes_token_id    TEXT NOT NULL DEFAULT '',
		no_token_id     TEXT NOT NULL DEFAULT '',
		price_yes       REAL NOT NULL,
		price_no        REAL NOT NULL,
		resolution_date TEXT,
		volume_24h      REAL,
		liquidity       REAL,
		archived        INTEGER NOT NULL DEFAULT 0,
		active          INTEGER NOT NULL DEFAULT 1,
		closed          INTEGER NOT NULL DEFAULT 0,
		updated_at      TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS predictions (
		id                TEXT PRIMARY KEY,
		market_id         TEXT NOT NULL REFERENCES markets(market_id),
		prediction_time   TEXT NOT NULL,
		model_probability REAL NOT NULL,
		market_price      REAL NOT NULL,
		edge              REAL NOT NULL,
		confidence        REAL NOT NULL,
		UNIQUE (market_id, prediction_time)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_time ON predictions (prediction_time DESC)`,

	`CREATE TABLE IF NOT EXISTS signals (
		id             TEXT PRIMARY KEY,
		prediction_id  TEXT NOT NULL REFERENCES predictions(id),
		market_id      TEXT NOT NULL REFERENCES markets(market_id),
		created_at     TEXT NOT NULL,
		side           TEXT NOT NULL CHECK (side IN ('YES', 'NO')),
		strength       TEXT NOT NULL CHECK (strength IN ('WEAK', 'MEDIUM', 'STRONG')),
		suggested_size REAL NOT NULL,
		executed       INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_created ON signals (created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS trades (
		id            TEXT PRIMARY KEY,
		signal_id     TEXT NOT NULL REFERENCES signals(id),
		market_id     TEXT NOT NULL REFERENCES markets(market_id),
		side          TEXT NOT NULL CHECK (side IN ('YES', 'NO')),
		entry_price   REAL NOT NULL,
		size          REAL NOT NULL,
		entry_time    TEXT NOT NULL,
		exit_price    REAL,
		exit_time     TEXT,
		pnl           REAL,
		status        TEXT NOT NULL CHECK (status IN ('OPEN', 'CLOSED', 'CANCELLED')),
		paper_trading INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_entry ON trades (entry_time DESC)`,

	`CREATE TABLE IF NOT EXISTS portfolio_snapshots (
		id              TEXT PRIMARY KEY,
		snapshot_time   TEXT NOT NULL,
		total_value     REAL NOT NULL,
		cash            REAL NOT NULL,
		positions_value REAL NOT NULL,
		total_exposure  REAL NOT NULL,
		daily_pnl       REAL NOT NULL,
		unrealized_pnl  REAL NOT NULL,
		realized_pnl    REAL NOT NULL,
		paper_trading   INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_time ON portfolio_snapshots (snapshot_time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_paper_time ON portfolio_snapshots (paper_trading, snapshot_time DESC)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
