package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"polymarket-pred/pkg/types"
)

// marketCutoff mirrors the discovery filter: a market that ended more than 30
// days ago is excluded from reads, so stored history never resurfaces stale
// markets the pipeline would no longer consider.
const marketCutoff = 30 * 24 * time.Hour

// nowMinusCutoff is the oldest resolution date reads still admit.
func nowMinusCutoff() time.Time {
	return time.Now().Add(-marketCutoff)
}

// UpsertMarket inserts or refreshes a market snapshot inside tx.
func (s *Store) UpsertMarket(ctx context.Context, tx *sql.Tx, m types.Market) error {
	return upsertMarket(ctx, tx, m)
}

func upsertMarket(ctx context.Context, q querier, m types.Market) error {
	var resolution any
	if m.ResolutionDate != nil {
		resolution = formatTime(*m.ResolutionDate)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO markets (
			market_id, question, category, yes_token_id, no_token_id,
			price_yes, price_no, resolution_date, volume_24h, liquidity,
			archived, active, closed, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (market_id) DO UPDATE SET
			question        = excluded.question,
			category        = excluded.category,
			yes_token_id    = excluded.yes_token_id,
			no_token_id     = excluded.no_token_id,
			price_yes       = excluded.price_yes,
			price_no        = excluded.price_no,
			resolution_date = excluded.resolution_date,
			volume_24h      = excluded.volume_24h,
			liquidity       = excluded.liquidity,
			archived        = excluded.archived,
			active          = excluded.active,
			closed          = excluded.closed,
			updated_at      = excluded.updated_at`,
		m.MarketID, m.Question, m.Category, m.YesTokenID, m.NoTokenID,
		m.PriceYes, m.PriceNo, resolution, m.Volume24h, m.Liquidity,
		m.Archived, m.Active, m.Closed, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert market %s: %w", m.MarketID, err)
	}
	return nil
}

// GetMarket fetches one market by ID. Returns (nil, nil) when absent.
func (s *Store) GetMarket(ctx context.Context, marketID string) (*types.Market, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT market_id, question, category, yes_token_id, no_token_id,
		       price_yes, price_no, resolution_date, volume_24h, liquidity,
		       archived, active, closed
		FROM markets WHERE market_id = ?`, marketID)

	m, err := scanMarket(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", marketID, err)
	}
	return &m, nil
}

// ListMarkets returns unarchived markets whose resolution date is unknown or
// within the last 30 days, newest update first.
func (s *Store) ListMarkets(ctx context.Context, limit int) ([]types.Market, error) {
	cutoff := formatTime(nowMinusCutoff())

	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, question, category, yes_token_id, no_token_id,
		       price_yes, price_no, resolution_date, volume_24h, liquidity,
		       archived, active, closed
		FROM markets
		WHERE archived = 0
		  AND (resolution_date IS NULL OR resolution_date >= ?)
		ORDER BY updated_at DESC
		LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	defer rows.Close()

	var out []types.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMarket(sc scanner) (types.Market, error) {
	var (
		m          types.Market
		resolution sql.NullString
		volume     sql.NullFloat64
		liquidity  sql.NullFloat64
	)
	err := sc.Scan(
		&m.MarketID, &m.Question, &m.Category, &m.YesTokenID, &m.NoTokenID,
		&m.PriceYes, &m.PriceNo, &resolution, &volume, &liquidity,
		&m.Archived, &m.Active, &m.Closed,
	)
	if err != nil {
		return types.Market{}, err
	}

	if resolution.Valid {
		if t, perr := parseTime(resolution.String); perr == nil {
			m.ResolutionDate = &t
		}
	}
	if volume.Valid {
		m.Volume24h = &volume.Float64
	}
	if liquidity.Valid {
		m.Liquidity = &liquidity.Float64
	}
	return m, nil
}
