package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"polymarket-pred/pkg/types"
)

// InsertPrediction appends a prediction row inside tx. A second prediction
// for the same market in the same second violates the unique index and is
// reported as types.ErrDuplicatePrediction so the caller can roll back.
func (s *Store) InsertPrediction(ctx context.Context, tx *sql.Tx, p types.Prediction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO predictions (
			id, market_id, prediction_time, model_probability,
			market_price, edge, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MarketID, formatTime(p.PredictionTime), p.ModelProbability,
		p.MarketPrice, p.Edge, p.Confidence,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("market %s at %s: %w",
				p.MarketID, formatTime(p.PredictionTime), types.ErrDuplicatePrediction)
		}
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

// ListPredictions returns recent predictions, newest first, restricted to
// markets the 30-day cutoff still admits.
func (s *Store) ListPredictions(ctx context.Context, marketID string, limit int) ([]types.Prediction, error) {
	query := `
		SELECT p.id, p.market_id, p.prediction_time, p.model_probability,
		       p.market_price, p.edge, p.confidence
		FROM predictions p
		JOIN markets m ON m.market_id = p.market_id
		WHERE m.archived = 0
		  AND (m.resolution_date IS NULL OR m.resolution_date >= ?)`
	args := []any{formatTime(nowMinusCutoff())}

	if marketID != "" {
		query += ` AND p.market_id = ?`
		args = append(args, marketID)
	}
	query += ` ORDER BY p.prediction_time DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var out []types.Prediction
	for rows.Next() {
		var (
			p  types.Prediction
			ts string
		)
		if err := rows.Scan(&p.ID, &p.MarketID, &ts, &p.ModelProbability,
			&p.MarketPrice, &p.Edge, &p.Confidence); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		if p.PredictionTime, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse prediction_time %q: %w", ts, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
