package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cwarner/sniper/pkg/models"
)

// InsertTrade persists one execution attempt and returns its id.
func (s *Store) InsertTrade(ctx context.Context, t *models.Trade) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO trades (symbol, side, quote_amount, base_filled, mode, status,
		                    reject_reason, exchange_order_id, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, t.Symbol, t.Side, t.QuoteAmount, t.BaseFilled, t.Mode, t.Status,
		t.RejectReason, t.ExchangeOrderID, t.LatencyMs).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	return id, nil
}

// LiveFilledExposure sums quote amounts of live filled trades created after
// the cutoff. This is the rolling-window exposure the risk gate checks.
func (s *Store) LiveFilledExposure(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(quote_amount), 0)
		FROM trades
		WHERE mode = $1 AND status = $2 AND created_at > $3
	`, models.ModeLive, models.TradeStatusFilled, since).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum live exposure: %w", err)
	}
	return total, nil
}

// TradeFilter narrows the trade history query. Zero values mean no filter.
type TradeFilter struct {
	Mode   models.TradeMode
	Status models.TradeStatus
	Limit  int
	Offset int
}

// TradeHistory returns trades newest first, plus the total matching count.
func (s *Store) TradeHistory(ctx context.Context, f TradeFilter) ([]models.Trade, int64, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	where := "WHERE ($1 = '' OR mode = $1) AND ($2 = '' OR status = $2)"
	rows, err := s.pool.Query(ctx, `
		SELECT id, symbol, side, quote_amount, base_filled, mode, status,
		       COALESCE(reject_reason, ''), COALESCE(exchange_order_id, ''),
		       latency_ms, created_at
		FROM trades `+where+`
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, string(f.Mode), string(f.Status), limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("trade history: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &t.QuoteAmount, &t.BaseFilled,
			&t.Mode, &t.Status, &t.RejectReason, &t.ExchangeOrderID,
			&t.LatencyMs, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trades `+where,
		string(f.Mode), string(f.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count trades: %w", err)
	}

	return trades, total, nil
}
