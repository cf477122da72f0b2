package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cwarner/sniper/pkg/models"
)

// OpenPosition records a new open position created by a buy fill.
func (s *Store) OpenPosition(ctx context.Context, p *models.Position) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO positions (trade_id, symbol, status, entry_price, quantity,
		                       stop_loss_price, take_profit_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, p.TradeID, p.Symbol, models.PositionOpen, p.EntryPrice, p.Quantity,
		p.StopLossPrice, p.TakeProfitPrice).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("open position: %w", err)
	}
	return id, nil
}

// OpenPositionsBySymbol returns all open positions for a symbol, oldest first.
func (s *Store) OpenPositionsBySymbol(ctx context.Context, symbol string) ([]models.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, trade_id, symbol, status, entry_price, quantity,
		       stop_loss_price, take_profit_price, opened_at
		FROM positions
		WHERE symbol = $1 AND status = $2
		ORDER BY opened_at ASC
	`, symbol, models.PositionOpen)
	if err != nil {
		return nil, fmt.Errorf("open positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.ID, &p.TradeID, &p.Symbol, &p.Status, &p.EntryPrice,
			&p.Quantity, &p.StopLossPrice, &p.TakeProfitPrice, &p.OpenedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// OldestOpenPosition returns the oldest open position for a symbol, or
// ErrNoOpenPosition.
func (s *Store) OldestOpenPosition(ctx context.Context, symbol string) (*models.Position, error) {
	var p models.Position
	err := s.pool.QueryRow(ctx, `
		SELECT id, trade_id, symbol, status, entry_price, quantity,
		       stop_loss_price, take_profit_price, opened_at
		FROM positions
		WHERE symbol = $1 AND status = $2
		ORDER BY opened_at ASC
		LIMIT 1
	`, symbol, models.PositionOpen).Scan(&p.ID, &p.TradeID, &p.Symbol, &p.Status,
		&p.EntryPrice, &p.Quantity, &p.StopLossPrice, &p.TakeProfitPrice, &p.OpenedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoOpenPosition
	}
	if err != nil {
		return nil, fmt.Errorf("oldest open position: %w", err)
	}
	return &p, nil
}

// ClosePosition marks an open position closed exactly once. The conditional
// update on status guards the one-open-position invariant against a
// concurrent close: the second caller sees false.
func (s *Store) ClosePosition(ctx context.Context, id int64, exitPrice, realizedPnl, pnlPct decimal.Decimal) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE positions
		SET status = $2, exit_price = $3, realized_pnl = $4, pnl_pct = $5, closed_at = NOW()
		WHERE id = $1 AND status = $6
	`, id, models.PositionClosed, exitPrice, realizedPnl, pnlPct, models.PositionOpen)
	if err != nil {
		return false, fmt.Errorf("close position: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
