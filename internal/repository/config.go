package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cwarner/sniper/pkg/models"
)

// GetTradeConfig reads the singleton risk configuration row. Returns
// ErrConfigMissing when the row has never been seeded.
func (s *Store) GetTradeConfig(ctx context.Context) (*models.TradeConfig, error) {
	var cfg models.TradeConfig
	err := s.pool.QueryRow(ctx, `
		SELECT max_trade_quote, max_position_quote, auto_trade,
		       stop_loss_pct, take_profit_pct, max_slippage_pct
		FROM trade_config
		WHERE id = 1
	`).Scan(&cfg.MaxTradeQuote, &cfg.MaxPositionQuote, &cfg.AutoTrade,
		&cfg.StopLossPct, &cfg.TakeProfitPct, &cfg.MaxSlippagePct)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConfigMissing
	}
	if err != nil {
		return nil, fmt.Errorf("get trade config: %w", err)
	}
	return &cfg, nil
}
