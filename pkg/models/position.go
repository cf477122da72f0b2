package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// CloseReason names the threshold that triggered a position close.
type CloseReason string

const (
	CloseStopLoss   CloseReason = "stop-loss"
	CloseTakeProfit CloseReason = "take-profit"
)

// Position is a long exposure opened by a buy fill and closed exactly once
// by a matching sell fill. At most one open position per symbol.
type Position struct {
	ID              int64           `json:"id"`
	TradeID         int64           `json:"tradeId"`
	Symbol          string          `json:"symbol"`
	Status          PositionStatus  `json:"status"`
	EntryPrice      decimal.Decimal `json:"entryPrice"`
	Quantity        decimal.Decimal `json:"quantity"`
	StopLossPrice   decimal.Decimal `json:"stopLossPrice"`
	TakeProfitPrice decimal.Decimal `json:"takeProfitPrice"`
	ExitPrice       decimal.Decimal `json:"exitPrice"`
	RealizedPnl     decimal.Decimal `json:"realizedPnl"`
	PnlPct          decimal.Decimal `json:"pnlPct"`
	OpenedAt        time.Time       `json:"openedAt"`
	ClosedAt        *time.Time      `json:"closedAt,omitempty"`
}
