package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

type TradeMode string

const (
	ModeSimulated TradeMode = "simulated"
	ModeLive      TradeMode = "live"
)

type TradeStatus string

const (
	TradeStatusFilled   TradeStatus = "filled"
	TradeStatusRejected TradeStatus = "rejected"
	TradeStatusFailed   TradeStatus = "failed"
	TradeStatusPending  TradeStatus = "pending"
)

// Trade is the audit record of a single execution attempt. Every attempt,
// including rejections and failures, produces exactly one row.
type Trade struct {
	ID              int64           `json:"id"`
	Symbol          string          `json:"symbol"`
	Side            TradeSide       `json:"side"`
	QuoteAmount     decimal.Decimal `json:"quoteAmount"`
	BaseFilled      decimal.Decimal `json:"baseFilled"`
	Mode            TradeMode       `json:"mode"`
	Status          TradeStatus     `json:"status"`
	RejectReason    string          `json:"rejectReason,omitempty"`
	ExchangeOrderID string          `json:"exchangeOrderId,omitempty"`
	LatencyMs       int64           `json:"latencyMs"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// TradeResult is returned to callers of the execution pipeline.
type TradeResult struct {
	TradeID      int64           `json:"tradeId"`
	Status       TradeStatus     `json:"status"`
	Mode         TradeMode       `json:"mode"`
	BaseFilled   decimal.Decimal `json:"baseFilled"`
	LatencyMs    int64           `json:"latencyMs"`
	RejectReason string          `json:"rejectReason,omitempty"`
}
