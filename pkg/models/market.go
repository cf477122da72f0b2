package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot is an ephemeral per-tick view of a symbol's price.
// Bid/ask may be zero when the feed does not carry them.
type MarketSnapshot struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	BidPrice  decimal.Decimal `json:"bidPrice"`
	AskPrice  decimal.Decimal `json:"askPrice"`
	Timestamp time.Time       `json:"timestamp"`
}

// TradeConfig is the singleton risk configuration. It is mutated only through
// the administrative interface; this process treats it as read-only.
type TradeConfig struct {
	MaxTradeQuote    decimal.Decimal `json:"maxTradeQuote"`
	MaxPositionQuote decimal.Decimal `json:"maxPositionQuote"`
	AutoTrade        bool            `json:"autoTrade"`
	StopLossPct      decimal.Decimal `json:"stopLossPct"`
	TakeProfitPct    decimal.Decimal `json:"takeProfitPct"`
	MaxSlippagePct   decimal.Decimal `json:"maxSlippagePct"`
}
