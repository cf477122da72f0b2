package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cwarner/sniper/internal/metrics"
	"github.com/cwarner/sniper/internal/repository"
	"github.com/cwarner/sniper/internal/risk"
	"github.com/cwarner/sniper/pkg/mexc"
	"github.com/cwarner/sniper/pkg/models"
)

// Reasons terminal to the orchestrator itself (the risk gate has its own).
const (
	ReasonSlippageExceeded    = "slippage_exceeded"
	ReasonPositionAlreadyOpen = "position_already_open"
)

var hundred = decimal.NewFromInt(100)

type exchange interface {
	PlaceMarketOrder(ctx context.Context, order mexc.OrderRequest) (*mexc.OrderResponse, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

type store interface {
	InsertTrade(ctx context.Context, t *models.Trade) (int64, error)
	GetTradeConfig(ctx context.Context) (*models.TradeConfig, error)
	OpenPosition(ctx context.Context, p *models.Position) (int64, error)
	OldestOpenPosition(ctx context.Context, symbol string) (*models.Position, error)
	ClosePosition(ctx context.Context, id int64, exitPrice, realizedPnl, pnlPct decimal.Decimal) (bool, error)
}

type gate interface {
	Check(ctx context.Context, symbol string, quoteAmount decimal.Decimal) risk.Decision
}

// Request describes one execution attempt. Buys are sized by QuoteAmount;
// sells carry the position's full Quantity. RefPrice is the best available
// pre-trade reference (bid for buys, ask for sells) used for slippage
// validation and simulated fills; zero skips both.
type Request struct {
	Symbol      string
	Side        models.TradeSide
	QuoteAmount decimal.Decimal
	Quantity    decimal.Decimal
	RefPrice    decimal.Decimal
}

// Executor resolves execution mode, calls the exchange, persists the outcome
// and maintains position records. Every code path writes exactly one Trade
// row; rejections are audited, never silently dropped.
type Executor struct {
	store    store
	gate     gate
	exchange exchange
	logger   *logrus.Logger

	// liveDisabled is set when credentials fail validation, at startup or
	// on an auth error from the exchange. Live requests then downgrade to
	// simulated until the process restarts with valid credentials.
	liveDisabled atomic.Bool

	mu      sync.Mutex
	symLock map[string]*sync.Mutex
}

func New(store store, gate gate, exchange exchange, logger *logrus.Logger) *Executor {
	return &Executor{
		store:    store,
		gate:     gate,
		exchange: exchange,
		logger:   logger,
		symLock:  make(map[string]*sync.Mutex),
	}
}

// DisableLive downgrades all further live attempts to simulated.
func (e *Executor) DisableLive(reason string) {
	if e.liveDisabled.CompareAndSwap(false, true) {
		e.logger.WithField("reason", reason).Warn("Live trading disabled")
	}
}

func (e *Executor) LiveEnabled() bool {
	return !e.liveDisabled.Load()
}

// lockSymbol serializes position transitions per symbol so a concurrent
// open and close for the same symbol cannot both observe the old state.
func (e *Executor) lockSymbol(symbol string) func() {
	e.mu.Lock()
	l, ok := e.symLock[symbol]
	if !ok {
		l = &sync.Mutex{}
		e.symLock[symbol] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Execute runs the full pipeline for one trade attempt.
func (e *Executor) Execute(ctx context.Context, req Request) (*models.TradeResult, error) {
	start := time.Now()
	unlock := e.lockSymbol(req.Symbol)
	defer unlock()

	decision := e.gate.Check(ctx, req.Symbol, req.QuoteAmount)
	if !decision.Approved {
		return e.record(ctx, req, models.ModeSimulated, models.TradeStatusRejected,
			decision.Reason, decimal.Zero, "", start)
	}

	if req.Side == models.SideBuy {
		if _, err := e.store.OldestOpenPosition(ctx, req.Symbol); err == nil {
			return e.record(ctx, req, models.ModeSimulated, models.TradeStatusRejected,
				ReasonPositionAlreadyOpen, decimal.Zero, "", start)
		} else if !errors.Is(err, repository.ErrNoOpenPosition) {
			return e.record(ctx, req, models.ModeSimulated, models.TradeStatusFailed,
				err.Error(), decimal.Zero, "", start)
		}
	}

	cfg, err := e.store.GetTradeConfig(ctx)
	if err != nil {
		return e.record(ctx, req, models.ModeSimulated, models.TradeStatusFailed,
			err.Error(), decimal.Zero, "", start)
	}

	mode := models.ModeSimulated
	if cfg.AutoTrade && e.LiveEnabled() {
		mode = models.ModeLive
	}

	if mode == models.ModeSimulated {
		return e.executeSimulated(ctx, req, cfg, start)
	}
	return e.executeLive(ctx, req, cfg, start)
}

// executeSimulated fills immediately with no exchange call, pricing off the
// reference price so the rest of the pipeline can be validated end to end.
func (e *Executor) executeSimulated(ctx context.Context, req Request, cfg *models.TradeConfig, start time.Time) (*models.TradeResult, error) {
	baseFilled := req.Quantity
	if req.Side == models.SideBuy && !req.RefPrice.IsZero() {
		baseFilled = req.QuoteAmount.Div(req.RefPrice)
	}

	result, err := e.record(ctx, req, models.ModeSimulated, models.TradeStatusFilled,
		"", baseFilled, "", start)
	if err != nil {
		return nil, err
	}

	if !req.RefPrice.IsZero() {
		e.settlePosition(ctx, req, cfg, result.TradeID, req.RefPrice, baseFilled)
	}
	return result, nil
}

func (e *Executor) executeLive(ctx context.Context, req Request, cfg *models.TradeConfig, start time.Time) (*models.TradeResult, error) {
	order := mexc.OrderRequest{
		Symbol:        req.Symbol,
		ClientOrderID: uuid.NewString(),
	}
	if req.Side == models.SideBuy {
		order.Side = mexc.OrderSideBuy
		order.QuoteOrderQty = req.QuoteAmount
	} else {
		order.Side = mexc.OrderSideSell
		order.Quantity = req.Quantity
	}

	resp, err := e.exchange.PlaceMarketOrder(ctx, order)
	if err != nil {
		if errors.Is(err, mexc.ErrAuth) {
			e.DisableLive("exchange authentication failure")
		}
		return e.record(ctx, req, models.ModeLive, models.TradeStatusFailed,
			err.Error(), decimal.Zero, "", start)
	}

	fillPrice := resp.Price
	if fillPrice.IsZero() && !resp.ExecutedQty.IsZero() {
		fillPrice = resp.CummulativeQuoteQty.Div(resp.ExecutedQty)
	}

	if excessive, slip := e.slippageExceeded(req, cfg, fillPrice); excessive {
		// Best effort: a market fill may already be settled, in which
		// case the cancel fails harmlessly. The slippage violation is
		// reported either way.
		if cancelErr := e.exchange.CancelOrder(ctx, req.Symbol, resp.OrderID); cancelErr != nil {
			e.logger.WithError(cancelErr).WithField("orderId", resp.OrderID).
				Warn("Cancel after slippage violation failed")
		}
		e.logger.WithFields(logrus.Fields{
			"symbol":      req.Symbol,
			"slippagePct": slip,
			"maxSlippage": cfg.MaxSlippagePct,
		}).Warn("Trade rejected: slippage exceeded")
		return e.record(ctx, req, models.ModeLive, models.TradeStatusRejected,
			ReasonSlippageExceeded, resp.ExecutedQty, resp.OrderID, start)
	}

	result, err := e.record(ctx, req, models.ModeLive, models.TradeStatusFilled,
		"", resp.ExecutedQty, resp.OrderID, start)
	if err != nil {
		return nil, err
	}

	e.settlePosition(ctx, req, cfg, result.TradeID, fillPrice, resp.ExecutedQty)
	return result, nil
}

// slippageExceeded compares the fill against the pre-trade reference in the
// adverse direction for the request side.
func (e *Executor) slippageExceeded(req Request, cfg *models.TradeConfig, fillPrice decimal.Decimal) (bool, decimal.Decimal) {
	if req.RefPrice.IsZero() || cfg.MaxSlippagePct.IsZero() || fillPrice.IsZero() {
		return false, decimal.Zero
	}
	var slip decimal.Decimal
	if req.Side == models.SideBuy {
		slip = fillPrice.Sub(req.RefPrice).Div(req.RefPrice).Mul(hundred)
	} else {
		slip = req.RefPrice.Sub(fillPrice).Div(req.RefPrice).Mul(hundred)
	}
	return slip.GreaterThan(cfg.MaxSlippagePct), slip
}

// settlePosition opens a position after a buy fill or closes the oldest open
// position after a sell fill.
func (e *Executor) settlePosition(ctx context.Context, req Request, cfg *models.TradeConfig, tradeID int64, fillPrice, baseFilled decimal.Decimal) {
	if req.Side == models.SideBuy {
		if fillPrice.IsZero() || baseFilled.IsZero() {
			e.logger.WithField("tradeId", tradeID).Warn("Buy fill without price or quantity, no position opened")
			return
		}
		slFrac := decimal.NewFromInt(1).Sub(cfg.StopLossPct.Div(hundred))
		tpFrac := decimal.NewFromInt(1).Add(cfg.TakeProfitPct.Div(hundred))
		pos := &models.Position{
			TradeID:         tradeID,
			Symbol:          req.Symbol,
			EntryPrice:      fillPrice,
			Quantity:        baseFilled,
			StopLossPrice:   fillPrice.Mul(slFrac),
			TakeProfitPrice: fillPrice.Mul(tpFrac),
		}
		id, err := e.store.OpenPosition(ctx, pos)
		if err != nil {
			e.logger.WithError(err).WithField("tradeId", tradeID).Error("Failed to open position")
			return
		}
		e.logger.WithFields(logrus.Fields{
			"positionId": id,
			"symbol":     req.Symbol,
			"entryPrice": fillPrice,
			"stopLoss":   pos.StopLossPrice,
			"takeProfit": pos.TakeProfitPrice,
		}).Info("Position opened")
		return
	}

	pos, err := e.store.OldestOpenPosition(ctx, req.Symbol)
	if err != nil {
		e.logger.WithError(err).WithField("symbol", req.Symbol).Warn("Sell fill with no open position")
		return
	}

	realizedPnl := fillPrice.Sub(pos.EntryPrice).Mul(pos.Quantity)
	pnlPct := fillPrice.Sub(pos.EntryPrice).Div(pos.EntryPrice).Mul(hundred)

	closed, err := e.store.ClosePosition(ctx, pos.ID, fillPrice, realizedPnl, pnlPct)
	if err != nil {
		e.logger.WithError(err).WithField("positionId", pos.ID).Error("Failed to close position")
		return
	}
	if !closed {
		e.logger.WithField("positionId", pos.ID).Warn("Position already closed by concurrent update")
		return
	}
	e.logger.WithFields(logrus.Fields{
		"positionId":  pos.ID,
		"symbol":      req.Symbol,
		"exitPrice":   fillPrice,
		"realizedPnl": realizedPnl,
		"pnlPct":      pnlPct,
	}).Info("Position closed")
}

// record persists the single Trade row for this attempt and builds the result.
func (e *Executor) record(ctx context.Context, req Request, mode models.TradeMode, status models.TradeStatus, reason string, baseFilled decimal.Decimal, exchangeOrderID string, start time.Time) (*models.TradeResult, error) {
	latencyMs := time.Since(start).Milliseconds()

	trade := &models.Trade{
		Symbol:          req.Symbol,
		Side:            req.Side,
		QuoteAmount:     req.QuoteAmount,
		BaseFilled:      baseFilled,
		Mode:            mode,
		Status:          status,
		RejectReason:    reason,
		ExchangeOrderID: exchangeOrderID,
		LatencyMs:       latencyMs,
	}
	id, err := e.store.InsertTrade(ctx, trade)
	if err != nil {
		e.logger.WithError(err).WithField("symbol", req.Symbol).Error("Failed to persist trade")
		return nil, err
	}

	metrics.TradeRecorded(string(mode), string(status), latencyMs)

	e.logger.WithFields(logrus.Fields{
		"tradeId":   id,
		"symbol":    req.Symbol,
		"side":      req.Side,
		"mode":      mode,
		"status":    status,
		"reason":    reason,
		"latencyMs": latencyMs,
	}).Info("Trade recorded")

	return &models.TradeResult{
		TradeID:      id,
		Status:       status,
		Mode:         mode,
		BaseFilled:   baseFilled,
		LatencyMs:    latencyMs,
		RejectReason: reason,
	}, nil
}
