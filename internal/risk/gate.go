package risk

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cwarner/sniper/internal/metrics"
	"github.com/cwarner/sniper/internal/repository"
	"github.com/cwarner/sniper/pkg/models"
)

// Rejection reasons, stable identifiers for the audit trail.
const (
	ReasonConfigMissing     = "config_missing"
	ReasonAutoTradeDisabled = "auto_trade_disabled"
	ReasonMaxTradeAmount    = "exceeds_max_trade_amount"
	ReasonMaxPositionAmount = "exceeds_max_position_amount"
	ReasonCheckError        = "risk_check_error"
)

const exposureWindow = 24 * time.Hour

type store interface {
	GetTradeConfig(ctx context.Context) (*models.TradeConfig, error)
	LiveFilledExposure(ctx context.Context, since time.Time) (decimal.Decimal, error)
}

// Decision is an explicit tagged result. Callers cannot forget the rejection
// path the way they could with a thrown error.
type Decision struct {
	Approved bool
	Reason   string
}

func approve() Decision { return Decision{Approved: true} }

func reject(reason string) Decision {
	metrics.RiskRejected(reason)
	return Decision{Reason: reason}
}

// Gate evaluates a candidate trade against configured and rolling-window
// limits. Rules run in a fixed order and the first failure wins, so rejection
// reasons are deterministic and debuggable.
type Gate struct {
	store  store
	logger *logrus.Logger
}

func NewGate(store store, logger *logrus.Logger) *Gate {
	return &Gate{store: store, logger: logger}
}

// Check never returns an error: any internal failure is converted to a safe
// rejection. A failed risk check is always "no trade", never an exception.
func (g *Gate) Check(ctx context.Context, symbol string, quoteAmount decimal.Decimal) Decision {
	cfg, err := g.store.GetTradeConfig(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrConfigMissing) {
			return reject(ReasonConfigMissing)
		}
		g.logger.WithError(err).WithField("symbol", symbol).Warn("Risk check could not load config")
		return reject(ReasonCheckError)
	}

	metrics.SetAutoTrade(cfg.AutoTrade)

	if !cfg.AutoTrade {
		g.logger.WithField("symbol", symbol).Info("Trade rejected: auto-trade disabled")
		return reject(ReasonAutoTradeDisabled)
	}

	if quoteAmount.GreaterThan(cfg.MaxTradeQuote) {
		g.logger.WithFields(logrus.Fields{
			"symbol":      symbol,
			"quoteAmount": quoteAmount,
			"maxTrade":    cfg.MaxTradeQuote,
		}).Info("Trade rejected: exceeds max trade amount")
		return reject(ReasonMaxTradeAmount)
	}

	exposure, err := g.store.LiveFilledExposure(ctx, time.Now().Add(-exposureWindow))
	if err != nil {
		g.logger.WithError(err).WithField("symbol", symbol).Warn("Risk check could not load exposure")
		return reject(ReasonCheckError)
	}

	if exposure.Add(quoteAmount).GreaterThan(cfg.MaxPositionQuote) {
		g.logger.WithFields(logrus.Fields{
			"symbol":      symbol,
			"exposure":    exposure,
			"quoteAmount": quoteAmount,
			"maxPosition": cfg.MaxPositionQuote,
		}).Info("Trade rejected: exceeds max position amount")
		return reject(ReasonMaxPositionAmount)
	}

	return approve()
}
