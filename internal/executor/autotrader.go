package executor

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cwarner/sniper/pkg/models"
)

// AutoTrader bridges listing detection to execution: every new listing event
// becomes one buy attempt sized by the configured snipe amount. The risk gate
// inside the executor still has the final say.
type AutoTrader struct {
	executor    *Executor
	quoteAmount decimal.Decimal
	logger      *logrus.Logger
}

func NewAutoTrader(executor *Executor, quoteAmount decimal.Decimal, logger *logrus.Logger) *AutoTrader {
	return &AutoTrader{
		executor:    executor,
		quoteAmount: quoteAmount,
		logger:      logger,
	}
}

// Run consumes listing events until the channel closes or the context ends.
// Execution failures are logged and do not stop the loop; the next listing
// still gets its attempt.
func (a *AutoTrader) Run(ctx context.Context, listings <-chan models.NewListing) {
	for {
		select {
		case <-ctx.Done():
			return
		case listing, ok := <-listings:
			if !ok {
				return
			}
			a.snipe(ctx, listing)
		}
	}
}

func (a *AutoTrader) snipe(ctx context.Context, listing models.NewListing) {
	a.logger.WithFields(logrus.Fields{
		"symbol":    listing.Symbol,
		"listingId": listing.ListingID,
		"source":    listing.Source,
	}).Info("Sniping new listing")

	result, err := a.executor.Execute(ctx, Request{
		Symbol:      listing.Symbol,
		Side:        models.SideBuy,
		QuoteAmount: a.quoteAmount,
		RefPrice:    listing.Price,
	})
	if err != nil {
		a.logger.WithError(err).WithField("symbol", listing.Symbol).Error("Snipe attempt failed")
		return
	}

	a.logger.WithFields(logrus.Fields{
		"symbol":  listing.Symbol,
		"tradeId": result.TradeID,
		"status":  result.Status,
		"mode":    result.Mode,
	}).Info("Snipe attempt complete")
}
