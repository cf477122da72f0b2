package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwarner/sniper/internal/executor"
	"github.com/cwarner/sniper/internal/metrics"
	"github.com/cwarner/sniper/pkg/models"
)

type store interface {
	OpenPositionsBySymbol(ctx context.Context, symbol string) ([]models.Position, error)
}

type trader interface {
	Execute(ctx context.Context, req executor.Request) (*models.TradeResult, error)
}

// Status is a snapshot of monitor activity for the status endpoint.
type Status struct {
	Running         bool      `json:"running"`
	LastSnapshotAt  time.Time `json:"lastSnapshotAt"`
	SnapshotsSeen   int64     `json:"snapshotsSeen"`
	ClosesTriggered int64     `json:"closesTriggered"`
}

// Monitor supervises open positions. Each market snapshot is checked against
// the stop-loss and take-profit thresholds of any open position for that
// symbol; a breach triggers a closing sell through the orchestrator. A failed
// close leaves the position open, so the next snapshot retries it naturally.
type Monitor struct {
	store  store
	trader trader
	logger *logrus.Logger

	mu     sync.Mutex
	status Status
}

func New(store store, trader trader, logger *logrus.Logger) *Monitor {
	return &Monitor{store: store, trader: trader, logger: logger}
}

// Run consumes snapshots until the channel closes or the context ends.
func (m *Monitor) Run(ctx context.Context, snapshots <-chan models.MarketSnapshot) {
	m.setRunning(true)
	defer m.setRunning(false)

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			m.observe(snap)
			m.evaluate(ctx, snap)
		}
	}
}

// Status returns a copy of the current monitor counters.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) setRunning(running bool) {
	m.mu.Lock()
	m.status.Running = running
	m.mu.Unlock()
}

func (m *Monitor) observe(snap models.MarketSnapshot) {
	m.mu.Lock()
	m.status.LastSnapshotAt = snap.Timestamp
	m.status.SnapshotsSeen++
	m.mu.Unlock()
}

func (m *Monitor) evaluate(ctx context.Context, snap models.MarketSnapshot) {
	positions, err := m.store.OpenPositionsBySymbol(ctx, snap.Symbol)
	if err != nil {
		m.logger.WithError(err).WithField("symbol", snap.Symbol).Warn("Failed to load open positions")
		return
	}

	for _, pos := range positions {
		reason, breached := breach(pos, snap)
		if !breached {
			continue
		}
		m.close(ctx, pos, snap, reason)
	}
}

// breach checks thresholds inclusively: touching the stop-loss or take-profit
// price is enough to trigger.
func breach(pos models.Position, snap models.MarketSnapshot) (models.CloseReason, bool) {
	if snap.Price.LessThanOrEqual(pos.StopLossPrice) {
		return models.CloseStopLoss, true
	}
	if snap.Price.GreaterThanOrEqual(pos.TakeProfitPrice) {
		return models.CloseTakeProfit, true
	}
	return "", false
}

func (m *Monitor) close(ctx context.Context, pos models.Position, snap models.MarketSnapshot, reason models.CloseReason) {
	m.logger.WithFields(logrus.Fields{
		"positionId": pos.ID,
		"symbol":     pos.Symbol,
		"price":      snap.Price,
		"reason":     reason,
	}).Info("Position threshold breached, closing")

	result, err := m.trader.Execute(ctx, executor.Request{
		Symbol:   pos.Symbol,
		Side:     models.SideSell,
		Quantity: pos.Quantity,
		RefPrice: snap.Price,
	})
	if err != nil {
		m.logger.WithError(err).WithField("positionId", pos.ID).Error("Close attempt failed, will retry on next snapshot")
		return
	}
	if result.Status != models.TradeStatusFilled {
		m.logger.WithFields(logrus.Fields{
			"positionId": pos.ID,
			"status":     result.Status,
			"reason":     result.RejectReason,
		}).Warn("Close attempt not filled, will retry on next snapshot")
		return
	}

	metrics.PositionClosed(string(reason))

	m.mu.Lock()
	m.status.ClosesTriggered++
	m.mu.Unlock()
}
