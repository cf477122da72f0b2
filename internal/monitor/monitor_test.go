package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cwarner/sniper/internal/executor"
	"github.com/cwarner/sniper/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type mockPositionStore struct {
	mu        sync.Mutex
	positions map[string][]models.Position
	err       error
}

func (m *mockPositionStore) OpenPositionsBySymbol(_ context.Context, symbol string) ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.positions[symbol], nil
}

func (m *mockPositionStore) remove(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, symbol)
}

type mockTrader struct {
	mu       sync.Mutex
	requests []executor.Request
	result   *models.TradeResult
	err      error
	onFill   func()
}

func (m *mockTrader) Execute(_ context.Context, req executor.Request) (*models.TradeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.result.Status == models.TradeStatusFilled && m.onFill != nil {
		m.onFill()
	}
	return m.result, nil
}

func (m *mockTrader) calls() []executor.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]executor.Request(nil), m.requests...)
}

func position(id int64, symbol, entry, sl, tp, qty string) models.Position {
	return models.Position{
		ID:              id,
		Symbol:          symbol,
		Status:          models.PositionOpen,
		EntryPrice:      dec(entry),
		Quantity:        dec(qty),
		StopLossPrice:   dec(sl),
		TakeProfitPrice: dec(tp),
	}
}

func snapshot(symbol, price string) models.MarketSnapshot {
	return models.MarketSnapshot{
		Symbol:    symbol,
		Price:     dec(price),
		Timestamp: time.UnixMilli(1640995200000),
	}
}

func runOne(t *testing.T, m *Monitor, snap models.MarketSnapshot) {
	t.Helper()
	snapshots := make(chan models.MarketSnapshot, 1)
	snapshots <- snap
	close(snapshots)
	m.Run(context.Background(), snapshots)
}

func TestMonitorThresholds(t *testing.T) {
	// Entry 100 with stopLossPct 5 and takeProfitPct 10.
	tests := []struct {
		name      string
		price     string
		wantClose bool
	}{
		{"above stop loss below take profit holds", "100", false},
		{"exactly at stop loss closes", "95", true},
		{"below stop loss closes", "94.99", true},
		{"exactly at take profit closes", "110", true},
		{"above take profit closes", "110.01", true},
		{"just above stop loss holds", "95.01", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockPositionStore{positions: map[string][]models.Position{
				"NEWUSDT": {position(1, "NEWUSDT", "100", "95", "110", "0.5")},
			}}
			trader := &mockTrader{result: &models.TradeResult{Status: models.TradeStatusFilled}}
			m := New(store, trader, testLogger())

			runOne(t, m, snapshot("NEWUSDT", tt.price))

			got := len(trader.calls()) == 1
			if got != tt.wantClose {
				t.Errorf("close triggered = %v, want %v", got, tt.wantClose)
			}
		})
	}
}

func TestMonitorSellCarriesFullQuantity(t *testing.T) {
	store := &mockPositionStore{positions: map[string][]models.Position{
		"NEWUSDT": {position(1, "NEWUSDT", "100", "95", "110", "0.5")},
	}}
	trader := &mockTrader{result: &models.TradeResult{Status: models.TradeStatusFilled}}
	m := New(store, trader, testLogger())

	runOne(t, m, snapshot("NEWUSDT", "90"))

	calls := trader.calls()
	if len(calls) != 1 {
		t.Fatalf("trader calls = %d, want 1", len(calls))
	}
	req := calls[0]
	if req.Side != models.SideSell {
		t.Errorf("side = %q, want sell", req.Side)
	}
	if !req.Quantity.Equal(dec("0.5")) {
		t.Errorf("quantity = %s, want 0.5", req.Quantity)
	}
	if !req.RefPrice.Equal(dec("90")) {
		t.Errorf("refPrice = %s, want 90", req.RefPrice)
	}
}

func TestMonitorRetriesOnNextSnapshot(t *testing.T) {
	store := &mockPositionStore{positions: map[string][]models.Position{
		"NEWUSDT": {position(1, "NEWUSDT", "100", "95", "110", "0.5")},
	}}
	trader := &mockTrader{err: errors.New("connection refused")}
	m := New(store, trader, testLogger())

	snapshots := make(chan models.MarketSnapshot, 2)
	snapshots <- snapshot("NEWUSDT", "90")
	snapshots <- snapshot("NEWUSDT", "89")
	close(snapshots)
	m.Run(context.Background(), snapshots)

	// Both snapshots attempted a close; the failure did not stop the loop.
	if got := len(trader.calls()); got != 2 {
		t.Errorf("trader calls = %d, want 2", got)
	}
}

func TestMonitorClosedPositionNotRetriggered(t *testing.T) {
	store := &mockPositionStore{positions: map[string][]models.Position{
		"NEWUSDT": {position(1, "NEWUSDT", "100", "95", "110", "0.5")},
	}}
	trader := &mockTrader{result: &models.TradeResult{Status: models.TradeStatusFilled}}
	trader.onFill = func() { store.remove("NEWUSDT") }
	m := New(store, trader, testLogger())

	snapshots := make(chan models.MarketSnapshot, 2)
	snapshots <- snapshot("NEWUSDT", "90")
	snapshots <- snapshot("NEWUSDT", "89")
	close(snapshots)
	m.Run(context.Background(), snapshots)

	if got := len(trader.calls()); got != 1 {
		t.Errorf("trader calls = %d, want 1", got)
	}
}

func TestMonitorIgnoresSymbolsWithoutPositions(t *testing.T) {
	store := &mockPositionStore{positions: map[string][]models.Position{}}
	trader := &mockTrader{result: &models.TradeResult{Status: models.TradeStatusFilled}}
	m := New(store, trader, testLogger())

	runOne(t, m, snapshot("BTCUSDT", "1"))

	if len(trader.calls()) != 0 {
		t.Error("no positions means no close attempts")
	}
}

func TestMonitorStatus(t *testing.T) {
	store := &mockPositionStore{positions: map[string][]models.Position{
		"NEWUSDT": {position(1, "NEWUSDT", "100", "95", "110", "0.5")},
	}}
	trader := &mockTrader{result: &models.TradeResult{Status: models.TradeStatusFilled}}
	trader.onFill = func() { store.remove("NEWUSDT") }
	m := New(store, trader, testLogger())

	runOne(t, m, snapshot("NEWUSDT", "90"))

	status := m.Status()
	if status.SnapshotsSeen != 1 {
		t.Errorf("snapshotsSeen = %d, want 1", status.SnapshotsSeen)
	}
	if status.ClosesTriggered != 1 {
		t.Errorf("closesTriggered = %d, want 1", status.ClosesTriggered)
	}
	if status.LastSnapshotAt.IsZero() {
		t.Error("lastSnapshotAt not recorded")
	}
	if status.Running {
		t.Error("running should be false after Run returns")
	}
}
