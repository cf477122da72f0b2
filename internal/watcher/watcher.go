package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwarner/sniper/internal/detector"
	"github.com/cwarner/sniper/internal/metrics"
	"github.com/cwarner/sniper/pkg/mexc"
	"github.com/cwarner/sniper/pkg/models"
)

const cacheWarmLimit = 1000

type stream interface {
	Connect() error
	Shutdown()
	Ticks() <-chan mexc.Tick
	State() mexc.ConnState
	SetStateChangeHook(fn func(mexc.ConnState))
}

type symbolStore interface {
	ListSymbols(ctx context.Context) ([]string, error)
}

type listingDetector interface {
	Detect(ctx context.Context, symbol string, at time.Time, source models.ListingSource) (detector.Result, error)
	WarmCache(ctx context.Context, limit int)
}

// Status is a snapshot of watcher activity for the status endpoint.
type Status struct {
	StreamState      mexc.ConnState `json:"streamState"`
	TicksSeen        int64          `json:"ticksSeen"`
	ListingsDetected int64          `json:"listingsDetected"`
	LastTickAt       time.Time      `json:"lastTickAt"`
	KnownSymbols     int            `json:"knownSymbols"`
}

// Watcher owns the ingestion path: it drives the stream client, screens every
// tick against the in-memory symbol registry, confirms registry misses through
// the detector and publishes the results. Ticks are processed one at a time so
// detection for a given connection stays ordered.
type Watcher struct {
	stream   stream
	registry *detector.Registry
	detector listingDetector
	store    symbolStore
	logger   *logrus.Logger

	listings  chan<- models.NewListing
	snapshots chan<- models.MarketSnapshot

	mu               sync.Mutex
	ticksSeen        int64
	listingsDetected int64
	lastTickAt       time.Time
}

func New(
	stream stream,
	registry *detector.Registry,
	det listingDetector,
	store symbolStore,
	listings chan<- models.NewListing,
	snapshots chan<- models.MarketSnapshot,
	logger *logrus.Logger,
) *Watcher {
	return &Watcher{
		stream:    stream,
		registry:  registry,
		detector:  det,
		store:     store,
		listings:  listings,
		snapshots: snapshots,
		logger:    logger,
	}
}

// Initialize seeds the symbol registry and the detection cache from the
// datastore, then connects the stream. Registry seeding is mandatory: without
// it every known symbol would look new on startup.
func (w *Watcher) Initialize(ctx context.Context) error {
	symbols, err := w.store.ListSymbols(ctx)
	if err != nil {
		return fmt.Errorf("load known symbols: %w", err)
	}
	w.registry.Load(symbols)
	w.logger.WithField("count", len(symbols)).Info("Symbol registry seeded")

	w.detector.WarmCache(ctx, cacheWarmLimit)

	w.stream.SetStateChangeHook(func(state mexc.ConnState) {
		metrics.SetWSConnected(state == mexc.StateConnected)
		if state == mexc.StateReconnecting {
			metrics.WSReconnect()
		}
	})

	// A dial failure is not fatal: the stream client has already scheduled
	// a backoff retry, and Down() signals permanent failure after the cap.
	if err := w.stream.Connect(); err != nil {
		w.logger.WithError(err).Warn("Initial stream connect failed, reconnecting with backoff")
	}
	return nil
}

// Run consumes ticks until the context ends, then shuts the stream down.
func (w *Watcher) Run(ctx context.Context) {
	defer w.stream.Shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-w.stream.Ticks():
			if !ok {
				return
			}
			w.handleTick(ctx, tick)
		}
	}
}

// Status returns a copy of the current watcher counters.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		StreamState:      w.stream.State(),
		TicksSeen:        w.ticksSeen,
		ListingsDetected: w.listingsDetected,
		LastTickAt:       w.lastTickAt,
		KnownSymbols:     w.registry.Len(),
	}
}

func (w *Watcher) handleTick(ctx context.Context, tick mexc.Tick) {
	w.mu.Lock()
	w.ticksSeen++
	w.lastTickAt = tick.Timestamp
	w.mu.Unlock()

	// Every tick feeds the position monitor, known symbol or not. The send
	// never blocks ingestion; a full buffer drops the snapshot and the next
	// tick carries a fresher price anyway.
	select {
	case w.snapshots <- models.MarketSnapshot{
		Symbol:    tick.Symbol,
		Price:     tick.Price,
		Timestamp: tick.Timestamp,
	}:
	default:
	}

	if w.registry.Contains(tick.Symbol) {
		return
	}

	res, err := w.detector.Detect(ctx, tick.Symbol, tick.Timestamp, models.SourceWebSocket)
	if err != nil {
		// Unknown datastore state: leave the symbol out of the registry so
		// the next tick retries detection.
		w.logger.WithError(err).WithField("symbol", tick.Symbol).Warn("Detection failed, will retry on next tick")
		return
	}

	w.registry.Add(tick.Symbol)

	if res.Duplicate {
		return
	}

	w.mu.Lock()
	w.listingsDetected++
	w.mu.Unlock()

	w.logger.WithFields(logrus.Fields{
		"symbol":    tick.Symbol,
		"listingId": res.ListingID,
		"price":     tick.Price,
	}).Info("New listing detected")

	// Listing events are too valuable to drop; block until the auto-trader
	// takes it or the process is stopping.
	select {
	case w.listings <- models.NewListing{
		ListingID: res.ListingID,
		Symbol:    tick.Symbol,
		ListedAt:  tick.Timestamp,
		Source:    models.SourceWebSocket,
		Price:     tick.Price,
	}:
	case <-ctx.Done():
	}
}
