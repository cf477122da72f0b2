package detector

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwarner/sniper/internal/metrics"
	"github.com/cwarner/sniper/pkg/models"
)

type listingStore interface {
	InsertListing(ctx context.Context, symbol string, listedAt time.Time, source models.ListingSource) (int64, bool, error)
	RecentListings(ctx context.Context, limit int) ([]models.ListingRecord, error)
}

// Result reports whether a detection attempt found a genuinely new listing.
type Result struct {
	Duplicate bool
	ListingID int64
}

// Detector is the authority on "is this symbol genuinely new". It layers a
// bounded cache in front of a conditional insert so the overall operation is
// at-most-once per symbol even under concurrent detection attempts: the cache
// alone cannot give that guarantee, the unique constraint can.
type Detector struct {
	store  listingStore
	cache  *Cache
	logger *logrus.Logger
}

func New(store listingStore, cache *Cache, logger *logrus.Logger) *Detector {
	return &Detector{store: store, cache: cache, logger: logger}
}

// Detect records a first-seen symbol. Duplicate outcomes are normal results,
// not errors; an error means the datastore state is unknown and nothing was
// cached.
func (d *Detector) Detect(ctx context.Context, symbol string, listedAt time.Time, source models.ListingSource) (Result, error) {
	if d.cache.Contains(symbol, listedAt) {
		d.logger.WithFields(logrus.Fields{"symbol": symbol, "source": source}).
			Debug("Listing duplicate (cache hit)")
		return Result{Duplicate: true}, nil
	}

	id, inserted, err := d.store.InsertListing(ctx, symbol, listedAt, source)
	if err != nil {
		d.logger.WithError(err).WithField("symbol", symbol).Error("Listing insert failed")
		return Result{}, err
	}

	if !inserted {
		// Lost the race or an older listing exists; cache so future
		// checks take the fast path.
		d.cache.Insert(symbol, listedAt)
		d.logger.WithFields(logrus.Fields{"symbol": symbol, "source": source}).
			Debug("Listing duplicate (constraint)")
		return Result{Duplicate: true}, nil
	}

	d.cache.Insert(symbol, listedAt)
	metrics.ListingDetected()

	d.logger.WithFields(logrus.Fields{
		"symbol":    symbol,
		"source":    source,
		"listingId": id,
		"cacheSize": d.cache.Size(),
	}).Info("New listing detected")

	return Result{Duplicate: false, ListingID: id}, nil
}

// WarmCache preloads the most recent listings so the fast path works
// immediately after startup. Failure is non-fatal.
func (d *Detector) WarmCache(ctx context.Context, limit int) {
	listings, err := d.store.RecentListings(ctx, limit)
	if err != nil {
		d.logger.WithError(err).Warn("Failed to warm listing cache")
		return
	}
	for _, l := range listings {
		d.cache.Insert(l.Symbol, l.ListedAt)
	}
	d.logger.WithField("count", len(listings)).Info("Listing cache warmed")
}
