package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingSource identifies where a listing was first observed.
type ListingSource string

const (
	SourceWebSocket     ListingSource = "mexc_websocket"
	SourceRestAPI       ListingSource = "mexc_rest_api"
	SourceTestInjection ListingSource = "test_injection"
)

// ListingRecord is the authoritative record of a first-seen symbol.
// Unique on symbol; immutable once written.
type ListingRecord struct {
	ID        int64         `json:"id"`
	Symbol    string        `json:"symbol"`
	ListedAt  time.Time     `json:"listedAt"`
	Source    ListingSource `json:"source"`
	CreatedAt time.Time     `json:"createdAt"`
}

// NewListing is the event published when a genuinely new symbol is confirmed.
type NewListing struct {
	ListingID int64           `json:"listingId"`
	Symbol    string          `json:"symbol"`
	ListedAt  time.Time       `json:"listedAt"`
	Source    ListingSource   `json:"source"`
	Price     decimal.Decimal `json:"price"`
}
