package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cwarner/sniper/pkg/models"
)

// InsertListing conditionally records a first-seen symbol under the unique
// constraint on symbol. Returns (id, true, nil) when the row was inserted and
// (0, false, nil) when the symbol already exists; any other error is an
// infrastructure failure.
func (s *Store) InsertListing(ctx context.Context, symbol string, listedAt time.Time, source models.ListingSource) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO listings (symbol, listed_at, source)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol) DO NOTHING
		RETURNING id
	`, symbol, listedAt, source).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("insert listing: %w", err)
	}
	return id, true, nil
}

// ListSymbols returns every symbol ever recorded, used to seed the registry.
func (s *Store) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT symbol FROM listings`)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

// RecentListings returns the newest listings for cache warm-up.
func (s *Store) RecentListings(ctx context.Context, limit int) ([]models.ListingRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, symbol, listed_at, source, created_at
		FROM listings
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent listings: %w", err)
	}
	defer rows.Close()

	var listings []models.ListingRecord
	for rows.Next() {
		var l models.ListingRecord
		if err := rows.Scan(&l.ID, &l.Symbol, &l.ListedAt, &l.Source, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// CountListings returns the total number of recorded listings.
func (s *Store) CountListings(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return count, nil
}
