// Package store persists fetched price history and the query log.
package store

import (
	"context"
	"time"

	"stockchat/internal/domain"
)

// SeriesCache persists daily closing series by symbol.
type SeriesCache interface {
	// Load returns cached closes within [start, end] and when they were
	// fetched. ok is false when nothing is cached for the range.
	Load(ctx context.Context, symbol string, start, end time.Time) (series domain.Series, fetchedAt time.Time, ok bool, err error)

	// Save merges series into the cache, replacing existing dates.
	Save(ctx context.Context, symbol string, series domain.Series) error
}

// QueryLog persists finished queries.
type QueryLog interface {
	// Record appends one query.
	Record(ctx context.Context, rec domain.QueryRecord) error

	// Recent returns up to limit queries, newest first.
	Recent(ctx context.Context, limit int) ([]domain.QueryRecord, error)
}
