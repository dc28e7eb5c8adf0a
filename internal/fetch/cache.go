package fetch

import (
	"context"
	"log/slog"
	"time"

	"stockchat/internal/domain"
)

// SeriesCache stores fetched daily series by symbol.
type SeriesCache interface {
	// Load returns the cached closes within [start, end] and the time the
	// symbol was last written. ok is false when nothing is cached.
	Load(ctx context.Context, symbol string, start, end time.Time) (series domain.Series, fetchedAt time.Time, ok bool, err error)
	Save(ctx context.Context, symbol string, series domain.Series) error
}

// CachedHistory serves history from a SeriesCache when the cached copy is
// fresh and covers the range, and otherwise fetches from Next and saves.
type CachedHistory struct {
	Next  HistoryFetcher
	Cache SeriesCache
	TTL   time.Duration
	now   func() time.Time
	log   *slog.Logger
}

// NewCachedHistory wraps next with cache.
func NewCachedHistory(next HistoryFetcher, cache SeriesCache, ttl time.Duration) *CachedHistory {
	return &CachedHistory{
		Next:  next,
		Cache: cache,
		TTL:   ttl,
		now:   time.Now,
		log:   slog.Default().With("fetcher", "cache"),
	}
}

var _ HistoryFetcher = (*CachedHistory)(nil)

// History implements HistoryFetcher.
func (c *CachedHistory) History(ctx context.Context, symbols []string, start, end string) (map[string]domain.Series, error) {
	s, e := Range(start, end, c.now())
	out := make(map[string]domain.Series, len(symbols))
	var missing []string
	for _, sym := range symbols {
		series, fetchedAt, ok, err := c.Cache.Load(ctx, sym, s, e)
		if err != nil {
			c.log.Warn("cache load failed", "symbol", sym, "error", err)
		}
		if ok && err == nil && c.now().Sub(fetchedAt) < c.TTL && covers(series, s, e) {
			out[sym] = series
			continue
		}
		missing = append(missing, sym)
	}
	if len(missing) == 0 {
		c.log.Debug("history served from cache", "symbols", len(symbols))
		return out, nil
	}

	fetched, err := c.Next.History(ctx, missing, start, end)
	if err != nil {
		return nil, err
	}
	for _, sym := range missing {
		series := fetched[sym]
		out[sym] = series
		if len(series) == 0 {
			continue
		}
		if err := c.Cache.Save(ctx, sym, series); err != nil {
			c.log.Warn("cache save failed", "symbol", sym, "error", err)
		}
	}
	return out, nil
}

// covers reports whether series has data within a week of both range ends,
// allowing for weekends and holidays.
func covers(series domain.Series, start, end time.Time) bool {
	if len(series) == 0 {
		return false
	}
	first, last := "", ""
	for d := range series {
		if first == "" || d < first {
			first = d
		}
		if d > last {
			last = d
		}
	}
	slack := 7 * 24 * time.Hour
	return first <= start.Add(slack).Format(domain.DateLayout) &&
		last >= end.Add(-slack).Format(domain.DateLayout)
}
