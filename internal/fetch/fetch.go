// Package fetch defines the per-action data capabilities and their
// implementations: Yahoo Finance, Alpaca market data, an existing REST
// backend and an in-memory mock.
package fetch

import (
	"context"
	"strings"
	"time"

	"stockchat/internal/domain"
)

// HistoryFetcher returns per-symbol daily closing series. start and end are
// DateLayout dates; either may be empty.
type HistoryFetcher interface {
	History(ctx context.Context, symbols []string, start, end string) (map[string]domain.Series, error)
}

// MetricsFetcher returns raw per-symbol metric values.
type MetricsFetcher interface {
	Metrics(ctx context.Context, symbols, names []string) (domain.RawMetrics, error)
}

// NewsFetcher returns recent news for one symbol.
type NewsFetcher interface {
	News(ctx context.Context, symbol string) ([]domain.NewsItem, error)
}

// EarningsFetcher returns earnings for several symbols in one call.
type EarningsFetcher interface {
	Earnings(ctx context.Context, symbols []string) (map[string]domain.Earnings, error)
}

// Sources bundles one fetcher per action kind.
type Sources struct {
	History  HistoryFetcher
	Metrics  MetricsFetcher
	News     NewsFetcher
	Earnings EarningsFetcher
}

// DefaultLookback is the history range used when a plan gives no start date.
const DefaultLookback = 365 * 24 * time.Hour

// Range resolves optional plan dates into a concrete [start, end] range.
// A missing end is today; a missing start is DefaultLookback before end.
func Range(start, end string, now time.Time) (time.Time, time.Time) {
	e, err := time.Parse(domain.DateLayout, end)
	if err != nil {
		y, m, d := now.UTC().Date()
		e = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	s, err := time.Parse(domain.DateLayout, start)
	if err != nil {
		s = e.Add(-DefaultLookback)
	}
	if s.After(e) {
		s, e = e, s
	}
	return s, e
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
