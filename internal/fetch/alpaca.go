package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockchat/internal/domain"
	"stockchat/internal/news"
)

// Alpaca serves history and news from the Alpaca market data API.
type Alpaca struct {
	client    *marketdata.Client
	feed      string
	newsLimit int
	now       func() time.Time
	log       *slog.Logger
}

// AlpacaOptions configures NewAlpaca.
type AlpacaOptions struct {
	APIKey    string
	APISecret string
	DataURL   string
	Feed      string
	NewsLimit int
}

// NewAlpaca creates an Alpaca fetcher.
func NewAlpaca(opts AlpacaOptions) *Alpaca {
	if opts.NewsLimit <= 0 {
		opts.NewsLimit = 8
	}
	if opts.Feed == "" {
		opts.Feed = "iex"
	}
	return &Alpaca{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.DataURL,
		}),
		feed:      opts.Feed,
		newsLimit: opts.NewsLimit,
		now:       time.Now,
		log:       slog.Default().With("fetcher", "alpaca"),
	}
}

// Compile-time interface checks.
var (
	_ HistoryFetcher = (*Alpaca)(nil)
	_ NewsFetcher    = (*Alpaca)(nil)
)

// History fetches split-adjusted daily bars for all symbols in one call.
// The SDK call is not context-aware; it runs in a goroutine so ctx still
// bounds the wait.
func (a *Alpaca) History(ctx context.Context, symbols []string, start, end string) (map[string]domain.Series, error) {
	s, e := Range(start, end, a.now())
	type result struct {
		bars map[string][]marketdata.Bar
		err  error
	}
	done := make(chan result, 1)
	go func() {
		bars, err := a.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame:  marketdata.OneDay,
			Start:      s,
			End:        e.Add(24 * time.Hour),
			Feed:       marketdata.Feed(a.feed),
			Adjustment: marketdata.Adjustment("split"),
		})
		done <- result{bars, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("GetMultiBars: %w", r.err)
		}
		out := make(map[string]domain.Series, len(symbols))
		for _, sym := range symbols {
			series := domain.Series{}
			for _, b := range r.bars[sym] {
				series[b.Timestamp.UTC().Format(domain.DateLayout)] = b.Close
			}
			out[sym] = series
		}
		a.log.Debug("bars fetched", "symbols", len(symbols), "start", s.Format(domain.DateLayout))
		return out, nil
	}
}

// News fetches the latest articles for symbol.
func (a *Alpaca) News(ctx context.Context, symbol string) ([]domain.NewsItem, error) {
	type result struct {
		items []domain.NewsItem
		err   error
	}
	done := make(chan result, 1)
	go func() {
		items, err := news.FetchAlpacaNews(a.client, symbol, a.newsLimit)
		done <- result{items, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.items, r.err
	}
}
