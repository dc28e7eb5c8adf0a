package fetch

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/guregu/null/v6"

	"stockchat/internal/domain"
	"stockchat/internal/util"
)

// Mock is a deterministic in-memory source for development and tests.
// Series are seeded random walks over weekdays; symbols listed in Unknown
// return no data.
type Mock struct {
	// Delay is applied before every call, honouring ctx.
	Delay   time.Duration
	Unknown map[string]bool

	mu    sync.Mutex
	fail  map[string]error
	calls map[string]int
	now   func() time.Time
}

// NewMock creates a Mock anchored at now.
func NewMock(now time.Time) *Mock {
	return &Mock{
		Unknown: map[string]bool{},
		fail:    map[string]error{},
		calls:   map[string]int{},
		now:     func() time.Time { return now },
	}
}

// Compile-time interface checks.
var (
	_ HistoryFetcher  = (*Mock)(nil)
	_ MetricsFetcher  = (*Mock)(nil)
	_ NewsFetcher     = (*Mock)(nil)
	_ EarningsFetcher = (*Mock)(nil)
)

// FailWith makes every call of kind ("history", "metrics", "news",
// "earnings") return err.
func (m *Mock) FailWith(kind string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[kind] = err
}

// Calls returns how many times kind was called.
func (m *Mock) Calls(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

func (m *Mock) enter(ctx context.Context, kind string) error {
	m.mu.Lock()
	m.calls[kind]++
	err := m.fail[kind]
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	return err
}

func seed(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64() & math.MaxInt64)
}

// History returns a random walk per symbol over the weekdays of the range.
func (m *Mock) History(ctx context.Context, symbols []string, start, end string) (map[string]domain.Series, error) {
	if err := m.enter(ctx, "history"); err != nil {
		return nil, err
	}
	s, e := Range(start, end, m.now())
	days := util.TradingDays(s, e)
	out := make(map[string]domain.Series, len(symbols))
	for _, sym := range symbols {
		series := domain.Series{}
		if !m.Unknown[sym] {
			rng := rand.New(rand.NewSource(seed(sym)))
			price := 50 + rng.Float64()*250
			for _, d := range days {
				price *= 1 + (rng.Float64()-0.5)*0.04
				series[d.Format(domain.DateLayout)] = math.Round(price*100) / 100
			}
		}
		out[sym] = series
	}
	return out, nil
}

// Metrics returns plausible values for any metric name.
func (m *Mock) Metrics(ctx context.Context, symbols, names []string) (domain.RawMetrics, error) {
	if err := m.enter(ctx, "metrics"); err != nil {
		return nil, err
	}
	out := make(domain.RawMetrics, len(symbols))
	for _, sym := range symbols {
		if m.Unknown[sym] {
			continue
		}
		rng := rand.New(rand.NewSource(seed(sym)))
		values := make(map[string]any, len(names))
		for _, n := range names {
			switch n {
			case "marketCap", "totalCash", "freeCashflow", "operatingCashflow", "netIncomeToCommon":
				values[n] = math.Round(rng.Float64() * 3e12)
			case "dividendYield", "profitMargins", "operatingMargins", "grossMargins",
				"returnOnEquity", "earningsGrowth", "revenueGrowth", "52WeekChange", "SandP52WeekChange":
				values[n] = rng.Float64() * 0.5
			case "lastDividendDate":
				values[n] = "N/A"
			default:
				values[n] = rng.Float64() * 100
			}
		}
		out[sym] = values
	}
	return out, nil
}

// News returns three synthetic headlines.
func (m *Mock) News(ctx context.Context, symbol string) ([]domain.NewsItem, error) {
	if err := m.enter(ctx, "news"); err != nil {
		return nil, err
	}
	if m.Unknown[symbol] {
		return []domain.NewsItem{}, nil
	}
	now := m.now().UTC()
	items := make([]domain.NewsItem, 0, 3)
	for i := 0; i < 3; i++ {
		items = append(items, domain.NewsItem{
			ID:        fmt.Sprintf("mock-%s-%d", symbol, i),
			Title:     fmt.Sprintf("%s headline %d", symbol, i+1),
			Publisher: "Mock Wire",
			Published: now.Add(-time.Duration(i) * time.Hour),
			Tickers:   []string{symbol},
			Source:    "mock",
		})
	}
	return items, nil
}

// Earnings returns three historical years and one upcoming report.
func (m *Mock) Earnings(ctx context.Context, symbols []string) (map[string]domain.Earnings, error) {
	if err := m.enter(ctx, "earnings"); err != nil {
		return nil, err
	}
	now := m.now().UTC()
	out := make(map[string]domain.Earnings, len(symbols))
	for _, sym := range symbols {
		e := domain.Earnings{Historical: []domain.HistoricalEarning{}, Upcoming: []domain.UpcomingEarning{}}
		if !m.Unknown[sym] {
			rng := rand.New(rand.NewSource(seed(sym)))
			for i := 3; i >= 1; i-- {
				e.Historical = append(e.Historical, domain.HistoricalEarning{
					Year:     now.Year() - i,
					Earnings: null.FloatFrom(math.Round(rng.Float64() * 1e11)),
					Revenue:  null.FloatFrom(math.Round(rng.Float64() * 4e11)),
				})
			}
			e.Upcoming = append(e.Upcoming, domain.UpcomingEarning{
				Date:        now.AddDate(0, 0, 30).Format(domain.DateLayout),
				EPSEstimate: null.FloatFrom(math.Round(rng.Float64()*500) / 100),
			})
		}
		out[sym] = e
	}
	return out, nil
}
