package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"stockchat/internal/domain"
)

// Backend fetches from an existing stock data REST service exposing
// /api/stock_data, /api/stock_metrics, /api/stock_news and
// /api/stock_earnings.
type Backend struct {
	BaseURL    string
	httpClient *http.Client
}

// NewBackend creates a Backend client.
func NewBackend(baseURL string) *Backend {
	return &Backend{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Compile-time interface checks.
var (
	_ HistoryFetcher  = (*Backend)(nil)
	_ MetricsFetcher  = (*Backend)(nil)
	_ NewsFetcher     = (*Backend)(nil)
	_ EarningsFetcher = (*Backend)(nil)
)

func (b *Backend) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("GET %s: read body: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

// History calls /api/stock_data. The backend treats end_date as exclusive,
// so one day is added to include the requested end.
func (b *Backend) History(ctx context.Context, symbols []string, start, end string) (map[string]domain.Series, error) {
	s, e := Range(start, end, time.Now())
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("start_date", s.Format(domain.DateLayout))
	q.Set("end_date", e.AddDate(0, 0, 1).Format(domain.DateLayout))

	var out map[string]domain.Series
	if err := b.get(ctx, "/api/stock_data", q, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]domain.Series{}
	}
	return out, nil
}

// Metrics calls /api/stock_metrics.
func (b *Backend) Metrics(ctx context.Context, symbols, names []string) (domain.RawMetrics, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("metrics", strings.Join(names, ","))

	var out domain.RawMetrics
	if err := b.get(ctx, "/api/stock_metrics", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type backendNews struct {
	UUID                string   `json:"uuid"`
	Title               string   `json:"title"`
	Publisher           string   `json:"publisher"`
	Link                string   `json:"link"`
	ProviderPublishTime int64    `json:"providerPublishTime"`
	RelatedTickers      []string `json:"relatedTickers"`
}

// News calls /api/stock_news.
func (b *Backend) News(ctx context.Context, symbol string) ([]domain.NewsItem, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	var raw []backendNews
	if err := b.get(ctx, "/api/stock_news", q, &raw); err != nil {
		return nil, err
	}
	items := make([]domain.NewsItem, 0, len(raw))
	for _, n := range raw {
		items = append(items, domain.NewsItem{
			ID:        n.UUID,
			Title:     n.Title,
			Publisher: n.Publisher,
			Link:      n.Link,
			Published: time.Unix(n.ProviderPublishTime, 0).UTC(),
			Tickers:   n.RelatedTickers,
			Source:    "backend",
		})
	}
	return items, nil
}

type backendEarnings struct {
	Historical []struct {
		Year     any      `json:"Year"`
		Earnings *float64 `json:"Earnings"`
		Revenue  *float64 `json:"Revenue"`
	} `json:"historical_earnings"`
	Upcoming []struct {
		Date            string   `json:"Date"`
		EPSEstimate     *float64 `json:"EPS_Estimate"`
		RevenueEstimate *float64 `json:"Revenue_Estimate"`
	} `json:"upcoming_earnings"`
}

// Earnings calls /api/stock_earnings with all symbols at once.
func (b *Backend) Earnings(ctx context.Context, symbols []string) (map[string]domain.Earnings, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))

	var raw map[string]backendEarnings
	if err := b.get(ctx, "/api/stock_earnings", q, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]domain.Earnings, len(raw))
	for sym, be := range raw {
		e := domain.Earnings{
			Historical: make([]domain.HistoricalEarning, 0, len(be.Historical)),
			Upcoming:   make([]domain.UpcomingEarning, 0, len(be.Upcoming)),
		}
		for _, h := range be.Historical {
			e.Historical = append(e.Historical, domain.HistoricalEarning{
				Year:     year(h.Year),
				Earnings: null.FloatFromPtr(h.Earnings),
				Revenue:  null.FloatFromPtr(h.Revenue),
			})
		}
		for _, u := range be.Upcoming {
			e.Upcoming = append(e.Upcoming, domain.UpcomingEarning{
				Date:            u.Date,
				EPSEstimate:     null.FloatFromPtr(u.EPSEstimate),
				RevenueEstimate: null.FloatFromPtr(u.RevenueEstimate),
			})
		}
		out[sym] = e
	}
	return out, nil
}

// year accepts the year as a number or a "2023" string.
func year(v any) int {
	switch y := v.(type) {
	case float64:
		return int(y)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(y))
		return n
	}
	return 0
}
