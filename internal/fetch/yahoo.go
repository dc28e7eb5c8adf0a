package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"stockchat/internal/domain"
	"stockchat/internal/util"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// Yahoo implements every fetcher with the public Yahoo Finance endpoints.
type Yahoo struct {
	Client    *http.Client
	BaseURL   string
	NewsCount int
	limiter   *util.RateLimiter
	retries   int
	now       func() time.Time
	log       *slog.Logger
}

// YahooOptions configures NewYahoo.
type YahooOptions struct {
	BaseURL         string
	RateLimitPerMin int
	Retries         int
	NewsCount       int
}

// yahooBurst lets a comparison fetch its symbols without queueing.
const yahooBurst = 4

// NewYahoo creates a Yahoo Finance fetcher.
func NewYahoo(opts YahooOptions) *Yahoo {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultYahooBaseURL
	}
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 120
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.NewsCount <= 0 {
		opts.NewsCount = 8
	}
	return &Yahoo{
		Client:    &http.Client{Timeout: 30 * time.Second},
		BaseURL:   strings.TrimRight(opts.BaseURL, "/"),
		NewsCount: opts.NewsCount,
		limiter:   util.NewRateLimiter(opts.RateLimitPerMin, yahooBurst),
		retries:   opts.Retries,
		now:       time.Now,
		log:       slog.Default().With("fetcher", "yahoo"),
	}
}

// Compile-time interface checks.
var (
	_ HistoryFetcher  = (*Yahoo)(nil)
	_ MetricsFetcher  = (*Yahoo)(nil)
	_ NewsFetcher     = (*Yahoo)(nil)
	_ EarningsFetcher = (*Yahoo)(nil)
)

// getJSON fetches path (relative to BaseURL) into out, rate limited and
// retried on transport errors and 5xx/429 responses.
func (y *Yahoo) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := y.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return util.Retry(ctx, y.retries, 250*time.Millisecond, func() error {
		if err := y.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return util.Permanent(err)
		}
		req.Header.Set("User-Agent", "Mozilla/5.0")

		resp, err := y.Client.Do(req)
		if err != nil {
			return fmt.Errorf("yahoo fetch: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("yahoo read body: %w", err)
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			err := fmt.Errorf("yahoo: status %d", resp.StatusCode)
			if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil {
				return util.RetryAfter(err, time.Duration(secs)*time.Second)
			}
			return err
		case resp.StatusCode >= 500:
			return fmt.Errorf("yahoo: status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return util.Permanent(fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, body))
		}
		if err := json.Unmarshal(body, out); err != nil {
			return util.Permanent(fmt.Errorf("yahoo decode: %w", err))
		}
		return nil
	})
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// History fetches daily closes for each symbol. A symbol Yahoo does not
// know yields an empty series rather than failing the batch.
func (y *Yahoo) History(ctx context.Context, symbols []string, start, end string) (map[string]domain.Series, error) {
	s, e := Range(start, end, y.now())
	out := make(map[string]domain.Series, len(symbols))
	for _, sym := range symbols {
		series, err := y.chart(ctx, normalizeSymbol(sym), s, e)
		if err != nil {
			return nil, fmt.Errorf("history %s: %w", sym, err)
		}
		out[sym] = series
	}
	return out, nil
}

func (y *Yahoo) chart(ctx context.Context, symbol string, start, end time.Time) (domain.Series, error) {
	q := url.Values{}
	q.Set("period1", fmt.Sprint(start.Unix()))
	// period2 is exclusive; include the end date.
	q.Set("period2", fmt.Sprint(end.Add(24*time.Hour).Unix()))
	q.Set("interval", "1d")

	var chart yahooChart
	if err := y.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), q, &chart); err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" {
			return domain.Series{}, nil
		}
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}

	series := domain.Series{}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return series, nil
	}
	result := chart.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue // null bars (halts, holidays)
		}
		series[time.Unix(ts, 0).UTC().Format(domain.DateLayout)] = *closes[i]
	}
	return series, nil
}

// ---------------------------------------------------------------------------
// quoteSummary (metrics, earnings)
// ---------------------------------------------------------------------------

type quoteSummary struct {
	QuoteSummary struct {
		Result []map[string]json.RawMessage `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

func (y *Yahoo) summary(ctx context.Context, symbol string, modules ...string) (map[string]json.RawMessage, error) {
	q := url.Values{}
	q.Set("modules", strings.Join(modules, ","))
	var qs quoteSummary
	if err := y.getJSON(ctx, "/v10/finance/quoteSummary/"+url.PathEscape(symbol), q, &qs); err != nil {
		return nil, err
	}
	if qs.QuoteSummary.Error != nil {
		if qs.QuoteSummary.Error.Code == "Not Found" {
			return nil, nil
		}
		return nil, fmt.Errorf("yahoo api error: %s", qs.QuoteSummary.Error.Description)
	}
	if len(qs.QuoteSummary.Result) == 0 {
		return nil, nil
	}
	return qs.QuoteSummary.Result[0], nil
}

var metricModules = []string{"price", "summaryDetail", "defaultKeyStatistics", "financialData"}

// Metrics returns the requested metrics per symbol; metrics Yahoo does not
// report are "N/A".
func (y *Yahoo) Metrics(ctx context.Context, symbols, names []string) (domain.RawMetrics, error) {
	out := make(domain.RawMetrics, len(symbols))
	for _, sym := range symbols {
		modules, err := y.summary(ctx, normalizeSymbol(sym), metricModules...)
		if err != nil {
			return nil, fmt.Errorf("metrics %s: %w", sym, err)
		}
		if modules == nil {
			continue
		}
		flat := flattenModules(modules)
		values := make(map[string]any, len(names))
		for _, n := range names {
			if v, ok := flat[n]; ok && v != nil {
				values[n] = v
			} else {
				values[n] = "N/A"
			}
		}
		out[sym] = values
	}
	return out, nil
}

// flattenModules merges quoteSummary modules into one name -> value map,
// unwrapping {"raw": x, "fmt": "..."} objects to x. Earlier modules win.
func flattenModules(modules map[string]json.RawMessage) map[string]any {
	flat := make(map[string]any)
	for _, m := range metricModules {
		raw, ok := modules[m]
		if !ok {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}
		for k, v := range fields {
			if _, seen := flat[k]; seen {
				continue
			}
			if obj, ok := v.(map[string]any); ok {
				if r, ok := obj["raw"]; ok {
					v = r
				} else if len(obj) == 0 {
					v = nil
				}
			}
			flat[k] = v
		}
	}
	return flat
}

type rawNum struct {
	Raw *float64 `json:"raw"`
}

func (r rawNum) null() null.Float { return null.FloatFromPtr(r.Raw) }

type yahooEarnings struct {
	Earnings struct {
		FinancialsChart struct {
			Yearly []struct {
				Date     int    `json:"date"`
				Revenue  rawNum `json:"revenue"`
				Earnings rawNum `json:"earnings"`
			} `json:"yearly"`
		} `json:"financialsChart"`
	} `json:"earnings"`
	CalendarEvents struct {
		Earnings struct {
			EarningsDate []struct {
				Raw int64 `json:"raw"`
			} `json:"earningsDate"`
			EarningsAverage rawNum `json:"earningsAverage"`
			RevenueAverage  rawNum `json:"revenueAverage"`
		} `json:"earnings"`
	} `json:"calendarEvents"`
}

// Earnings returns yearly earnings and the next scheduled report for each
// symbol.
func (y *Yahoo) Earnings(ctx context.Context, symbols []string) (map[string]domain.Earnings, error) {
	out := make(map[string]domain.Earnings, len(symbols))
	today := y.now().UTC().Format(domain.DateLayout)
	for _, sym := range symbols {
		modules, err := y.summary(ctx, normalizeSymbol(sym), "earnings", "calendarEvents")
		if err != nil {
			return nil, fmt.Errorf("earnings %s: %w", sym, err)
		}
		var ye yahooEarnings
		if raw, ok := modules["earnings"]; ok {
			json.Unmarshal(raw, &ye.Earnings)
		}
		if raw, ok := modules["calendarEvents"]; ok {
			json.Unmarshal(raw, &ye.CalendarEvents)
		}

		e := domain.Earnings{
			Historical: []domain.HistoricalEarning{},
			Upcoming:   []domain.UpcomingEarning{},
		}
		for _, yr := range ye.Earnings.FinancialsChart.Yearly {
			e.Historical = append(e.Historical, domain.HistoricalEarning{
				Year:     yr.Date,
				Earnings: yr.Earnings.null(),
				Revenue:  yr.Revenue.null(),
			})
		}
		cal := ye.CalendarEvents.Earnings
		for _, d := range cal.EarningsDate {
			date := time.Unix(d.Raw, 0).UTC().Format(domain.DateLayout)
			if date <= today {
				continue
			}
			e.Upcoming = append(e.Upcoming, domain.UpcomingEarning{
				Date:            date,
				EPSEstimate:     cal.EarningsAverage.null(),
				RevenueEstimate: cal.RevenueAverage.null(),
			})
		}
		out[sym] = e
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// News
// ---------------------------------------------------------------------------

type yahooSearch struct {
	News []struct {
		UUID                string   `json:"uuid"`
		Title               string   `json:"title"`
		Publisher           string   `json:"publisher"`
		Link                string   `json:"link"`
		ProviderPublishTime int64    `json:"providerPublishTime"`
		RelatedTickers      []string `json:"relatedTickers"`
		Thumbnail           *struct {
			Resolutions []struct {
				URL string `json:"url"`
			} `json:"resolutions"`
		} `json:"thumbnail"`
	} `json:"news"`
}

// News returns up to NewsCount recent items for symbol.
func (y *Yahoo) News(ctx context.Context, symbol string) ([]domain.NewsItem, error) {
	q := url.Values{}
	q.Set("q", normalizeSymbol(symbol))
	q.Set("quotesCount", "0")
	q.Set("newsCount", fmt.Sprint(y.NewsCount))

	var res yahooSearch
	if err := y.getJSON(ctx, "/v1/finance/search", q, &res); err != nil {
		return nil, fmt.Errorf("news %s: %w", symbol, err)
	}
	items := make([]domain.NewsItem, 0, len(res.News))
	for _, n := range res.News {
		item := domain.NewsItem{
			ID:        n.UUID,
			Title:     n.Title,
			Publisher: n.Publisher,
			Link:      n.Link,
			Published: time.Unix(n.ProviderPublishTime, 0).UTC(),
			Tickers:   n.RelatedTickers,
			Source:    "yahoo",
		}
		if n.Thumbnail != nil && len(n.Thumbnail.Resolutions) > 0 {
			item.Thumbnail = n.Thumbnail.Resolutions[0].URL
		}
		items = append(items, item)
		if len(items) == y.NewsCount {
			break
		}
	}
	return items, nil
}
