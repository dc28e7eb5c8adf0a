package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/guregu/null/v6"

	"stockchat/internal/domain"
)

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRange(t *testing.T) {
	now := time.Date(2024, 6, 14, 15, 30, 0, 0, time.UTC)

	s, e := Range("2024-01-01", "2024-02-01", now)
	if !s.Equal(day("2024-01-01")) || !e.Equal(day("2024-02-01")) {
		t.Errorf("explicit range = %v..%v", s, e)
	}

	s, e = Range("", "", now)
	if !e.Equal(day("2024-06-14")) {
		t.Errorf("default end = %v, want 2024-06-14", e)
	}
	if got := e.Sub(s); got != DefaultLookback {
		t.Errorf("default lookback = %v", got)
	}

	s, e = Range("2024-03-01", "2024-01-01", now)
	if !s.Before(e) {
		t.Errorf("reversed range not swapped: %v..%v", s, e)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTestYahoo(url string) *Yahoo {
	y := NewYahoo(YahooOptions{BaseURL: url, RateLimitPerMin: 60000, Retries: 2})
	y.now = func() time.Time { return time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC) }
	return y
}

func TestYahooHistory(t *testing.T) {
	mon := time.Date(2024, 6, 10, 13, 30, 0, 0, time.UTC).Unix()
	tue := time.Date(2024, 6, 11, 13, 30, 0, 0, time.UTC).Unix()
	wed := time.Date(2024, 6, 12, 13, 30, 0, 0, time.UTC).Unix()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v8/finance/chart/AAPL":
			if r.URL.Query().Get("interval") != "1d" {
				t.Errorf("interval = %q", r.URL.Query().Get("interval"))
			}
			writeJSON(w, map[string]any{"chart": map[string]any{
				"result": []any{map[string]any{
					"timestamp": []int64{mon, tue, wed},
					"indicators": map[string]any{"quote": []any{
						map[string]any{"close": []any{190.5, nil, 192.25}},
					}},
				}},
			}})
		case "/v8/finance/chart/ZZZZ":
			writeJSON(w, map[string]any{"chart": map[string]any{
				"result": nil,
				"error":  map[string]any{"code": "Not Found", "description": "No data found"},
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	got, err := newTestYahoo(srv.URL).History(context.Background(), []string{"AAPL", "ZZZZ"}, "2024-06-10", "2024-06-12")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	want := map[string]domain.Series{
		"AAPL": {"2024-06-10": 190.5, "2024-06-12": 192.25},
		"ZZZZ": {},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("History mismatch (-want +got):\n%s", diff)
	}
}

func TestYahooRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, map[string]any{"chart": map[string]any{"result": []any{}}})
	}))
	defer srv.Close()

	if _, err := newTestYahoo(srv.URL).History(context.Background(), []string{"MSFT"}, "", ""); err != nil {
		t.Fatalf("History: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestYahooClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := newTestYahoo(srv.URL).History(context.Background(), []string{"MSFT"}, "", ""); err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestYahooMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v10/finance/quoteSummary/") {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{"quoteSummary": map[string]any{"result": []any{map[string]any{
			"summaryDetail": map[string]any{
				"marketCap":     map[string]any{"raw": 2.9e12, "fmt": "2.9T"},
				"trailingPE":    map[string]any{"raw": 31.2, "fmt": "31.20"},
				"dividendYield": map[string]any{},
			},
			"defaultKeyStatistics": map[string]any{
				"beta": map[string]any{"raw": 1.25},
			},
		}}}})
	}))
	defer srv.Close()

	got, err := newTestYahoo(srv.URL).Metrics(context.Background(), []string{"AAPL"},
		[]string{"marketCap", "trailingPE", "beta", "dividendYield", "forwardPE"})
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	want := domain.RawMetrics{"AAPL": {
		"marketCap":     2.9e12,
		"trailingPE":    31.2,
		"beta":          1.25,
		"dividendYield": "N/A",
		"forwardPE":     "N/A",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestYahooEarnings(t *testing.T) {
	future := time.Date(2024, 7, 25, 20, 0, 0, 0, time.UTC).Unix()
	past := time.Date(2024, 5, 2, 20, 0, 0, 0, time.UTC).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"quoteSummary": map[string]any{"result": []any{map[string]any{
			"earnings": map[string]any{"financialsChart": map[string]any{"yearly": []any{
				map[string]any{"date": 2022, "revenue": map[string]any{"raw": 394e9}, "earnings": map[string]any{"raw": 99.8e9}},
				map[string]any{"date": 2023, "revenue": map[string]any{"raw": 383e9}, "earnings": map[string]any{}},
			}}},
			"calendarEvents": map[string]any{"earnings": map[string]any{
				"earningsDate":    []any{map[string]any{"raw": past}, map[string]any{"raw": future}},
				"earningsAverage": map[string]any{"raw": 1.34},
			}},
		}}}})
	}))
	defer srv.Close()

	got, err := newTestYahoo(srv.URL).Earnings(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("Earnings: %v", err)
	}
	want := map[string]domain.Earnings{"AAPL": {
		Historical: []domain.HistoricalEarning{
			{Year: 2022, Earnings: null.FloatFrom(99.8e9), Revenue: null.FloatFrom(394e9)},
			{Year: 2023, Revenue: null.FloatFrom(383e9)},
		},
		Upcoming: []domain.UpcomingEarning{
			{Date: "2024-07-25", EPSEstimate: null.FloatFrom(1.34)},
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Earnings mismatch (-want +got):\n%s", diff)
	}
}

func TestYahooNews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "TSLA" {
			t.Errorf("q = %q", got)
		}
		news := make([]any, 0, 10)
		for i := 0; i < 10; i++ {
			news = append(news, map[string]any{
				"uuid": "u" + string(rune('0'+i)), "title": "t", "publisher": "p",
				"link": "https://example.com", "providerPublishTime": 1718000000,
				"relatedTickers": []string{"TSLA"},
			})
		}
		writeJSON(w, map[string]any{"news": news})
	}))
	defer srv.Close()

	items, err := newTestYahoo(srv.URL).News(context.Background(), "tsla")
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if len(items) != 8 {
		t.Fatalf("len = %d, want 8", len(items))
	}
	if items[0].ID != "u0" || items[0].Source != "yahoo" {
		t.Errorf("first item = %+v", items[0])
	}
}

func TestBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/api/stock_data":
			if q.Get("end_date") != "2024-01-04" {
				t.Errorf("end_date = %q, want exclusive 2024-01-04", q.Get("end_date"))
			}
			writeJSON(w, map[string]any{"AAPL": map[string]float64{"2024-01-02": 185.6, "2024-01-03": 184.2}})
		case "/api/stock_metrics":
			writeJSON(w, map[string]any{"AAPL": map[string]any{"beta": 1.2, "forwardPE": "N/A"}})
		case "/api/stock_news":
			writeJSON(w, []any{map[string]any{"uuid": "n1", "title": "Apple", "publisher": "Reuters",
				"link": "https://r.example", "providerPublishTime": 1718000000, "relatedTickers": []string{"AAPL"}}})
		case "/api/stock_earnings":
			writeJSON(w, map[string]any{"AAPL": map[string]any{
				"historical_earnings": []any{map[string]any{"Year": "2023", "Earnings": 97e9, "Revenue": 383e9}},
				"upcoming_earnings":   []any{map[string]any{"Date": "2024-08-01", "EPS_Estimate": 1.3, "Revenue_Estimate": nil}},
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"not found"}`))
		}
	}))
	defer srv.Close()

	b := NewBackend(srv.URL + "/")
	ctx := context.Background()

	hist, err := b.History(ctx, []string{"AAPL"}, "2024-01-02", "2024-01-03")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist["AAPL"]) != 2 {
		t.Errorf("history = %v", hist)
	}

	m, err := b.Metrics(ctx, []string{"AAPL"}, []string{"beta", "forwardPE"})
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if m["AAPL"]["beta"] != 1.2 || m["AAPL"]["forwardPE"] != "N/A" {
		t.Errorf("metrics = %v", m)
	}

	news, err := b.News(ctx, "AAPL")
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if len(news) != 1 || news[0].Publisher != "Reuters" || news[0].Source != "backend" {
		t.Errorf("news = %+v", news)
	}

	earn, err := b.Earnings(ctx, []string{"AAPL"})
	if err != nil {
		t.Fatalf("Earnings: %v", err)
	}
	want := domain.Earnings{
		Historical: []domain.HistoricalEarning{{Year: 2023, Earnings: null.FloatFrom(97e9), Revenue: null.FloatFrom(383e9)}},
		Upcoming:   []domain.UpcomingEarning{{Date: "2024-08-01", EPSEstimate: null.FloatFrom(1.3)}},
	}
	if diff := cmp.Diff(want, earn["AAPL"]); diff != "" {
		t.Errorf("Earnings mismatch (-want +got):\n%s", diff)
	}
}

func TestBackendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"boom"}`))
	}))
	defer srv.Close()

	_, err := NewBackend(srv.URL).News(context.Background(), "AAPL")
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("err = %v, want status 500", err)
	}
}

func TestMockDeterministic(t *testing.T) {
	now := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	a, err := NewMock(now).History(context.Background(), []string{"AAPL"}, "2024-06-03", "2024-06-14")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewMock(now).History(context.Background(), []string{"AAPL"}, "2024-06-03", "2024-06-14")
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("mock history not deterministic:\n%s", diff)
	}
	if got := len(a["AAPL"]); got != 10 {
		t.Errorf("weekday count = %d, want 10", got)
	}
	if _, ok := a["AAPL"]["2024-06-08"]; ok {
		t.Error("saturday present in mock series")
	}
}

func TestMockFailureAndUnknown(t *testing.T) {
	m := NewMock(time.Now())
	m.Unknown["NOPE"] = true
	boom := errors.New("boom")
	m.FailWith("news", boom)

	if _, err := m.News(context.Background(), "AAPL"); !errors.Is(err, boom) {
		t.Errorf("News err = %v, want boom", err)
	}
	hist, err := m.History(context.Background(), []string{"NOPE"}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist["NOPE"]) != 0 {
		t.Errorf("unknown symbol has %d points", len(hist["NOPE"]))
	}
	if m.Calls("news") != 1 || m.Calls("history") != 1 {
		t.Errorf("calls = news %d history %d", m.Calls("news"), m.Calls("history"))
	}
}

func TestMockDelayHonoursContext(t *testing.T) {
	m := NewMock(time.Now())
	m.Delay = time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := m.Earnings(ctx, []string{"AAPL"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

type memCache struct {
	data  map[string]domain.Series
	at    map[string]time.Time
	saves int
}

func (c *memCache) Load(_ context.Context, symbol string, start, end time.Time) (domain.Series, time.Time, bool, error) {
	s, ok := c.data[symbol]
	return s, c.at[symbol], ok, nil
}

func (c *memCache) Save(_ context.Context, symbol string, series domain.Series) error {
	c.saves++
	c.data[symbol] = series
	c.at[symbol] = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	return nil
}

func TestCachedHistory(t *testing.T) {
	now := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	mock := NewMock(now)
	cache := &memCache{data: map[string]domain.Series{}, at: map[string]time.Time{}}
	c := NewCachedHistory(mock, cache, time.Hour)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	first, err := c.History(ctx, []string{"AAPL"}, "2024-05-01", "2024-06-14")
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.History(ctx, []string{"AAPL"}, "2024-05-01", "2024-06-14")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached result differs:\n%s", diff)
	}
	if mock.Calls("history") != 1 || cache.saves != 1 {
		t.Errorf("history calls = %d saves = %d, want 1 and 1", mock.Calls("history"), cache.saves)
	}

	// Stale entries are refetched.
	c.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, err := c.History(ctx, []string{"AAPL"}, "2024-05-01", "2024-06-14"); err != nil {
		t.Fatal(err)
	}
	if mock.Calls("history") != 2 {
		t.Errorf("history calls = %d after expiry, want 2", mock.Calls("history"))
	}
}
