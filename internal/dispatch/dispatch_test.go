package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"stockchat/internal/domain"
	"stockchat/internal/fetch"
	"stockchat/internal/plan"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

func mockSources(m *fetch.Mock) fetch.Sources {
	return fetch.Sources{History: m, Metrics: m, News: m, Earnings: m}
}

// collect records events and fails the test if emit is entered concurrently.
type collector struct {
	t        *testing.T
	inFlight atomic.Int32
	events   []Event
}

func (c *collector) emit(ev Event) {
	if c.inFlight.Add(1) != 1 {
		c.t.Error("emit called concurrently")
	}
	time.Sleep(time.Millisecond)
	c.events = append(c.events, ev)
	c.inFlight.Add(-1)
}

func validate(t *testing.T, raw map[string]any) *domain.ActionPlan {
	t.Helper()
	p, err := plan.NewValidator(nil).Validate(raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return p
}

func TestHistoryAndDefaultedMetricsResolveIndependently(t *testing.T) {
	m := fetch.NewMock(testNow)
	m.FailWith("metrics", errors.New("upstream 500"))

	p := validate(t, map[string]any{
		"description": "Apple overview",
		"actions": []any{
			map[string]any{"type": "getHistory", "symbols": []any{"AAPL"}, "startDate": "2024-05-01", "endDate": "2024-06-14"},
			map[string]any{"type": "getMetrics", "symbols": []any{"AAPL"}, "metricNames": []any{}},
		},
	})
	if len(p.Actions[1].MetricNames) != len(plan.DefaultMetrics) {
		t.Fatalf("metric names = %v, want defaults", p.Actions[1].MetricNames)
	}

	c := &collector{t: t}
	out := New(mockSources(m), Options{}).Dispatch(context.Background(), p, c.emit)

	if len(out) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(out))
	}
	if out[0].Status != StatusSuccess || len(out[0].Series["AAPL"]) == 0 {
		t.Errorf("history outcome = %+v", out[0])
	}
	if out[0].CompareMode {
		t.Error("single-symbol history in compare mode")
	}
	if out[1].Status != StatusFailure || !domain.IsCode(out[1].Err, domain.CodeFetchFailed) {
		t.Errorf("metrics outcome = %s %v", out[1].Status, out[1].Err)
	}
	if len(c.events) != 3 || c.events[0].Preview == nil {
		t.Fatalf("events = %d, first preview = %v", len(c.events), c.events[0].Preview)
	}
	if c.events[0].Preview.Description != "Apple overview" || c.events[0].Preview.Actions != 2 {
		t.Errorf("preview = %+v", c.events[0].Preview)
	}
}

func TestOneOutcomePerAction(t *testing.T) {
	m := fetch.NewMock(testNow)
	m.Unknown["NOPE"] = true
	p := &domain.ActionPlan{
		Description: "everything",
		Actions: []domain.Action{
			{Type: domain.ActionCompare, RawType: "compare", Symbols: []string{"AAPL", "MSFT"}},
			{Type: domain.ActionNews, RawType: "getNews", Symbols: []string{"AAPL"}},
			{Type: domain.ActionEarnings, RawType: "getEarnings", Symbols: []string{"AAPL", "MSFT"}},
			{Type: domain.ActionUnsupported, RawType: "getOptions", Symbols: []string{"AAPL"}, Reason: "unknown action type"},
			{Type: domain.ActionHistory, RawType: "getHistory", Symbols: []string{"NOPE"}},
			{Type: domain.ActionMetrics, RawType: "getMetrics", Symbols: []string{"NOPE"}, MetricNames: []string{"beta"}},
		},
	}

	c := &collector{t: t}
	out := New(mockSources(m), Options{MaxConcurrency: 2}).Dispatch(context.Background(), p, c.emit)

	want := []Status{StatusSuccess, StatusSuccess, StatusSuccess, StatusUnsupported, StatusEmpty, StatusEmpty}
	seen := map[int]int{}
	for _, ev := range c.events[1:] {
		seen[ev.Outcome.Index]++
	}
	for i, s := range want {
		if out[i].Status != s {
			t.Errorf("action %d status = %s, want %s (%v)", i, out[i].Status, s, out[i].Err)
		}
		if seen[i] != 1 {
			t.Errorf("action %d emitted %d times", i, seen[i])
		}
	}
	if !out[0].CompareMode {
		t.Error("compare action not in compare mode")
	}
	if !domain.IsCode(out[3].Err, domain.CodeUnsupportedAction) {
		t.Errorf("unsupported err = %v", out[3].Err)
	}
	if !domain.IsCode(out[4].Err, domain.CodeEmptyResult) {
		t.Errorf("empty err = %v", out[4].Err)
	}
	if got := m.Calls("earnings"); got != 1 {
		t.Errorf("earnings calls = %d, want one batched call", got)
	}
}

func TestFetchTimeout(t *testing.T) {
	m := fetch.NewMock(testNow)
	m.Delay = time.Second
	p := &domain.ActionPlan{Actions: []domain.Action{
		{Type: domain.ActionHistory, Symbols: []string{"AAPL"}},
	}}

	start := time.Now()
	out := New(mockSources(m), Options{FetchTimeout: 20 * time.Millisecond}).Dispatch(context.Background(), p, nil)
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("dispatch took %v, timeout not applied", time.Since(start))
	}
	if out[0].Status != StatusFailure || !domain.IsCode(out[0].Err, domain.CodeTimeout) {
		t.Errorf("outcome = %s %v, want timeout failure", out[0].Status, out[0].Err)
	}
}

func TestCancelledContextIsNotTimeout(t *testing.T) {
	m := fetch.NewMock(testNow)
	m.Delay = time.Second
	p := &domain.ActionPlan{Actions: []domain.Action{
		{Type: domain.ActionEarnings, Symbols: []string{"AAPL"}},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := New(mockSources(m), Options{}).Dispatch(ctx, p, nil)
	if !domain.IsCode(out[0].Err, domain.CodeFetchFailed) {
		t.Errorf("err = %v, want fetch_failed", out[0].Err)
	}
}

type gaugeHistory struct {
	active, peak atomic.Int32
}

func (g *gaugeHistory) History(ctx context.Context, symbols []string, start, end string) (map[string]domain.Series, error) {
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return map[string]domain.Series{symbols[0]: {"2024-01-02": 1}}, nil
}

func TestMaxConcurrency(t *testing.T) {
	g := &gaugeHistory{}
	p := &domain.ActionPlan{}
	for _, s := range []string{"A", "B", "C", "D", "E", "F"} {
		p.Actions = append(p.Actions, domain.Action{Type: domain.ActionHistory, Symbols: []string{s}})
	}
	New(fetch.Sources{History: g}, Options{MaxConcurrency: 2}).Dispatch(context.Background(), p, nil)
	if peak := g.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

type stubNews struct {
	mu    sync.Mutex
	delay map[string]time.Duration
	fail  map[string]bool
}

func (s *stubNews) News(ctx context.Context, symbol string) ([]domain.NewsItem, error) {
	s.mu.Lock()
	d, fail := s.delay[symbol], s.fail[symbol]
	s.mu.Unlock()
	time.Sleep(d)
	if fail {
		return nil, errors.New("no feed for " + symbol)
	}
	return []domain.NewsItem{{ID: symbol + "-1"}, {ID: symbol + "-2"}}, nil
}

func TestNewsMergedInSymbolOrder(t *testing.T) {
	news := &stubNews{
		delay: map[string]time.Duration{"AAPL": 30 * time.Millisecond},
		fail:  map[string]bool{"TSLA": true},
	}
	p := &domain.ActionPlan{Actions: []domain.Action{
		{Type: domain.ActionNews, Symbols: []string{"AAPL", "TSLA", "MSFT"}},
	}}
	out := New(fetch.Sources{News: news}, Options{}).Dispatch(context.Background(), p, nil)

	if out[0].Status != StatusSuccess {
		t.Fatalf("status = %s (%v)", out[0].Status, out[0].Err)
	}
	var ids []string
	for _, n := range out[0].News {
		ids = append(ids, n.ID)
	}
	want := []string{"AAPL-1", "AAPL-2", "MSFT-1", "MSFT-2"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestNewsAllSymbolsFail(t *testing.T) {
	news := &stubNews{fail: map[string]bool{"AAPL": true}}
	p := &domain.ActionPlan{Actions: []domain.Action{
		{Type: domain.ActionNews, Symbols: []string{"AAPL"}},
	}}
	out := New(fetch.Sources{News: news}, Options{}).Dispatch(context.Background(), p, nil)
	if out[0].Status != StatusFailure {
		t.Errorf("status = %s, want fetch_failure", out[0].Status)
	}
}

func TestMissingSource(t *testing.T) {
	p := &domain.ActionPlan{Actions: []domain.Action{
		{Type: domain.ActionEarnings, Symbols: []string{"AAPL"}},
	}}
	out := New(fetch.Sources{}, Options{}).Dispatch(context.Background(), p, nil)
	if out[0].Status != StatusFailure || !domain.IsCode(out[0].Err, domain.CodeFetchFailed) {
		t.Errorf("outcome = %s %v", out[0].Status, out[0].Err)
	}
}

func TestEmptyPlanEmitsPreviewOnly(t *testing.T) {
	c := &collector{t: t}
	out := New(fetch.Sources{}, Options{}).Dispatch(context.Background(), &domain.ActionPlan{Description: "nothing"}, c.emit)
	if len(out) != 0 || len(c.events) != 1 || c.events[0].Preview == nil {
		t.Errorf("outcomes = %d events = %d", len(out), len(c.events))
	}
	if c.events[0].Preview.KeyDates == nil {
		t.Error("preview key dates nil, want empty slice")
	}
}
