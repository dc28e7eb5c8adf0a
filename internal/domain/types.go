// Package domain defines the core types shared across stockchat: action
// plans, aligned series tables, metrics, news and earnings.
package domain

import (
	"time"

	"github.com/guregu/null/v6"
)

// DateLayout is the calendar date format used for every date key.
const DateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Queries and plans
// ---------------------------------------------------------------------------

// Query is one user submission. A newer Query supersedes all earlier ones.
type Query struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Generation  uint64    `json:"generation"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ActionType is the closed set of plan directives.
type ActionType string

const (
	ActionHistory     ActionType = "history"
	ActionCompare     ActionType = "compare"
	ActionMetrics     ActionType = "metrics"
	ActionNews        ActionType = "news"
	ActionEarnings    ActionType = "earnings"
	ActionUnsupported ActionType = "unsupported"
)

// Action is one directive within a plan.
type Action struct {
	Type        ActionType `json:"type"`
	RawType     string     `json:"rawType"`
	Symbols     []string   `json:"symbols"`
	StartDate   string     `json:"startDate,omitempty"`
	EndDate     string     `json:"endDate,omitempty"`
	MetricNames []string   `json:"metricNames,omitempty"`
	// Reason explains why an action is unsupported.
	Reason string `json:"reason,omitempty"`
}

// Supported reports whether the action can be dispatched to a fetcher.
func (a Action) Supported() bool {
	switch a.Type {
	case ActionHistory, ActionCompare, ActionMetrics, ActionNews, ActionEarnings:
		return true
	}
	return false
}

// CompareMode reports whether a history-like action renders as a
// multi-symbol comparison.
func (a Action) CompareMode() bool {
	return a.Type == ActionCompare || len(a.Symbols) > 1
}

// KeyDate annotates a notable date for a symbol on the chart.
type KeyDate struct {
	Date        string `json:"date"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
}

// ActionPlan is the validated interpretation of a query.
type ActionPlan struct {
	Description string    `json:"description"`
	Actions     []Action  `json:"actions"`
	KeyDates    []KeyDate `json:"keyDates"`
}

// Symbols returns every symbol referenced by history-like actions, in first
// appearance order.
func (p *ActionPlan) Symbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range p.Actions {
		if a.Type != ActionHistory && a.Type != ActionCompare {
			continue
		}
		for _, s := range a.Symbols {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Fetch results
// ---------------------------------------------------------------------------

// Series maps a date (DateLayout) to a closing value.
type Series map[string]float64

// RawMetrics maps symbol -> metric name -> raw value as returned upstream.
type RawMetrics map[string]map[string]any

// MetricBundle maps symbol -> metric name -> display value.
type MetricBundle map[string]map[string]any

// NewsItem is a pass-through news record.
type NewsItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Publisher string    `json:"publisher,omitempty"`
	Link      string    `json:"link,omitempty"`
	Published time.Time `json:"published"`
	Summary   string    `json:"summary,omitempty"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	Tickers   []string  `json:"tickers,omitempty"`
	Source    string    `json:"source"`
}

// HistoricalEarning is one reported fiscal year.
type HistoricalEarning struct {
	Year     int        `json:"year"`
	Earnings null.Float `json:"earnings"`
	Revenue  null.Float `json:"revenue"`
}

// UpcomingEarning is one scheduled report.
type UpcomingEarning struct {
	Date            string     `json:"date"`
	EPSEstimate     null.Float `json:"epsEstimate"`
	RevenueEstimate null.Float `json:"revenueEstimate"`
}

// Earnings groups historical and upcoming earnings for a symbol.
type Earnings struct {
	Historical []HistoricalEarning `json:"historicalEarnings"`
	Upcoming   []UpcomingEarning   `json:"upcomingEarnings"`
}

// Empty reports whether neither list carries any entry.
func (e Earnings) Empty() bool {
	return len(e.Historical) == 0 && len(e.Upcoming) == 0
}

// ---------------------------------------------------------------------------
// Query log
// ---------------------------------------------------------------------------

// QueryRecord summarises one finished query for the query log.
type QueryRecord struct {
	QueryID     string        `json:"queryId"`
	Text        string        `json:"text"`
	Description string        `json:"description"`
	Actions     int           `json:"actions"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	SubmittedAt time.Time     `json:"submittedAt"`
	Duration    time.Duration `json:"duration"`
}
