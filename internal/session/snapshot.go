package session

import (
	"time"

	"stockchat/internal/chart"
	"stockchat/internal/dispatch"
	"stockchat/internal/domain"
)

// Status is the top-level lifecycle of the current query.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusInterpreting Status = "interpreting"
	StatusFetching     Status = "fetching"
	StatusReady        Status = "ready"
	StatusError        Status = "error"
)

// Section names group action results by the panel they feed.
const (
	SectionChart    = "chart"
	SectionMetrics  = "metrics"
	SectionNews     = "news"
	SectionEarnings = "earnings"
)

// SectionLoading marks a section whose actions have not completed.
const SectionLoading dispatch.Status = "loading"

// Section is the state of one panel.
type Section struct {
	Status  dispatch.Status `json:"status"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Pending int             `json:"pending"`
}

// Diagnostic reports an action that did not succeed.
type Diagnostic struct {
	Index   int             `json:"index"`
	Action  string          `json:"action"`
	Symbols []string        `json:"symbols"`
	Status  dispatch.Status `json:"status"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message"`
}

// Snapshot is an immutable copy of the renderable state.
type Snapshot struct {
	Query       *domain.Query `json:"query,omitempty"`
	Status      Status        `json:"status"`
	Loading     bool          `json:"loading"`
	Error       string        `json:"error,omitempty"`
	ErrorCode   string        `json:"errorCode,omitempty"`
	Description string        `json:"description,omitempty"`

	KeyDates    []domain.KeyDate  `json:"keyDates"`
	Title       string            `json:"title,omitempty"`
	CompareMode bool              `json:"compareMode"`
	Symbols     []string          `json:"symbols"`
	Colors      map[string]string `json:"colors"`
	Table       *domain.Table     `json:"table"`
	Selection   chart.State       `json:"selection"`
	Markers     []chart.Marker    `json:"markers"`

	Metrics  domain.MetricBundle        `json:"metrics"`
	News     []domain.NewsItem          `json:"news"`
	Earnings map[string]domain.Earnings `json:"earnings"`

	Sections    map[string]Section `json:"sections"`
	Diagnostics []Diagnostic       `json:"diagnostics"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

func sectionOf(t domain.ActionType) string {
	switch t {
	case domain.ActionHistory, domain.ActionCompare:
		return SectionChart
	case domain.ActionMetrics:
		return SectionMetrics
	case domain.ActionNews:
		return SectionNews
	case domain.ActionEarnings:
		return SectionEarnings
	}
	return ""
}

// rank orders section outcomes; a section shows its best result.
func rank(s dispatch.Status) int {
	switch s {
	case dispatch.StatusSuccess:
		return 3
	case dispatch.StatusEmpty:
		return 2
	case dispatch.StatusFailure:
		return 1
	}
	return 0
}
