// Package plan turns the interpreter's loosely typed response into a
// validated domain.ActionPlan.
package plan

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stockchat/internal/domain"
)

// DefaultMetrics is substituted when a metrics action names no metrics.
var DefaultMetrics = []string{
	"marketCap",
	"trailingPE",
	"forwardPE",
	"dividendYield",
	"beta",
	"fiftyTwoWeekHigh",
	"fiftyTwoWeekLow",
}

// rawTypes maps interpreter action names to action types. Short names are
// accepted alongside the interpreter's verb forms.
var rawTypes = map[string]domain.ActionType{
	"gethistory":  domain.ActionHistory,
	"history":     domain.ActionHistory,
	"compare":     domain.ActionCompare,
	"getmetrics":  domain.ActionMetrics,
	"metrics":     domain.ActionMetrics,
	"getnews":     domain.ActionNews,
	"news":        domain.ActionNews,
	"getearnings": domain.ActionEarnings,
	"earnings":    domain.ActionEarnings,
}

// Validator converts raw interpreter output into an ActionPlan.
type Validator struct {
	defaultMetrics []string
	now            func() time.Time
	log            *slog.Logger
}

// NewValidator creates a Validator substituting defaults for metrics
// actions without metric names. A nil or empty defaults uses DefaultMetrics.
func NewValidator(defaults []string) *Validator {
	if len(defaults) == 0 {
		defaults = DefaultMetrics
	}
	return &Validator{
		defaultMetrics: append([]string(nil), defaults...),
		now:            time.Now,
		log:            slog.Default().With("component", "plan"),
	}
}

// WithClock overrides the clock used to resolve "current" end dates.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate checks raw (a decoded JSON object) and returns the typed plan.
// It fails only when the payload is not an object or has no actions list;
// everything else degrades to defaults or unsupported markers.
func (v *Validator) Validate(raw any) (*domain.ActionPlan, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, malformed("response is not an object, got %T", raw)
	}
	rawActions, ok := obj["actions"]
	if !ok || rawActions == nil {
		return nil, malformed("response has no actions list")
	}
	list, ok := rawActions.([]any)
	if !ok {
		return nil, malformed("actions is %T, want a list", rawActions)
	}

	p := &domain.ActionPlan{
		Description: stringField(obj, "description"),
		Actions:     make([]domain.Action, 0, len(list)),
	}
	for i, item := range list {
		p.Actions = append(p.Actions, v.action(i, item))
	}
	p.KeyDates = keyDates(obj["keyDates"])
	return p, nil
}

func (v *Validator) action(i int, item any) domain.Action {
	obj, ok := item.(map[string]any)
	if !ok {
		return domain.Action{
			Type:    domain.ActionUnsupported,
			RawType: fmt.Sprintf("%v", item),
			Reason:  "action is not an object",
		}
	}

	rawType := stringField(obj, "type")
	a := domain.Action{RawType: rawType}
	typ, known := rawTypes[strings.ToLower(strings.TrimSpace(rawType))]
	if !known {
		a.Type = domain.ActionUnsupported
		a.Reason = fmt.Sprintf("unsupported action type %q", rawType)
		a.Symbols = symbols(obj)
		v.log.Debug("unsupported action", "index", i, "type", rawType)
		return a
	}
	a.Type = typ
	a.Symbols = symbols(obj)
	if len(a.Symbols) == 0 {
		a.Type = domain.ActionUnsupported
		a.Reason = "action names no symbols"
		return a
	}

	if typ == domain.ActionHistory || typ == domain.ActionCompare {
		a.StartDate = v.date(stringField(obj, "startDate"))
		a.EndDate = v.date(stringField(obj, "endDate"))
		if a.StartDate != "" && a.EndDate != "" && a.StartDate > a.EndDate {
			a.StartDate, a.EndDate = a.EndDate, a.StartDate
		}
	}

	if typ == domain.ActionMetrics {
		names := stringList(obj["metricNames"])
		if len(names) == 0 {
			names = stringList(obj["metrics"])
		}
		if len(names) == 0 {
			names = append([]string(nil), v.defaultMetrics...)
		}
		a.MetricNames = names
	}
	return a
}

// date normalizes a plan date. "current" resolves to today; unparseable
// dates are dropped so the fetcher falls back to its default range.
func (v *Validator) date(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.EqualFold(s, "current") || strings.EqualFold(s, "today") {
		return v.now().Format(domain.DateLayout)
	}
	if len(s) > len(domain.DateLayout) {
		s = s[:len(domain.DateLayout)]
	}
	if _, err := time.Parse(domain.DateLayout, s); err != nil {
		v.log.Debug("dropping unparseable date", "date", s)
		return ""
	}
	return s
}

// keyDates reads the keyDates list. Items without a date are skipped.
func keyDates(raw any) []domain.KeyDate {
	list, _ := raw.([]any)
	out := make([]domain.KeyDate, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		date := strings.TrimSpace(stringField(obj, "date"))
		if date == "" {
			continue
		}
		out = append(out, domain.KeyDate{
			Date:        date,
			Symbol:      strings.ToUpper(strings.TrimSpace(stringField(obj, "symbol"))),
			Description: stringField(obj, "description"),
		})
	}
	return out
}

// symbols reads "symbols" (list) falling back to "symbol" (string),
// upper-cased with duplicates removed.
func symbols(obj map[string]any) []string {
	names := stringList(obj["symbols"])
	if len(names) == 0 {
		if s := stringField(obj, "symbol"); s != "" {
			names = []string{s}
		}
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToUpper(n)
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// stringList returns the non-blank strings of a list (or a lone string).
func stringList(raw any) []string {
	switch v := raw.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

func malformed(format string, args ...any) error {
	return domain.NewError(domain.CodeMalformedPlan, fmt.Sprintf(format, args...), nil)
}
