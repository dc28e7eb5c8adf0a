// Package align merges per-symbol date series into one rectangular table.
package align

import (
	"fmt"
	"sort"
	"strings"

	"github.com/guregu/null/v6"

	"stockchat/internal/domain"
)

// AxisPolicy chooses which dates form the table's date axis.
type AxisPolicy string

const (
	// AxisUnion uses every date present in any series.
	AxisUnion AxisPolicy = "union"
	// AxisPrimary uses only the first symbol's dates.
	AxisPrimary AxisPolicy = "primary"
)

// ParseAxisPolicy parses a configured policy name; "" means AxisUnion.
func ParseAxisPolicy(s string) (AxisPolicy, error) {
	switch AxisPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", AxisUnion:
		return AxisUnion, nil
	case AxisPrimary:
		return AxisPrimary, nil
	}
	return "", fmt.Errorf("unknown axis policy %q", s)
}

// Align builds a table with one column per symbol (in the given order) and
// one row per axis date, ascending. Values missing from a series are left
// absent. An empty axis yields an empty table, never an error.
func Align(symbols []string, series map[string]domain.Series, policy AxisPolicy) *domain.Table {
	t := &domain.Table{Symbols: dedupe(symbols), Rows: []domain.Row{}}
	if len(t.Symbols) == 0 {
		return t
	}

	for _, date := range axis(t.Symbols, series, policy) {
		row := domain.Row{Date: date, Values: make(map[string]null.Float, len(t.Symbols))}
		for _, s := range t.Symbols {
			if v, ok := series[s][date]; ok {
				row.Values[s] = null.FloatFrom(v)
			} else {
				row.Values[s] = null.Float{}
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func axis(symbols []string, series map[string]domain.Series, policy AxisPolicy) []string {
	set := make(map[string]struct{})
	if policy == AxisPrimary {
		for d := range series[symbols[0]] {
			set[d] = struct{}{}
		}
	} else {
		for _, s := range symbols {
			for d := range series[s] {
				set[d] = struct{}{}
			}
		}
	}
	dates := make([]string, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
