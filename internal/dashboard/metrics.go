package dashboard

import (
	"encoding/json"
	"math"

	"stockchat/internal/domain"
)

// MetricClass selects the display transform for a metric.
type MetricClass int

const (
	ClassDefault MetricClass = iota
	ClassMagnitude
	ClassRatio
)

var magnitudeMetrics = map[string]bool{
	"marketCap":         true,
	"totalCash":         true,
	"freeCashflow":      true,
	"operatingCashflow": true,
	"netIncomeToCommon": true,
}

var ratioMetrics = map[string]bool{
	"dividendYield":     true,
	"profitMargins":     true,
	"operatingMargins":  true,
	"grossMargins":      true,
	"returnOnEquity":    true,
	"earningsGrowth":    true,
	"revenueGrowth":     true,
	"52WeekChange":      true,
	"SandP52WeekChange": true,
}

// Classify returns the display class of a metric name.
func Classify(name string) MetricClass {
	switch {
	case magnitudeMetrics[name]:
		return ClassMagnitude
	case ratioMetrics[name]:
		return ClassRatio
	default:
		return ClassDefault
	}
}

// FormatMetric formats one raw metric value. Non-numeric values are returned
// unchanged; non-finite input or output falls back to plain formatting.
func FormatMetric(name string, raw any) any {
	v, ok := numeric(raw)
	if !ok {
		return raw
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return FormatNumber(v)
	}
	switch Classify(name) {
	case ClassMagnitude:
		return FormatLarge(v)
	case ClassRatio:
		if p := v * 100; math.IsInf(p, 0) {
			return FormatNumber(v)
		}
		return FormatPercent(v)
	default:
		return FormatNumber(v)
	}
}

// NormalizeMetrics formats every value of a raw bundle into a new bundle.
// The input is not modified.
func NormalizeMetrics(raw domain.RawMetrics) domain.MetricBundle {
	out := make(domain.MetricBundle, len(raw))
	for symbol, metrics := range raw {
		formatted := make(map[string]any, len(metrics))
		for name, v := range metrics {
			formatted[name] = FormatMetric(name, v)
		}
		out[symbol] = formatted
	}
	return out
}

func numeric(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
