// Package dashboard prepares fetched data for display: unit-aware metric
// formatting and per-symbol series colours.
package dashboard

import (
	"fmt"
	"math"
)

// FormatLarge formats a value with T/B/M suffixes, choosing the largest unit
// the magnitude reaches. Values below one million use two plain decimals.
func FormatLarge(v float64) string {
	a := math.Abs(v)
	switch {
	case a >= 1e12:
		return fmt.Sprintf("%.2fT", v/1e12)
	case a >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case a >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	default:
		return FormatNumber(v)
	}
}

// FormatPercent formats a fraction as a percentage: 0.0123 -> "1.23%".
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// FormatNumber formats v with two decimals.
func FormatNumber(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// FormatSigned formats a delta with an explicit sign: "+1.50", "-0.25".
func FormatSigned(v float64) string {
	return fmt.Sprintf("%+.2f", v)
}

// FormatSignedPercent formats a percentage (already x100) with a sign.
func FormatSignedPercent(p float64) string {
	return fmt.Sprintf("%+.2f%%", p)
}
