// Package chart owns the interactive selection state of the multi-series
// price chart: zoom, difference and view modes driven by pointer or touch
// gestures.
package chart

import "fmt"

// Mode is the active gesture interpretation.
type Mode string

const (
	ModeZoom       Mode = "zoom"
	ModeDifference Mode = "difference"
	ModeView       Mode = "view"
)

// Next returns the mode after m in the zoom -> difference -> view cycle.
func (m Mode) Next() Mode {
	switch m {
	case ModeZoom:
		return ModeDifference
	case ModeDifference:
		return ModeView
	default:
		return ModeZoom
	}
}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeZoom, ModeDifference, ModeView:
		return m, nil
	}
	return "", fmt.Errorf("unknown chart mode %q", s)
}
