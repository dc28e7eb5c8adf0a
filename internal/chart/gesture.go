package chart

import (
	"math"

	"github.com/guregu/null/v6"
)

// GestureKind is the phase of a single-pointer gesture.
type GestureKind string

const (
	GestureStart GestureKind = "start"
	GestureMove  GestureKind = "move"
	GestureEnd   GestureKind = "end"
)

// Gesture is an input event already resolved to the date domain. Pointer
// and touch input both reduce to this shape.
type Gesture struct {
	Kind   GestureKind           `json:"kind"`
	Date   string                `json:"date,omitempty"`
	Values map[string]null.Float `json:"values,omitempty"`
}

// ProjectIndex maps an offset along an axis of width axisWidth onto one of
// rows evenly spaced positions: round(offsetX/axisWidth*(rows-1)), clamped
// to the valid range. It reports false when there is nothing to project
// onto.
func ProjectIndex(offsetX, axisWidth float64, rows int) (int, bool) {
	if rows <= 0 || axisWidth <= 0 || math.IsNaN(offsetX) || math.IsNaN(axisWidth) {
		return 0, false
	}
	f := math.Round(offsetX / axisWidth * float64(rows-1))
	switch {
	case f < 0:
		return 0, true
	case f > float64(rows-1):
		return rows - 1, true
	}
	return int(f), true
}

// PointerInput is a raw pointer or touch event: the horizontal offset from
// the left edge of the plotted axis and the axis width, both in pixels.
type PointerInput struct {
	Kind      GestureKind `json:"kind"`
	OffsetX   float64     `json:"offsetX"`
	AxisWidth float64     `json:"axisWidth"`
}

// Feed resolves a pointer or touch event against the rendered view and
// applies it. End events need no position.
func (m *Machine) Feed(in PointerInput) {
	g := Gesture{Kind: in.Kind}
	if in.Kind != GestureEnd {
		p, ok := m.Resolve(in.OffsetX, in.AxisWidth)
		if !ok {
			return
		}
		g.Date, g.Values = p.Date, p.Values
	}
	m.Handle(g)
}
