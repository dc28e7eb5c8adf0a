package chart

import (
	"log/slog"
	"sync"

	"github.com/guregu/null/v6"

	"stockchat/internal/domain"
)

// Point is a date together with the per-symbol values at that date.
type Point struct {
	Date   string                `json:"date"`
	Values map[string]null.Float `json:"values"`
}

// Window is the committed date range of the rendered view.
type Window struct {
	From string `json:"from"`
	To   string `json:"to"`
	// Full is set while the window spans the whole canonical table.
	Full bool `json:"full"`
}

// State is a read-only snapshot of the selection state.
type State struct {
	Mode           Mode   `json:"mode"`
	PendingLeft    string `json:"pendingLeft,omitempty"`
	PendingRight   string `json:"pendingRight,omitempty"`
	SelectionStart *Point `json:"selectionStart,omitempty"`
	Window         Window `json:"window"`
	Rows           int    `json:"rows"`
}

// Machine is the chart selection state machine. It keeps the canonical
// table untouched and derives the rendered view from it. Safe for
// concurrent use.
type Machine struct {
	mu             sync.RWMutex
	mode           Mode
	canonical      *domain.Table
	view           *domain.Table
	pendingLeft    string
	pendingRight   string
	selectionStart *Point
	window         Window
	log            *slog.Logger
}

// NewMachine creates a Machine in zoom mode with an empty table.
func NewMachine() *Machine {
	m := &Machine{
		mode: ModeZoom,
		log:  slog.Default().With("component", "chart"),
	}
	m.Load(nil)
	return m
}

// Load installs a new canonical table. The selection and window are reset;
// the mode is kept.
func (m *Machine) Load(t *domain.Table) {
	if t == nil {
		t = &domain.Table{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canonical = t.Clone()
	m.resetLocked()
}

// Mode returns the active mode.
func (m *Machine) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// ToggleMode advances to the next mode. Pending selection state is kept, so
// the next gesture end is interpreted by the new mode.
func (m *Machine) ToggleMode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = m.mode.Next()
	return m.mode
}

// SetMode switches directly to mode.
func (m *Machine) SetMode(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// Handle applies one gesture event.
func (m *Machine) Handle(g Gesture) {
	switch g.Kind {
	case GestureStart:
		m.Start(g.Date, g.Values)
	case GestureMove:
		m.Move(g.Date)
	case GestureEnd:
		m.End()
	}
}

// Start begins a selection at date. values are the per-symbol values under
// the pointer; when nil they are read from the rendered view. No-op in view
// mode or when date is empty.
func (m *Machine) Start(date string, values map[string]null.Float) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == ModeView || date == "" {
		return
	}
	m.pendingLeft = date
	m.pendingRight = ""
	if m.mode == ModeDifference {
		if values == nil {
			if row, ok := m.view.Row(date); ok {
				values = row.Values
			}
		}
		m.selectionStart = &Point{Date: date, Values: copyValues(values)}
	}
}

// Move extends the pending selection to date.
func (m *Machine) Move(date string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == ModeView || m.pendingLeft == "" || date == "" {
		return
	}
	m.pendingRight = date
}

// End finishes the gesture according to the current mode.
func (m *Machine) End() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.mode {
	case ModeView:
		return
	case ModeZoom:
		m.commitZoomLocked()
	case ModeDifference:
		m.selectionStart = nil
	}
	m.pendingLeft, m.pendingRight = "", ""
}

func (m *Machine) commitZoomLocked() {
	left, right := m.pendingLeft, m.pendingRight
	if left == "" || right == "" || left == right {
		return
	}
	if left > right {
		left, right = right, left
	}
	m.view = m.canonical.Between(left, right)
	m.window = Window{From: left, To: right}
	m.log.Debug("zoom committed", "from", left, "to", right, "rows", m.view.Len())
}

// Reset restores the canonical table and the full-extent window in any
// mode, discarding any pending selection.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Machine) resetLocked() {
	m.view = m.canonical.Clone()
	m.window = Window{From: m.canonical.First(), To: m.canonical.Last(), Full: true}
	m.pendingLeft, m.pendingRight = "", ""
	m.selectionStart = nil
}

// View returns a copy of the rendered table.
func (m *Machine) View() *domain.Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view.Clone()
}

// Canonical returns a copy of the full table.
func (m *Machine) Canonical() *domain.Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.canonical.Clone()
}

// State returns a snapshot of the selection state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := State{
		Mode:         m.mode,
		PendingLeft:  m.pendingLeft,
		PendingRight: m.pendingRight,
		Window:       m.window,
		Rows:         m.view.Len(),
	}
	if m.selectionStart != nil {
		s.SelectionStart = &Point{Date: m.selectionStart.Date, Values: copyValues(m.selectionStart.Values)}
	}
	return s
}

// Resolve maps a horizontal pixel offset on the plotted axis to a point of
// the rendered view.
func (m *Machine) Resolve(offsetX, axisWidth float64) (Point, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := ProjectIndex(offsetX, axisWidth, m.view.Len())
	if !ok {
		return Point{}, false
	}
	r := m.view.Rows[i]
	return Point{Date: r.Date, Values: copyValues(r.Values)}, true
}

func copyValues(v map[string]null.Float) map[string]null.Float {
	if v == nil {
		return nil
	}
	out := make(map[string]null.Float, len(v))
	for k, f := range v {
		out[k] = f
	}
	return out
}
