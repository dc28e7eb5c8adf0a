package chart

import (
	"math"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"stockchat/internal/domain"
)

// Marker is a key date placed on the rendered chart.
type Marker struct {
	domain.KeyDate
	Value null.Float `json:"value"`
}

// Markers returns the key dates that fall on a row of t for a symbol of t.
// Key dates referencing other dates or symbols are skipped.
func Markers(t *domain.Table, keyDates []domain.KeyDate) []Marker {
	out := make([]Marker, 0, len(keyDates))
	for _, kd := range keyDates {
		row, ok := t.Row(kd.Date)
		if !ok {
			continue
		}
		v, ok := row.Values[kd.Symbol]
		if !ok {
			continue
		}
		out = append(out, Marker{KeyDate: kd, Value: v})
	}
	return out
}

// NearbyKeyDates returns the key dates within days of date, for hover
// annotations. Unparseable dates are skipped.
func NearbyKeyDates(date string, keyDates []domain.KeyDate, days int) []domain.KeyDate {
	at, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return nil
	}
	window := time.Duration(days) * 24 * time.Hour
	var out []domain.KeyDate
	for _, kd := range keyDates {
		t, err := time.Parse(domain.DateLayout, kd.Date)
		if err != nil {
			continue
		}
		if d := at.Sub(t); d >= -window && d <= window {
			out = append(out, kd)
		}
	}
	return out
}

// Delta is the change of one symbol since the selection start.
type Delta struct {
	Start   null.Float `json:"start"`
	Current null.Float `json:"current"`
	Change  null.Float `json:"change"`
	Percent null.Float `json:"percent"`
}

// Readout is the hover readout at one date.
type Readout struct {
	Date     string                `json:"date"`
	Values   map[string]null.Float `json:"values"`
	From     string                `json:"from,omitempty"`
	Deltas   map[string]Delta      `json:"deltas,omitempty"`
	KeyDates []domain.KeyDate      `json:"keyDates,omitempty"`
}

// Readout returns the hover readout at date. While a difference selection
// is active it carries each symbol's change since the selection start.
// Unknown dates report false.
func (m *Machine) Readout(date string) (Readout, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.view.Row(date)
	if !ok {
		return Readout{}, false
	}
	r := Readout{Date: date, Values: copyValues(row.Values)}
	if m.mode != ModeDifference || m.selectionStart == nil {
		return r, true
	}
	r.From = m.selectionStart.Date
	r.Deltas = make(map[string]Delta, len(row.Values))
	for sym, cur := range row.Values {
		start := m.selectionStart.Values[sym]
		d := Delta{Start: start, Current: cur}
		if start.Valid && cur.Valid {
			d.Change = null.FloatFrom(cur.Float64 - start.Float64)
			if start.Float64 != 0 {
				if p := d.Change.Float64 / start.Float64 * 100; !math.IsInf(p, 0) {
					d.Percent = null.FloatFrom(p)
				}
			}
		}
		r.Deltas[sym] = d
	}
	return r, true
}

// Title names the chart after its symbols.
func Title(symbols []string) string {
	switch len(symbols) {
	case 0:
		return ""
	case 1:
		return symbols[0] + " Stock Performance"
	}
	return strings.Join(symbols, " vs ") + " Comparison"
}
