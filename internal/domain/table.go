package domain

import (
	"sort"

	"github.com/guregu/null/v6"
)

// Row is one date of an aligned table. Every table symbol is a key of
// Values; an invalid null.Float marks an absent value.
type Row struct {
	Date   string                `json:"date"`
	Values map[string]null.Float `json:"values"`
}

// Table is a rectangular, date-ascending merge of per-symbol series.
type Table struct {
	Symbols []string `json:"symbols"`
	Rows    []Row    `json:"rows"`
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool { return t.Len() == 0 }

// IndexOf returns the row index of date, or -1.
func (t *Table) IndexOf(date string) int {
	if t == nil {
		return -1
	}
	i := sort.Search(len(t.Rows), func(i int) bool { return t.Rows[i].Date >= date })
	if i < len(t.Rows) && t.Rows[i].Date == date {
		return i
	}
	return -1
}

// Row returns the row for date.
func (t *Table) Row(date string) (Row, bool) {
	i := t.IndexOf(date)
	if i < 0 {
		return Row{}, false
	}
	return t.Rows[i], true
}

// HasSymbol reports whether symbol is one of the table's columns.
func (t *Table) HasSymbol(symbol string) bool {
	if t == nil {
		return false
	}
	for _, s := range t.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// First returns the first date, or "" for an empty table.
func (t *Table) First() string {
	if t.Empty() {
		return ""
	}
	return t.Rows[0].Date
}

// Last returns the last date, or "" for an empty table.
func (t *Table) Last() string {
	if t.Empty() {
		return ""
	}
	return t.Rows[len(t.Rows)-1].Date
}

// Between returns a new table holding the rows within [from, to]
// inclusive. The receiver is not modified.
func (t *Table) Between(from, to string) *Table {
	out := &Table{Symbols: append([]string(nil), t.Symbols...)}
	for _, r := range t.Rows {
		if r.Date >= from && r.Date <= to {
			out.Rows = append(out.Rows, r.clone())
		}
	}
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		Symbols: append([]string(nil), t.Symbols...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = r.clone()
	}
	return out
}

func (r Row) clone() Row {
	values := make(map[string]null.Float, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return Row{Date: r.Date, Values: values}
}
