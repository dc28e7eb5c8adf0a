package align

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/guregu/null/v6"

	"stockchat/internal/domain"
)

func fixture() map[string]domain.Series {
	return map[string]domain.Series{
		"AAPL": {"2024-01-03": 184.25, "2024-01-02": 185.64, "2024-01-04": 181.91},
		"MSFT": {"2024-01-02": 370.87, "2024-01-04": 367.94, "2024-01-05": 367.75},
	}
}

func TestAlignPrimary(t *testing.T) {
	got := Align([]string{"AAPL", "MSFT"}, fixture(), AxisPrimary)
	want := &domain.Table{
		Symbols: []string{"AAPL", "MSFT"},
		Rows: []domain.Row{
			{Date: "2024-01-02", Values: map[string]null.Float{"AAPL": null.FloatFrom(185.64), "MSFT": null.FloatFrom(370.87)}},
			{Date: "2024-01-03", Values: map[string]null.Float{"AAPL": null.FloatFrom(184.25), "MSFT": {}}},
			{Date: "2024-01-04", Values: map[string]null.Float{"AAPL": null.FloatFrom(181.91), "MSFT": null.FloatFrom(367.94)}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Align(primary) mismatch (-want +got):\n%s", diff)
	}
}

func TestAlignUnion(t *testing.T) {
	got := Align([]string{"AAPL", "MSFT"}, fixture(), AxisUnion)
	if got.Len() != 4 {
		t.Fatalf("len = %d, want 4", got.Len())
	}
	last := got.Rows[3]
	if last.Date != "2024-01-05" {
		t.Errorf("last date = %s, want 2024-01-05", last.Date)
	}
	if last.Values["AAPL"].Valid {
		t.Error("AAPL should be absent on 2024-01-05")
	}
	if _, ok := last.Values["AAPL"]; !ok {
		t.Error("AAPL key dropped from row")
	}
	for i := 1; i < got.Len(); i++ {
		if got.Rows[i-1].Date >= got.Rows[i].Date {
			t.Errorf("dates not strictly increasing at %d: %s >= %s", i, got.Rows[i-1].Date, got.Rows[i].Date)
		}
	}
}

func TestAlignEveryRowHasEverySymbol(t *testing.T) {
	series := fixture()
	series["TSLA"] = domain.Series{}
	got := Align([]string{"AAPL", "MSFT", "TSLA"}, series, AxisUnion)
	for _, r := range got.Rows {
		if len(r.Values) != 3 {
			t.Errorf("row %s has %d values, want 3", r.Date, len(r.Values))
		}
	}
}

func TestAlignEmptyPrimary(t *testing.T) {
	series := fixture()
	got := Align([]string{"ZZZZ", "AAPL"}, series, AxisPrimary)
	if !got.Empty() {
		t.Errorf("len = %d, want empty table", got.Len())
	}
	if diff := cmp.Diff([]string{"ZZZZ", "AAPL"}, got.Symbols); diff != "" {
		t.Errorf("symbols mismatch (-want +got):\n%s", diff)
	}
}

func TestAlignNoSymbols(t *testing.T) {
	if got := Align(nil, fixture(), AxisUnion); !got.Empty() {
		t.Errorf("len = %d, want 0", got.Len())
	}
}

func TestAlignIdempotent(t *testing.T) {
	a := Align([]string{"AAPL", "MSFT"}, fixture(), AxisUnion)
	b := Align([]string{"AAPL", "MSFT"}, fixture(), AxisUnion)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("second alignment differs (-first +second):\n%s", diff)
	}
}

func TestParseAxisPolicy(t *testing.T) {
	for in, want := range map[string]AxisPolicy{"": AxisUnion, "UNION": AxisUnion, "primary": AxisPrimary} {
		got, err := ParseAxisPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseAxisPolicy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseAxisPolicy("intersection"); err == nil {
		t.Error("ParseAxisPolicy(intersection) returned nil error")
	}
}
