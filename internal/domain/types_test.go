package domain

import (
	"errors"
	"testing"

	"github.com/guregu/null/v6"
)

func sampleTable() *Table {
	return &Table{
		Symbols: []string{"AAPL", "MSFT"},
		Rows: []Row{
			{Date: "2024-01-02", Values: map[string]null.Float{"AAPL": null.FloatFrom(185), "MSFT": null.FloatFrom(370)}},
			{Date: "2024-01-03", Values: map[string]null.Float{"AAPL": null.FloatFrom(184), "MSFT": {}}},
			{Date: "2024-01-04", Values: map[string]null.Float{"AAPL": null.FloatFrom(182), "MSFT": null.FloatFrom(368)}},
		},
	}
}

func TestActionSupported(t *testing.T) {
	for _, typ := range []ActionType{ActionHistory, ActionCompare, ActionMetrics, ActionNews, ActionEarnings} {
		if !(Action{Type: typ}).Supported() {
			t.Errorf("Action{%s}.Supported() = false, want true", typ)
		}
	}
	if (Action{Type: ActionUnsupported}).Supported() {
		t.Error("unsupported action reported as supported")
	}
}

func TestCompareMode(t *testing.T) {
	if (Action{Type: ActionHistory, Symbols: []string{"AAPL"}}).CompareMode() {
		t.Error("single-symbol history should not be compare mode")
	}
	if !(Action{Type: ActionHistory, Symbols: []string{"AAPL", "MSFT"}}).CompareMode() {
		t.Error("multi-symbol history should be compare mode")
	}
	if !(Action{Type: ActionCompare, Symbols: []string{"AAPL"}}).CompareMode() {
		t.Error("compare action should always be compare mode")
	}
}

func TestPlanSymbols(t *testing.T) {
	p := &ActionPlan{Actions: []Action{
		{Type: ActionHistory, Symbols: []string{"AAPL"}},
		{Type: ActionMetrics, Symbols: []string{"TSLA"}},
		{Type: ActionCompare, Symbols: []string{"MSFT", "AAPL"}},
	}}
	got := p.Symbols()
	if len(got) != 2 || got[0] != "AAPL" || got[1] != "MSFT" {
		t.Errorf("Symbols() = %v, want [AAPL MSFT]", got)
	}
}

func TestTableLookup(t *testing.T) {
	tbl := sampleTable()
	if i := tbl.IndexOf("2024-01-03"); i != 1 {
		t.Errorf("IndexOf(2024-01-03) = %d, want 1", i)
	}
	if i := tbl.IndexOf("2024-02-30"); i != -1 {
		t.Errorf("IndexOf(2024-02-30) = %d, want -1", i)
	}
	if tbl.First() != "2024-01-02" || tbl.Last() != "2024-01-04" {
		t.Errorf("First/Last = %s/%s", tbl.First(), tbl.Last())
	}
	var nilTable *Table
	if !nilTable.Empty() || nilTable.IndexOf("2024-01-02") != -1 {
		t.Error("nil table should be empty")
	}
}

func TestTableBetweenDoesNotMutate(t *testing.T) {
	tbl := sampleTable()
	sub := tbl.Between("2024-01-03", "2024-01-04")
	if sub.Len() != 2 {
		t.Fatalf("Between len = %d, want 2", sub.Len())
	}
	sub.Rows[0].Values["AAPL"] = null.FloatFrom(0)
	if tbl.Rows[1].Values["AAPL"].Float64 != 184 {
		t.Error("Between result shares row maps with the source table")
	}
	if tbl.Len() != 3 {
		t.Errorf("source len = %d, want 3", tbl.Len())
	}
}

func TestCodedError(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(CodeFetchFailed, "history AAPL", cause)
	if !IsCode(err, CodeFetchFailed) {
		t.Errorf("IsCode(%v, fetch_failed) = false", err)
	}
	if !errors.Is(err, cause) {
		t.Error("coded error does not unwrap to its cause")
	}
	wrapped := errors.Join(errors.New("outer"), err)
	if CodeOf(wrapped) != CodeFetchFailed {
		t.Errorf("CodeOf(wrapped) = %q", CodeOf(wrapped))
	}
	if IsCode(nil, CodeFetchFailed) {
		t.Error("IsCode(nil) = true")
	}
}
