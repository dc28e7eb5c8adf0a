package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"stockchat/internal/domain"
)

func date(s string) time.Time {
	t, _ := time.Parse(domain.DateLayout, s)
	return t
}

func TestParquetCachePath(t *testing.T) {
	c := NewParquetCache("/data")
	want := filepath.Join("/data", "daily", "AAPL", "2024.parquet")
	if got := c.path("aapl", 2024); got != want {
		t.Errorf("path mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestParquetCacheSaveLoad(t *testing.T) {
	c := NewParquetCache(t.TempDir())
	fetched := time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fetched }
	ctx := context.Background()

	// Spans a year boundary to exercise both files.
	series := domain.Series{
		"2023-12-28": 193.58,
		"2023-12-29": 192.53,
		"2024-01-02": 185.64,
		"2024-01-03": 184.25,
	}
	if err := c.Save(ctx, "AAPL", series); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, at, ok, err := c.Load(ctx, "AAPL", date("2023-12-29"), date("2024-01-02"))
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	want := domain.Series{"2023-12-29": 192.53, "2024-01-02": 185.64}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
	if !at.Equal(fetched) {
		t.Errorf("fetchedAt = %v, want %v", at, fetched)
	}

	if _, _, ok, _ := c.Load(ctx, "MSFT", date("2024-01-01"), date("2024-02-01")); ok {
		t.Error("Load of uncached symbol reported ok")
	}

	symbols, err := c.ListSymbols(ctx)
	if err != nil || len(symbols) != 1 || symbols[0] != "AAPL" {
		t.Errorf("ListSymbols = %v, %v", symbols, err)
	}
}

func TestParquetCacheMergeReplaces(t *testing.T) {
	c := NewParquetCache(t.TempDir())
	ctx := context.Background()

	if err := c.Save(ctx, "MSFT", domain.Series{"2024-01-02": 370.0, "2024-01-03": 371.0}); err != nil {
		t.Fatal(err)
	}
	if err := c.Save(ctx, "MSFT", domain.Series{"2024-01-03": 372.5, "2024-01-04": 368.0}); err != nil {
		t.Fatal(err)
	}
	got, _, _, err := c.Load(ctx, "MSFT", date("2024-01-01"), date("2024-01-31"))
	if err != nil {
		t.Fatal(err)
	}
	want := domain.Series{"2024-01-02": 370.0, "2024-01-03": 372.5, "2024-01-04": 368.0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
}

func TestParquetCachePrune(t *testing.T) {
	dir := t.TempDir()
	c := NewParquetCache(dir)
	ctx := context.Background()

	if err := c.Save(ctx, "OLD", domain.Series{"2024-01-02": 1}); err != nil {
		t.Fatal(err)
	}
	if err := c.Save(ctx, "NEW", domain.Series{"2024-01-02": 2}); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(c.path("OLD", 2024), old, old); err != nil {
		t.Fatal(err)
	}

	n, err := c.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	if _, err := os.Stat(c.path("NEW", 2024)); err != nil {
		t.Errorf("fresh file removed: %v", err)
	}
}

func TestParquetCachePruneEmptyDir(t *testing.T) {
	n, err := NewParquetCache(t.TempDir()).Prune(context.Background(), time.Hour)
	if err != nil || n != 0 {
		t.Errorf("Prune on empty cache = %d, %v", n, err)
	}
}

func TestSQLiteLog(t *testing.T) {
	log, err := NewSQLiteLog(filepath.Join(t.TempDir(), "queries.db"))
	if err != nil {
		t.Fatalf("NewSQLiteLog: %v", err)
	}
	defer log.Close()
	ctx := context.Background()

	base := time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC)
	for i, text := range []string{"apple", "compare apple and microsoft", "tesla news"} {
		rec := domain.QueryRecord{
			QueryID:     text,
			Text:        text,
			Description: "plan for " + text,
			Actions:     i + 1,
			Succeeded:   i + 1,
			Status:      "ready",
			SubmittedAt: base.Add(time.Duration(i) * time.Minute),
			Duration:    1500 * time.Millisecond,
		}
		if err := log.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	recent, err := log.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len = %d, want 2", len(recent))
	}
	if recent[0].Text != "tesla news" || recent[1].Text != "compare apple and microsoft" {
		t.Errorf("order = %q, %q", recent[0].Text, recent[1].Text)
	}
	if recent[0].Duration != 1500*time.Millisecond || !recent[0].SubmittedAt.Equal(base.Add(2*time.Minute)) {
		t.Errorf("record = %+v", recent[0])
	}

	n, err := log.DeleteBefore(ctx, base.Add(90*time.Second))
	if err != nil || n != 2 {
		t.Errorf("DeleteBefore = %d, %v", n, err)
	}
}
