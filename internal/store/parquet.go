package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"stockchat/internal/domain"
)

// Compile-time interface check.
var _ SeriesCache = (*ParquetCache)(nil)

// ParquetCache implements SeriesCache using Parquet files on disk.
type ParquetCache struct {
	DataDir string
	now     func() time.Time
}

// NewParquetCache creates a new ParquetCache rooted at the given data directory.
func NewParquetCache(dataDir string) *ParquetCache {
	return &ParquetCache{DataDir: dataDir, now: time.Now}
}

// CloseRecord is the Parquet schema for one cached daily close.
type CloseRecord struct {
	Symbol    string  `parquet:"symbol"`
	Date      int64   `parquet:"date,timestamp(millisecond)"` // UTC midnight, Unix ms
	Close     float64 `parquet:"close"`
	FetchedAt int64   `parquet:"fetched_at,timestamp(millisecond)"`
}

// Save writes closes grouped by year to:
//
//	<DataDir>/daily/<SYMBOL>/<YYYY>.parquet
func (c *ParquetCache) Save(_ context.Context, symbol string, series domain.Series) error {
	if len(series) == 0 {
		return nil
	}
	symbol = strings.ToUpper(symbol)
	fetchedAt := c.now().UnixMilli()

	groups := make(map[int][]CloseRecord)
	for date, v := range series {
		d, err := time.Parse(domain.DateLayout, date)
		if err != nil {
			continue
		}
		groups[d.Year()] = append(groups[d.Year()], CloseRecord{
			Symbol:    symbol,
			Date:      d.UnixMilli(),
			Close:     v,
			FetchedAt: fetchedAt,
		})
	}

	for year, records := range groups {
		path := c.path(symbol, year)
		existing, _ := readParquetFile[CloseRecord](path)
		if err := writeParquetFile(path, mergeCloseRecords(existing, records)); err != nil {
			return fmt.Errorf("writing closes for %s/%d: %w", symbol, year, err)
		}
	}
	return nil
}

// Load reads the cached closes for symbol within [start, end]. fetchedAt is
// the oldest fetch time among the returned rows.
func (c *ParquetCache) Load(_ context.Context, symbol string, start, end time.Time) (domain.Series, time.Time, bool, error) {
	symbol = strings.ToUpper(symbol)
	series := domain.Series{}
	var oldest int64
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := readParquetFile[CloseRecord](c.path(symbol, year))
		if err != nil {
			// File doesn't exist for this year, skip.
			continue
		}
		for _, r := range records {
			d := time.UnixMilli(r.Date).UTC()
			if d.Before(start) || d.After(end) {
				continue
			}
			series[d.Format(domain.DateLayout)] = r.Close
			if oldest == 0 || r.FetchedAt < oldest {
				oldest = r.FetchedAt
			}
		}
	}
	if len(series) == 0 {
		return nil, time.Time{}, false, nil
	}
	return series, time.UnixMilli(oldest), true, nil
}

// ListSymbols lists all symbols that have cached closes.
func (c *ParquetCache) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.DataDir, "daily"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Prune removes cache files not written within maxAge and returns how many
// were removed.
func (c *ParquetCache) Prune(_ context.Context, maxAge time.Duration) (int, error) {
	root := filepath.Join(c.DataDir, "daily")
	cutoff := c.now().Add(-maxAge)
	removed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".parquet" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// path returns the filesystem path for a year file.
// Layout: <dataDir>/daily/<SYMBOL>/<YYYY>.parquet
func (c *ParquetCache) path(symbol string, year int) string {
	return filepath.Join(c.DataDir, "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeCloseRecords deduplicates records by date, preferring incoming
// records over existing ones. Results are sorted by date.
func mergeCloseRecords(existing, incoming []CloseRecord) []CloseRecord {
	seen := make(map[int64]CloseRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Date] = r
	}
	for _, r := range incoming {
		seen[r.Date] = r
	}

	merged := make([]CloseRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})
	return merged
}
