package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"tycho/internal/domain"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	ts := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	bp := ps.barPath("AAPL", "us", ts)

	want := filepath.Join("/data", "us", "daily", "AAPL", "2024.parquet")
	if bp != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, want)
	}

	// Symbols are uppercased in paths.
	if got := ps.barPath("aapl", "us", ts); got != want {
		t.Errorf("barPath for lowercase symbol = %s, want %s", got, want)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Symbol: "AAPL",
			Date:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:   185.0, High: 186.5, Low: 184.0, Close: 185.5,
			Volume: 50_000_000,
		},
		{
			Symbol: "AAPL",
			Date:   time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Open:   185.5, High: 187.0, Low: 185.0, Close: 186.0,
			Volume: 45_000_000,
		},
	}

	if err := ps.WriteBars(ctx, bars, "us"); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "AAPL", "us", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 185.5 {
		t.Errorf("first bar Close = %v, want 185.5", got[0].Close)
	}
	if got[1].Close != 186.0 {
		t.Errorf("second bar Close = %v, want 186.0", got[1].Close)
	}
	if got[0].Day() != "2024-01-02" {
		t.Errorf("first bar day = %s, want 2024-01-02", got[0].Day())
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars1 := []domain.Bar{
		{
			Symbol: "MSFT",
			Date:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Open:   400.0, High: 405.0, Low: 399.0, Close: 403.0,
			Volume: 30_000_000,
		},
	}
	if err := ps.WriteBars(ctx, bars1, "us"); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}

	// Second write for the same symbol+year merges, and a rewrite of an
	// existing date wins over the old record.
	bars2 := []domain.Bar{
		{
			Symbol: "MSFT",
			Date:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Open:   400.0, High: 405.0, Low: 399.0, Close: 404.0,
			Volume: 31_000_000,
		},
		{
			Symbol: "MSFT",
			Date:   time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
			Open:   403.0, High: 410.0, Low: 402.0, Close: 408.0,
			Volume: 35_000_000,
		},
	}
	if err := ps.WriteBars(ctx, bars2, "us"); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "MSFT", "us", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if got[0].Close != 404.0 {
		t.Errorf("rewritten bar Close = %v, want 404.0", got[0].Close)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "AAPL", Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 185.5, Volume: 50_000_000},
		{Symbol: "GOOGL", Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 140.5, Volume: 20_000_000},
	}
	if err := ps.WriteBars(ctx, bars, "us"); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, "us")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}
}

func newTestRunStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestSQLiteStoreSaveAndGetRun(t *testing.T) {
	s := newTestRunStore(t)
	ctx := context.Background()

	rec := &RunRecord{
		ID:          "run-1",
		Strategy:    "buy-and-hold",
		CreatedAt:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		State:       "completed",
		StartDate:   "2024-01-02",
		EndDate:     "2024-05-31",
		FinalEquity: 104_500.25,
		Result:      []byte(`{"state":"completed"}`),
	}
	if err := s.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Strategy != rec.Strategy || got.State != rec.State || got.FinalEquity != rec.FinalEquity {
		t.Errorf("GetRun = %+v, want %+v", got, rec)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, rec.CreatedAt)
	}
	if string(got.Result) != string(rec.Result) {
		t.Errorf("Result = %s, want %s", got.Result, rec.Result)
	}

	// Duplicate ID is rejected.
	if err := s.SaveRun(ctx, rec); err == nil {
		t.Error("SaveRun accepted a duplicate run ID")
	}
}

func TestSQLiteStoreGetRunNotFound(t *testing.T) {
	s := newTestRunStore(t)
	_, err := s.GetRun(context.Background(), "nonexistent")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun error = %v, want ErrRunNotFound", err)
	}
}

func TestSQLiteStoreListRunsNewestFirst(t *testing.T) {
	s := newTestRunStore(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		rec := &RunRecord{
			ID:        id,
			Strategy:  "sma-cross",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			State:     "completed",
			Result:    []byte(`{}`),
		}
		if err := s.SaveRun(ctx, rec); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns returned %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Errorf("ListRuns order = [%s %s], want [run-c run-b]", runs[0].ID, runs[1].ID)
	}
	// Listings omit the payload.
	if runs[0].Result != nil {
		t.Errorf("listed run carries result payload (%d bytes)", len(runs[0].Result))
	}
}

func TestSQLiteStoreDeleteRun(t *testing.T) {
	s := newTestRunStore(t)
	ctx := context.Background()

	rec := &RunRecord{ID: "run-x", Strategy: "buy-and-hold", CreatedAt: time.Now().UTC(), State: "failed", Result: []byte(`{}`)}
	if err := s.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	if err := s.DeleteRun(ctx, "run-x"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := s.GetRun(ctx, "run-x"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun after delete = %v, want ErrRunNotFound", err)
	}
	if err := s.DeleteRun(ctx, "run-x"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second DeleteRun = %v, want ErrRunNotFound", err)
	}
}
