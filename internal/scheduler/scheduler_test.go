package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"StockInsight/internal/governor"
	"StockInsight/internal/model"
	"StockInsight/internal/pipeline"
	"StockInsight/internal/recorder"
)

type fakeBatch struct {
	identity string
	tickers  []string
	failing  map[string]bool
}

func (f *fakeBatch) RunBatch(_ context.Context, identity string, tickers []string) []pipeline.BatchResult {
	f.identity = identity
	f.tickers = tickers
	out := make([]pipeline.BatchResult, 0, len(tickers))
	for _, t := range tickers {
		r := pipeline.BatchResult{Ticker: t}
		if f.failing[t] {
			r.Err = model.ErrDataUnavailable
		} else {
			r.Result = &model.ForecastResult{Ticker: t}
		}
		out = append(out, r)
	}
	return out
}

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestCleanOrphans(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "static", "plots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	old := now.Add(-2 * time.Hour)

	touch(t, filepath.Join(dir, "kept_close.png"), old)
	touch(t, filepath.Join(dir, "orphan_close.png"), old)
	touch(t, filepath.Join(dir, "fresh_close.png"), now.Add(-5*time.Minute))
	touch(t, filepath.Join(dir, "notes.txt"), old)

	rec := recorder.NewMemoryRecorder()
	if err := rec.SaveForecast(context.Background(), &model.ForecastResult{
		Identity:       "alice",
		Ticker:         "AAPL",
		ClosingPlot:    "static/plots/kept_close.png",
		ComparisonPlot: "static/plots/kept_cmp.png",
	}); err != nil {
		t.Fatal(err)
	}

	s := NewScheduler(context.Background(), nil, &fakeBatch{}, rec, base, "static/plots", nil)
	s.Now = func() time.Time { return now }

	removed, err := s.CleanOrphans(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}

	for name, want := range map[string]bool{
		"kept_close.png":   true,
		"orphan_close.png": false,
		"fresh_close.png":  true,
		"notes.txt":        true,
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		if exists := err == nil; exists != want {
			t.Errorf("%s: exists=%v, want %v", name, exists, want)
		}
	}
}

func TestCleanOrphans_MissingDir(t *testing.T) {
	s := NewScheduler(context.Background(), nil, &fakeBatch{}, recorder.NewMemoryRecorder(), t.TempDir(), "static/plots", nil)
	removed, err := s.CleanOrphans(context.Background())
	if err != nil || removed != 0 {
		t.Fatalf("expected (0, nil), got (%d, %v)", removed, err)
	}
}

func TestRefresh(t *testing.T) {
	rec := recorder.NewMemoryRecorder()
	ctx := context.Background()
	for _, ticker := range []string{"AAPL", "MSFT", "AAPL"} {
		if err := rec.SaveForecast(ctx, &model.ForecastResult{Identity: "alice", Ticker: ticker}); err != nil {
			t.Fatal(err)
		}
	}

	batch := &fakeBatch{failing: map[string]bool{"MSFT": true}}
	s := NewScheduler(ctx, nil, batch, rec, t.TempDir(), "static/plots", nil)

	ok, err := s.Refresh(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok != 1 {
		t.Errorf("expected 1 successful refresh, got %d", ok)
	}
	if batch.identity != SystemIdentity {
		t.Errorf("refresh should run as %q, got %q", SystemIdentity, batch.identity)
	}
	if len(batch.tickers) != 2 {
		t.Errorf("expected distinct tickers, got %v", batch.tickers)
	}
}

type brokenRecorder struct {
	*recorder.MemoryRecorder
}

func (brokenRecorder) Tickers(context.Context) ([]string, error) {
	return nil, errors.New("db closed")
}

func TestRefresh_RecorderError(t *testing.T) {
	s := NewScheduler(context.Background(), nil, &fakeBatch{}, brokenRecorder{recorder.NewMemoryRecorder()}, "", "static/plots", nil)
	if _, err := s.Refresh(context.Background()); err == nil {
		t.Fatal("expected error from recorder")
	}
}

func TestRegisterAll(t *testing.T) {
	gov := governor.New(time.Minute, 10)
	s := NewScheduler(context.Background(), gov, &fakeBatch{}, recorder.NewMemoryRecorder(), "", "static/plots", nil)

	if err := s.RegisterAll("0 */15 * * * *", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(s.Cron.Entries()); n != 2 {
		t.Errorf("expected sweep and janitor jobs, got %d", n)
	}
	if err := s.RegisterAll("", "not a cron"); err == nil {
		t.Error("expected error for invalid refresh expression")
	}
}

func TestSweepGovernor(t *testing.T) {
	gov := governor.New(time.Minute, 10)
	now := time.Now()
	gov.Admit("tg:1", now.Add(-2*time.Minute))
	gov.Admit("tg:2", now)

	s := NewScheduler(context.Background(), gov, &fakeBatch{}, recorder.NewMemoryRecorder(), "", "static/plots", nil)
	s.Now = func() time.Time { return now }
	s.sweepGovernor()

	if gov.Len() != 1 {
		t.Errorf("expected expired key swept, %d keys remain", gov.Len())
	}
}
