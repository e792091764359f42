package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"StockInsight/internal/model"
)

type countingSleeper struct {
	waits []time.Duration
}

func (c *countingSleeper) sleep(_ context.Context, d time.Duration) error {
	c.waits = append(c.waits, d)
	return nil
}

type countingFallback struct {
	calls  int
	series model.TimeSeries
	err    error
}

func (f *countingFallback) Name() string { return "fake-fallback" }

func (f *countingFallback) FetchIntraday(_ context.Context, _ string) (model.TimeSeries, error) {
	f.calls++
	return f.series, f.err
}

func newTestFetcher(primary Source, fallback Fallback, s *countingSleeper) *ResilientFetcher {
	f := NewResilientFetcher(primary, fallback, 5, 3*time.Second, nil)
	f.Sleep = s.sleep
	return f
}

func sampleSeries(n int) model.TimeSeries {
	return GenerateSeries(100, n, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
}

func TestFetch_RateLimitedThenFallback(t *testing.T) {
	primary := &MockSource{Steps: []MockStep{{Outcome: OutcomeRateLimited, Err: errors.New("429")}}}
	fallback := &countingFallback{series: sampleSeries(5)}
	s := &countingSleeper{}

	series, err := newTestFetcher(primary, fallback, s).Fetch(context.Background(), "AAPL", "10y", "1d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series) != 5 {
		t.Fatalf("expected fallback series, got %d bars", len(series))
	}
	if primary.Calls != 5 {
		t.Errorf("expected 5 primary attempts, got %d", primary.Calls)
	}
	if fallback.calls != 1 {
		t.Errorf("expected exactly one fallback call, got %d", fallback.calls)
	}
	want := []time.Duration{3 * time.Second, 6 * time.Second, 9 * time.Second, 12 * time.Second}
	if fmt.Sprint(s.waits) != fmt.Sprint(want) {
		t.Errorf("expected escalating waits %v, got %v", want, s.waits)
	}
}

func TestFetch_RateLimitedThenSuccess(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		want     []time.Duration
	}{
		{"one 429", 1, []time.Duration{3 * time.Second}},
		{"two 429s", 2, []time.Duration{3 * time.Second, 6 * time.Second}},
		{"four 429s", 4, []time.Duration{3 * time.Second, 6 * time.Second, 9 * time.Second, 12 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := make([]MockStep, 0, tt.failures+1)
			for i := 0; i < tt.failures; i++ {
				steps = append(steps, MockStep{Outcome: OutcomeRateLimited, Err: errors.New("429")})
			}
			steps = append(steps, MockStep{Outcome: OutcomeSuccess, Series: sampleSeries(70)})
			primary := &MockSource{Steps: steps}
			fallback := &countingFallback{}
			s := &countingSleeper{}

			series, err := newTestFetcher(primary, fallback, s).Fetch(context.Background(), "AAPL", "10y", "1d")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(series) != 70 {
				t.Errorf("expected primary series, got %d bars", len(series))
			}
			if primary.Calls != tt.failures+1 {
				t.Errorf("expected %d primary calls, got %d", tt.failures+1, primary.Calls)
			}
			if fmt.Sprint(s.waits) != fmt.Sprint(tt.want) {
				t.Errorf("expected waits %v, got %v", tt.want, s.waits)
			}
			if fallback.calls != 0 {
				t.Errorf("fallback should not run, got %d calls", fallback.calls)
			}
		})
	}
}

func TestFetch_NoFallbackHidesUpstreamDetail(t *testing.T) {
	primary := &MockSource{Steps: []MockStep{{
		Outcome: OutcomeRetry,
		Err:     errors.New(`yahoo: status 500, body: {"chart":{"error":"internal"}}`),
	}}}
	f := NewResilientFetcher(primary, nil, 2, time.Second, nil)
	f.Sleep = (&countingSleeper{}).sleep

	_, err := f.Fetch(context.Background(), "AAPL", "10y", "1d")
	if !errors.Is(err, model.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if err.Error() != "market data unavailable for AAPL" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestFetch_TransientFlatBackoff(t *testing.T) {
	primary := &MockSource{Steps: []MockStep{
		{Outcome: OutcomeRetry, Err: errors.New("timeout")},
		{Outcome: OutcomeSuccess}, // empty counts as retry
		{Outcome: OutcomeSuccess, Series: sampleSeries(70)},
	}}
	fallback := &countingFallback{}
	s := &countingSleeper{}

	series, err := newTestFetcher(primary, fallback, s).Fetch(context.Background(), "AAPL", "10y", "1d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series) != 70 {
		t.Errorf("expected 70 bars, got %d", len(series))
	}
	if len(s.waits) != 2 || s.waits[0] != 3*time.Second || s.waits[1] != 3*time.Second {
		t.Errorf("expected two flat 3s waits, got %v", s.waits)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback should not run, got %d calls", fallback.calls)
	}
}

func TestFetch_FatalSkipsToFallback(t *testing.T) {
	primary := &MockSource{Steps: []MockStep{{Outcome: OutcomeFatal, Err: errors.New("404")}}}
	fallback := &countingFallback{err: fmt.Errorf("%w: unexpected response structure for ZZZZ", model.ErrDataUnavailable)}
	s := &countingSleeper{}

	_, err := newTestFetcher(primary, fallback, s).Fetch(context.Background(), "ZZZZ", "10y", "1d")
	if !errors.Is(err, model.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if primary.Calls != 1 {
		t.Errorf("fatal outcome should stop retries, got %d calls", primary.Calls)
	}
	if len(s.waits) != 0 {
		t.Errorf("expected no sleeps, got %v", s.waits)
	}
	if fallback.calls != 1 {
		t.Errorf("expected one fallback call, got %d", fallback.calls)
	}
}

func TestFetch_ContextCancelledAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := &MockSource{Steps: []MockStep{{Outcome: OutcomeFatal, Err: context.Canceled}}}
	fallback := &countingFallback{series: sampleSeries(3)}

	_, err := newTestFetcher(primary, fallback, &countingSleeper{}).Fetch(ctx, "AAPL", "10y", "1d")
	if !errors.Is(err, model.ErrDataUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled data-unavailable error, got %v", err)
	}
	if fallback.calls != 0 {
		t.Errorf("cancelled fetch should not fall back")
	}
}

func TestFetch_FallbackEmptySeries(t *testing.T) {
	primary := &MockSource{Steps: []MockStep{{Outcome: OutcomeRetry, Err: errors.New("boom")}}}
	fallback := &countingFallback{}

	_, err := newTestFetcher(primary, fallback, &countingSleeper{}).Fetch(context.Background(), "AAPL", "10y", "1d")
	if !errors.Is(err, model.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "no intraday data returned for AAPL") {
		t.Errorf("unexpected message: %v", err)
	}
}

const chartJSON = `{"chart":{"result":[{"timestamp":[1700000300,1700000000,1700000100,1700000200],
"indicators":{"quote":[{"close":[104.5,101.0,null,103.25]}]}}],"error":null}}`

func TestYahooSource_ParsesAndSorts(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(chartJSON))
	}))
	defer srv.Close()

	src := NewYahooSource(srv.URL, "")
	series, outcome, err := src.Fetch(context.Background(), "SPX500", "10y", "1d")
	if err != nil || outcome != OutcomeSuccess {
		t.Fatalf("unexpected result: %v %v", outcome, err)
	}
	if gotPath != "/v8/finance/chart/^GSPC" {
		t.Errorf("expected alias mapped path, got %s", gotPath)
	}
	if !strings.Contains(gotQuery, "range=10y") || !strings.Contains(gotQuery, "interval=1d") {
		t.Errorf("unexpected query %s", gotQuery)
	}
	if len(series) != 3 {
		t.Fatalf("expected null close dropped, got %d bars", len(series))
	}
	if series[0].Close != 101.0 || series.Last().Close != 104.5 {
		t.Errorf("series not sorted: %+v", series)
	}
}

func TestYahooSource_StatusOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Outcome
	}{
		{"rate limited", http.StatusTooManyRequests, OutcomeRateLimited},
		{"server error", http.StatusBadGateway, OutcomeRetry},
		{"unknown symbol", http.StatusNotFound, OutcomeFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, outcome, err := NewYahooSource(srv.URL, "").Fetch(context.Background(), "AAPL", "10y", "1d")
			if err == nil {
				t.Fatal("expected error")
			}
			if outcome != tt.want {
				t.Errorf("expected %s, got %s", tt.want, outcome)
			}
		})
	}
}

func TestIntradaySource_Structure(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
		wantLen int
	}{
		{"valid", chartJSON, "", 3},
		{"missing result", `{"chart":{"error":null}}`, "unexpected response structure for AAPL", 0},
		{"not json", `<html>`, "unexpected response structure for AAPL", 0},
		{"empty", `{"chart":{"result":[{"timestamp":[],"indicators":{"quote":[{"close":[]}]}}]}}`, "no intraday data returned for AAPL", 0},
		{"null timestamps", `{"chart":{"result":[{"timestamp":null,"indicators":{"quote":[{"close":null}]}}]}}`, "no intraday data returned for AAPL", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				if r.URL.Query().Get("range") != "1d" || r.URL.Query().Get("interval") != "1m" {
					t.Errorf("unexpected query %s", r.URL.RawQuery)
				}
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			series, err := NewIntradaySource(srv.URL, "").FetchIntraday(context.Background(), "AAPL")
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(series) != tt.wantLen {
					t.Errorf("expected %d bars, got %d", tt.wantLen, len(series))
				}
				return
			}
			if !errors.Is(err, model.ErrDataUnavailable) {
				t.Fatalf("expected ErrDataUnavailable, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected %q in %q", tt.wantErr, err.Error())
			}
			if atomic.LoadInt32(&hits) != 1 {
				t.Errorf("expected one request, got %d", hits)
			}
		})
	}
}

func TestResilientFetcher_EndToEndHTTP(t *testing.T) {
	var primaryHits, fallbackHits int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&primaryHits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fallbackHits, 1)
		w.Write([]byte(chartJSON))
	}))
	defer fallback.Close()

	s := &countingSleeper{}
	f := newTestFetcher(NewYahooSource(primary.URL, ""), NewIntradaySource(fallback.URL, ""), s)
	series, err := f.Fetch(context.Background(), "AAPL", "10y", "1d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series) != 3 {
		t.Errorf("expected 3 bars, got %d", len(series))
	}
	if primaryHits != 5 || fallbackHits != 1 {
		t.Errorf("expected 5 primary and 1 fallback hits, got %d and %d", primaryHits, fallbackHits)
	}
	if len(s.waits) != 4 {
		t.Errorf("expected 4 sleeps, got %d", len(s.waits))
	}
}
