package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StockInsight/internal/metrics"
	"StockInsight/internal/model"
	"StockInsight/pkg/logger"
)

// MockSource replays scripted attempts for development and testing. Once
// the script runs out the last step repeats.
type MockSource struct {
	Steps []MockStep
	Calls int
}

// MockStep is one scripted attempt result.
type MockStep struct {
	Series  model.TimeSeries
	Outcome Outcome
	Err     error
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) Fetch(_ context.Context, _, _, _ string) (model.TimeSeries, Outcome, error) {
	m.Calls++
	if len(m.Steps) == 0 {
		return nil, OutcomeRetry, fmt.Errorf("mock: no steps")
	}
	i := m.Calls - 1
	if i >= len(m.Steps) {
		i = len(m.Steps) - 1
	}
	s := m.Steps[i]
	return s.Series, s.Outcome, s.Err
}

// GenerateSeries builds count daily bars drifting gently around basePrice.
func GenerateSeries(basePrice float64, count int, end time.Time) model.TimeSeries {
	bars := make(model.TimeSeries, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.Bar{
			Time:  end.AddDate(0, 0, -(count - 1 - i)),
			Close: p,
		}
	}
	return bars
}

// ResilientFetcher tries the primary source with retries and backoff, then
// the fallback exactly once.
type ResilientFetcher struct {
	Primary    Source
	Fallback   Fallback
	MaxRetries int
	Backoff    time.Duration
	Sleep      Sleeper
	Log        *logger.Logger
}

// NewResilientFetcher creates a fetcher with the given retry policy.
func NewResilientFetcher(primary Source, fallback Fallback, maxRetries int, backoff time.Duration, log *logger.Logger) *ResilientFetcher {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ResilientFetcher{
		Primary:    primary,
		Fallback:   fallback,
		MaxRetries: maxRetries,
		Backoff:    backoff,
		Sleep:      SleepContext,
		Log:        log,
	}
}

// Fetch returns a non-empty series for ticker or an error wrapping
// model.ErrDataUnavailable.
func (f *ResilientFetcher) Fetch(ctx context.Context, ticker, period, interval string) (model.TimeSeries, error) {
	sleep := f.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= f.MaxRetries; attempt++ {
		series, outcome, err := f.Primary.Fetch(ctx, ticker, period, interval)
		metrics.RecordFetchAttempt(f.Primary.Name(), outcome.String())

		if outcome == OutcomeSuccess {
			if len(series) > 0 {
				return series, nil
			}
			outcome, err = OutcomeRetry, fmt.Errorf("%s: empty series", f.Primary.Name())
		}
		lastErr = err

		f.Log.Warn("fetch attempt failed",
			logger.String("source", f.Primary.Name()),
			logger.String("ticker", ticker),
			logger.Int("attempt", attempt),
			logger.Int("max_retries", f.MaxRetries),
			logger.String("outcome", outcome.String()),
			logger.Error(err),
		)

		if outcome == OutcomeFatal {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: fetch %s: %w", model.ErrDataUnavailable, ticker, ctx.Err())
			}
			break
		}
		if attempt == f.MaxRetries {
			break
		}

		wait := f.Backoff
		if outcome == OutcomeRateLimited {
			wait = f.Backoff * time.Duration(attempt)
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%w: fetch %s: %w", model.ErrDataUnavailable, ticker, err)
		}
	}

	if f.Fallback == nil {
		f.Log.Error("primary fetch exhausted",
			logger.String("ticker", ticker),
			logger.Error(lastErr),
		)
		return nil, fmt.Errorf("%w for %s", model.ErrDataUnavailable, ticker)
	}

	f.Log.Info("falling back to intraday source",
		logger.String("source", f.Fallback.Name()),
		logger.String("ticker", ticker),
	)
	series, err := f.Fallback.FetchIntraday(ctx, ticker)
	if err != nil {
		metrics.RecordFetchAttempt(f.Fallback.Name(), OutcomeFatal.String())
		f.Log.Error("fallback fetch failed",
			logger.String("ticker", ticker),
			logger.Error(err),
		)
		if !errors.Is(err, model.ErrDataUnavailable) {
			err = fmt.Errorf("%w: %w", model.ErrDataUnavailable, err)
		}
		return nil, err
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no intraday data returned for %s", model.ErrDataUnavailable, ticker)
	}
	metrics.RecordFetchAttempt(f.Fallback.Name(), OutcomeSuccess.String())
	return series, nil
}
