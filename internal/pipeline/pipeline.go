package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"StockInsight/internal/forecast"
	"StockInsight/internal/metrics"
	"StockInsight/internal/model"
	"StockInsight/internal/recorder"
	"StockInsight/pkg/logger"
)

// Fetcher supplies a price history for a ticker.
type Fetcher interface {
	Fetch(ctx context.Context, ticker, period, interval string) (model.TimeSeries, error)
}

// Inferrer turns a price history into a forecast and chart descriptions.
type Inferrer interface {
	Infer(ctx context.Context, ticker string, series model.TimeSeries) (*forecast.Inference, error)
}

// Orchestrator runs fetch, inference, rendering and persistence for one
// request. Either a row and both charts exist afterwards, or neither does.
type Orchestrator struct {
	Fetcher     Fetcher
	Engine      Inferrer
	Store       recorder.Recorder
	BaseDir     string
	ArtifactDir string
	Period      string
	Interval    string
	Window      int
	Log         *logger.Logger
	Now         func() time.Time
	NewID       func() string
}

// Options configures New.
type Options struct {
	BaseDir     string
	ArtifactDir string
	Period      string
	Interval    string
}

func New(fetcher Fetcher, engine Inferrer, store recorder.Recorder, opts Options, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Period == "" {
		opts.Period = "10y"
	}
	if opts.Interval == "" {
		opts.Interval = "1d"
	}
	if opts.ArtifactDir == "" {
		opts.ArtifactDir = "static/plots"
	}
	return &Orchestrator{
		Fetcher:     fetcher,
		Engine:      engine,
		Store:       store,
		BaseDir:     opts.BaseDir,
		ArtifactDir: opts.ArtifactDir,
		Period:      opts.Period,
		Interval:    opts.Interval,
		Window:      forecast.DefaultWindow,
		Log:         log,
		Now:         time.Now,
		NewID:       uuid.NewString,
	}
}

// NormalizeTicker trims and uppercases a user-supplied symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// ArtifactPath resolves a stored relative artifact path against BaseDir.
func (o *Orchestrator) ArtifactPath(rel string) string {
	return filepath.Join(o.BaseDir, filepath.FromSlash(rel))
}

func (o *Orchestrator) Run(ctx context.Context, identity, ticker string) (res *model.ForecastResult, err error) {
	start := time.Now()
	ticker = NormalizeTicker(ticker)
	log := o.Log.With(logger.String("identity", identity), logger.String("ticker", ticker))

	defer func() {
		outcome := Outcome(err)
		metrics.RecordPipelineRun(outcome, time.Since(start))
		if err != nil {
			log.Warn("pipeline run failed", logger.String("outcome", outcome), logger.Error(err))
			return
		}
		log.Info("pipeline run finished",
			logger.Int64("forecast_id", res.ID),
			logger.Duration("duration_ms", time.Since(start)),
		)
	}()

	if ticker == "" {
		return nil, fmt.Errorf("%w: empty symbol", model.ErrInvalidTicker)
	}

	series, err := o.Fetcher.Fetch(ctx, ticker, o.Period, o.Interval)
	if err != nil {
		return nil, err
	}
	if len(series) < o.Window {
		return nil, fmt.Errorf("%w: %s has %d observations, need %d",
			model.ErrInsufficientData, ticker, len(series), o.Window)
	}

	inf, err := o.Engine.Infer(ctx, ticker, series)
	if err != nil {
		return nil, err
	}

	// From here on the file+row pair must complete or be rolled back, so
	// caller cancellation no longer applies.
	ctx = context.WithoutCancel(ctx)

	var undo undoList
	defer func() {
		if r := recover(); r != nil {
			undo.rollback()
			res, err = nil, fmt.Errorf("pipeline panic: %v", r)
			panic(r)
		}
		if err != nil {
			undo.rollback()
		}
	}()

	dir := filepath.Join(o.BaseDir, filepath.FromSlash(o.ArtifactDir))
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	id := o.NewID()
	closingRel := filepath.ToSlash(filepath.Join(o.ArtifactDir, id+"_close.png"))
	comparisonRel := filepath.ToSlash(filepath.Join(o.ArtifactDir, id+"_cmp.png"))

	for _, step := range []struct {
		rel string
		job *forecast.RenderJob
	}{
		{closingRel, inf.Closing},
		{comparisonRel, inf.Comparison},
	} {
		path := o.ArtifactPath(step.rel)
		undo.add(func() error { return os.Remove(path) })
		if err = step.job.Render(path); err != nil {
			return nil, fmt.Errorf("render %s: %w", step.rel, err)
		}
	}

	res = &model.ForecastResult{
		Identity:       identity,
		Ticker:         ticker,
		CreatedAt:      o.Now().UTC(),
		NextPrice:      decimal.NewFromFloat(inf.NextPrice).Round(4),
		MSE:            inf.MSE,
		RMSE:           inf.RMSE,
		R2:             inf.R2,
		ClosingPlot:    closingRel,
		ComparisonPlot: comparisonRel,
		Metrics: map[string]any{
			"window_size":  inf.WindowSize,
			"sample_count": inf.SampleCount,
		},
	}
	for k, v := range inf.Indicators {
		res.Metrics[k] = v
	}
	if err = o.Store.SaveForecast(ctx, res); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}

	undo.discard()
	return res, nil
}

// Outcome labels err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, model.ErrInvalidTicker):
		return "invalid_ticker"
	case errors.Is(err, model.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, model.ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, model.ErrPersistence):
		return "persistence"
	default:
		return "error"
	}
}

func (o *Orchestrator) List(ctx context.Context, identity string, filter model.ForecastFilter) ([]*model.ForecastResult, error) {
	filter.Ticker = NormalizeTicker(filter.Ticker)
	return o.Store.ListForecasts(ctx, identity, filter)
}

// Latest returns nil without error when identity has no forecasts.
func (o *Orchestrator) Latest(ctx context.Context, identity string) (*model.ForecastResult, error) {
	return o.Store.LatestForecast(ctx, identity)
}

// BatchResult is the outcome for one ticker of RunBatch.
type BatchResult struct {
	Ticker string
	Result *model.ForecastResult
	Err    error
}

// RunBatch runs each ticker in turn and reports every outcome. It stops early
// only when ctx is cancelled.
func (o *Orchestrator) RunBatch(ctx context.Context, identity string, tickers []string) []BatchResult {
	out := make([]BatchResult, 0, len(tickers))
	for _, t := range tickers {
		if ctx.Err() != nil {
			out = append(out, BatchResult{Ticker: NormalizeTicker(t), Err: ctx.Err()})
			continue
		}
		res, err := o.Run(ctx, identity, t)
		out = append(out, BatchResult{Ticker: NormalizeTicker(t), Result: res, Err: err})
	}
	return out
}
