package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"StockInsight/internal/calculator"
	"StockInsight/internal/model"
)

// DefaultWindow is the number of trailing observations fed to the model.
const DefaultWindow = 60

// Inference is the engine output. The render jobs are described but not yet
// written to disk.
type Inference struct {
	NextPrice   float64
	MSE         float64
	RMSE        float64
	R2          float64
	WindowSize  int
	SampleCount int
	Indicators  map[string]float64
	Closing     *RenderJob
	Comparison  *RenderJob
}

// Engine scales a series, runs the model on the trailing window and derives
// diagnostic metrics. It holds no per-request state.
type Engine struct {
	Model  Model
	Window int
}

func NewEngine(m Model) *Engine {
	return &Engine{Model: m, Window: DefaultWindow}
}

func (e *Engine) Infer(ctx context.Context, ticker string, series model.TimeSeries) (*Inference, error) {
	window := e.Window
	if window <= 0 {
		window = DefaultWindow
	}
	if len(series) < window {
		return nil, fmt.Errorf("%w: %s has %d observations, need %d",
			model.ErrInsufficientData, ticker, len(series), window)
	}

	closes := series.Closes()
	scaler := FitMinMax(closes)
	scaled := scaler.TransformAll(closes)
	trailing := scaled[len(scaled)-window:]

	pred, err := e.Model.Predict(ctx, trailing)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", ticker, err)
	}
	if math.IsNaN(pred) || math.IsInf(pred, 0) {
		return nil, fmt.Errorf("predict %s: model returned %v", ticker, pred)
	}
	pred = math.Max(0, math.Min(1, pred))

	lastScaled := trailing[len(trailing)-1]
	mse := (lastScaled - pred) * (lastScaled - pred)
	r2 := 0.0
	if v := stat.PopVariance(trailing, nil); v > 0 {
		r2 = 1 - mse/v
	}

	next := scaler.Inverse(pred)
	last := series.Last()
	step := series.Step()
	if step > 24*time.Hour {
		step = 24 * time.Hour
	}
	tail := series[len(series)-window:]

	return &Inference{
		NextPrice:   next,
		MSE:         mse,
		RMSE:        math.Sqrt(mse),
		R2:          r2,
		WindowSize:  window,
		SampleCount: len(series),
		Indicators:  calculator.Summary(closes),
		Closing: &RenderJob{
			Title:  fmt.Sprintf("%s closing price", ticker),
			Actual: series,
		},
		Comparison: &RenderJob{
			Title:     fmt.Sprintf("%s last %d vs forecast", ticker, window),
			Actual:    tail,
			Predicted: &model.Bar{Time: last.Time.Add(step), Close: next},
		},
	}, nil
}
