package calculator

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// TradingDaysPerYear is the lookback used for the 52-week range.
const TradingDaysPerYear = 252

// CalculateRange returns the high and low close over the most recent
// lookback observations, or all of them when fewer are available.
func CalculateRange(closes []float64, lookback int) (high, low float64, err error) {
	if len(closes) == 0 {
		return 0, 0, errors.New("no closes provided")
	}
	start := len(closes) - lookback
	if lookback <= 0 || start < 0 {
		start = 0
	}
	recent := closes[start:]
	return floats.Max(recent), floats.Min(recent), nil
}

// CalculateRangePosition returns where current sits within [low, high],
// clamped to 0..1. A flat range reports 0.5.
func CalculateRangePosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}
