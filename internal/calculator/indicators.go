package calculator

// Summary computes the descriptive indicators attached to every forecast.
// Indicators that need more history than closes holds are left out.
func Summary(closes []float64) map[string]float64 {
	out := make(map[string]float64, 5)
	if len(closes) == 0 {
		return out
	}
	if v, err := CalculateSMA(closes, 20); err == nil {
		out["sma_20"] = v
	}
	if v, err := CalculateSMA(closes, 50); err == nil {
		out["sma_50"] = v
	}
	if len(closes) > 14 {
		if v, err := CalculateRSI(closes, 14); err == nil {
			out["rsi_14"] = v
		}
	}
	high, low, err := CalculateRange(closes, TradingDaysPerYear)
	if err == nil {
		out["high_52w"] = high
		out["low_52w"] = low
		if pos, err := CalculateRangePosition(closes[len(closes)-1], high, low); err == nil {
			out["range_position_52w"] = pos
		}
	}
	return out
}
