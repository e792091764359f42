package calculator

import (
	"math"
	"testing"
)

func TestCalculateSMA(t *testing.T) {
	tests := []struct {
		name    string
		prices  []float64
		period  int
		want    float64
		wantErr bool
	}{
		{"last three", []float64{1, 2, 3, 4, 5}, 3, 4, false},
		{"whole series", []float64{2, 4}, 2, 3, false},
		{"too short", []float64{1}, 2, 0, true},
		{"bad period", []float64{1, 2}, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateSMA(tt.prices, tt.period)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateRSI(t *testing.T) {
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = float64(100 + i)
	}
	if v, _ := CalculateRSI(rising, 14); v != 100 {
		t.Errorf("monotonic rise should give RSI 100, got %v", v)
	}

	falling := make([]float64, 30)
	for i := range falling {
		falling[i] = float64(100 - i)
	}
	if v, _ := CalculateRSI(falling, 14); v != 0 {
		t.Errorf("monotonic fall should give RSI 0, got %v", v)
	}

	if v, _ := CalculateRSI([]float64{1, 2}, 14); v != 50 {
		t.Errorf("short input should give neutral 50, got %v", v)
	}

	alternating := make([]float64, 41)
	for i := range alternating {
		alternating[i] = 100
		if i%2 == 1 {
			alternating[i] = 101
		}
	}
	if v, _ := CalculateRSI(alternating, 14); math.Abs(v-50) > 5 {
		t.Errorf("balanced moves should stay near 50, got %v", v)
	}
}

func TestCalculateRange(t *testing.T) {
	closes := []float64{50, 10, 20, 30, 25}
	high, low, err := CalculateRange(closes, 3)
	if err != nil {
		t.Fatal(err)
	}
	if high != 30 || low != 20 {
		t.Errorf("got high=%v low=%v, want 30/20", high, low)
	}

	high, low, _ = CalculateRange(closes, 100)
	if high != 50 || low != 10 {
		t.Errorf("short series should use everything, got %v/%v", high, low)
	}

	if _, _, err := CalculateRange(nil, 10); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestCalculateRangePosition(t *testing.T) {
	tests := []struct {
		current, high, low, want float64
	}{
		{15, 20, 10, 0.5},
		{25, 20, 10, 1},
		{5, 20, 10, 0},
		{7, 7, 7, 0.5},
	}
	for _, tt := range tests {
		got, err := CalculateRangePosition(tt.current, tt.high, tt.low)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("position(%v in %v..%v) = %v, want %v", tt.current, tt.low, tt.high, got, tt.want)
		}
	}
	if _, err := CalculateRangePosition(1, 0, 2); err == nil {
		t.Error("expected error when high < low")
	}
}

func TestSummary(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	s := Summary(closes)
	for _, key := range []string{"sma_20", "sma_50", "rsi_14", "high_52w", "low_52w", "range_position_52w"} {
		if _, ok := s[key]; !ok {
			t.Errorf("missing %s in %v", key, s)
		}
	}
	if s["range_position_52w"] != 1 {
		t.Errorf("last close is the high, got position %v", s["range_position_52w"])
	}

	short := Summary(closes[:30])
	if _, ok := short["sma_50"]; ok {
		t.Error("sma_50 needs 50 closes")
	}
	if len(Summary(nil)) != 0 {
		t.Error("empty input should give no indicators")
	}
}
