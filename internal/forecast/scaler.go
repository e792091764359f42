package forecast

import "gonum.org/v1/gonum/floats"

// MinMaxScaler maps values linearly onto [0,1] using the range seen at fit
// time. A flat range maps everything to 0 and inverts to the constant.
type MinMaxScaler struct {
	Min float64
	Max float64
}

// FitMinMax fits a scaler over values. values must not be empty.
func FitMinMax(values []float64) *MinMaxScaler {
	return &MinMaxScaler{Min: floats.Min(values), Max: floats.Max(values)}
}

func (s *MinMaxScaler) span() float64 { return s.Max - s.Min }

func (s *MinMaxScaler) Transform(x float64) float64 {
	span := s.span()
	if span == 0 {
		return 0
	}
	return (x - s.Min) / span
}

func (s *MinMaxScaler) TransformAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = s.Transform(x)
	}
	return out
}

func (s *MinMaxScaler) Inverse(y float64) float64 {
	return s.Min + y*s.span()
}
