package model

import (
	"sort"
	"time"
)

// Bar is a single closing-price observation.
type Bar struct {
	Time  time.Time
	Close float64
}

// TimeSeries is an ordered run of bars, strictly increasing by time.
type TimeSeries []Bar

// Closes returns the closing prices in series order.
func (s TimeSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

// Last returns the final bar. The series must not be empty.
func (s TimeSeries) Last() Bar {
	return s[len(s)-1]
}

// Step estimates the spacing between consecutive bars from the last two
// observations, falling back to one day.
func (s TimeSeries) Step() time.Duration {
	if len(s) < 2 {
		return 24 * time.Hour
	}
	d := s[len(s)-1].Time.Sub(s[len(s)-2].Time)
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// Normalize sorts bars by time and drops duplicate timestamps, keeping the
// last occurrence.
func Normalize(bars []Bar) TimeSeries {
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	out := make(TimeSeries, 0, len(sorted))
	for _, b := range sorted {
		if n := len(out); n > 0 && out[n-1].Time.Equal(b.Time) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}
