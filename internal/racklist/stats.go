package racklist

import "math"

// WelfordState holds running statistics using Welford's online algorithm.
// Fetch latencies are folded in one at a time without keeping every sample.
type WelfordState struct {
	Count int     // n - number of observations
	Mean  float64 // running mean
	M2    float64 // sum of squared differences from mean (for variance)
}

// Update adds a new observation
func (w *WelfordState) Update(newValue float64) {
	w.Count++
	delta := newValue - w.Mean
	w.Mean += delta / float64(w.Count)
	delta2 := newValue - w.Mean
	w.M2 += delta * delta2
}

// StdDev returns the population standard deviation.
// Returns 0 if fewer than 2 observations.
func (w *WelfordState) StdDev() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Sqrt(w.M2 / float64(w.Count))
}

// LatencyStats summarizes successful fetch durations in milliseconds
type LatencyStats struct {
	Count        int     `json:"count"`
	MeanMillis   float64 `json:"meanMs"`
	StdDevMillis float64 `json:"stddevMs"`
}

func (w *WelfordState) latency() LatencyStats {
	return LatencyStats{
		Count:        w.Count,
		MeanMillis:   w.Mean,
		StdDevMillis: w.StdDev(),
	}
}
