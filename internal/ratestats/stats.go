// Package ratestats measures per-source output frame rates.
package ratestats

import (
	"math"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum FPS standard deviation as a
	// fraction of the mean. 25 FPS mean is stable below 3.75 FPS stddev.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum mean jitter as a fraction of
	// the expected inter-frame interval.
	jitterStabilityThreshold = 0.20
)

// Stats summarises a window of frame timestamps.
type Stats struct {
	Frames    int           `json:"frames"`
	Window    time.Duration `json:"window"`
	FPSMean   float64       `json:"fps_mean"`
	FPSStdDev float64       `json:"fps_stddev"`
	FPSMin    float64       `json:"fps_min"`
	FPSMax    float64       `json:"fps_max"`
	Stable    bool          `json:"stable"`

	// Jitter is the absolute deviation from the expected interval, in
	// seconds.
	JitterMean   float64 `json:"jitter_mean"`
	JitterStdDev float64 `json:"jitter_stddev"`
	JitterMax    float64 `json:"jitter_max"`

	LastFrame time.Time `json:"last_frame"`
}

// Calculate computes frame rate statistics for frameTimes observed over
// window. A stream is stable when the FPS stddev is below 15% of the mean
// and mean jitter is below 20% of the expected interval.
func Calculate(frameTimes []time.Time, window time.Duration) Stats {
	n := len(frameTimes)
	stats := Stats{Frames: n, Window: window}
	if n == 0 || window <= 0 {
		return stats
	}
	stats.LastFrame = frameTimes[n-1]
	stats.FPSMean = float64(n) / window.Seconds()

	instantaneous := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		if interval > 0 {
			instantaneous = append(instantaneous, 1.0/interval)
		}
	}
	if len(instantaneous) == 0 {
		return stats
	}

	stats.FPSMin, stats.FPSMax = instantaneous[0], instantaneous[0]
	var sumSquares float64
	for _, fps := range instantaneous {
		stats.FPSMin = math.Min(stats.FPSMin, fps)
		stats.FPSMax = math.Max(stats.FPSMax, fps)
		diff := fps - stats.FPSMean
		sumSquares += diff * diff
	}
	stats.FPSStdDev = math.Sqrt(sumSquares / float64(len(instantaneous)))

	expected := 1.0 / stats.FPSMean
	jitters := make([]float64, 0, n-1)
	var jitterSum float64
	for i := 1; i < n; i++ {
		j := math.Abs(frameTimes[i].Sub(frameTimes[i-1]).Seconds() - expected)
		jitters = append(jitters, j)
		jitterSum += j
		stats.JitterMax = math.Max(stats.JitterMax, j)
	}
	stats.JitterMean = jitterSum / float64(len(jitters))

	var jitterSquares float64
	for _, j := range jitters {
		diff := j - stats.JitterMean
		jitterSquares += diff * diff
	}
	stats.JitterStdDev = math.Sqrt(jitterSquares / float64(len(jitters)))

	stats.Stable = stats.FPSStdDev < stats.FPSMean*fpsStabilityThreshold &&
		stats.JitterMean < expected*jitterStabilityThreshold
	return stats
}
