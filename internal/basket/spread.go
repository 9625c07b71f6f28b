package basket

import "math"

// RollingMean computes a trailing mean over at most window points. Indices with
// fewer than minPeriods observations are NaN.
func RollingMean(xs []float64, window, minPeriods int) []float64 {
	return rollingApply(xs, window, minPeriods, mean)
}

// RollingStd computes a trailing population standard deviation over at most
// window points. Indices with fewer than minPeriods observations are NaN.
func RollingStd(xs []float64, window, minPeriods int) []float64 {
	return rollingApply(xs, window, minPeriods, popStd)
}

func rollingApply(xs []float64, window, minPeriods int, fn func([]float64) float64) []float64 {
	if minPeriods < 1 {
		minPeriods = 1
	}
	out := make([]float64, len(xs))
	for i := range xs {
		lo := i + 1 - window
		if lo < 0 {
			lo = 0
		}
		win := valid(xs[lo : i+1])
		if len(win) < minPeriods {
			out[i] = math.NaN()
			continue
		}
		out[i] = fn(win)
	}
	return out
}

// valid drops NaN entries, mirroring how gaps propagate through the series.
func valid(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func mean(xs []float64) float64 {
	var sum float64
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

func popStd(xs []float64) float64 {
	mu := mean(xs)
	var ss float64
	for _, v := range xs {
		d := v - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// ReferenceSpread computes reference - synthetic - bias pointwise.
func ReferenceSpread(reference, synthetic []float64, bias float64) []float64 {
	out := make([]float64, len(synthetic))
	for i := range synthetic {
		out[i] = reference[i] - synthetic[i] - bias
	}
	return out
}

// SelfSpread compares the synthetic price to its own trailing mean over a full
// lookback window; indices without a full window are NaN.
func SelfSpread(synthetic []float64, lookback int) []float64 {
	mu := RollingMean(synthetic, lookback, lookback)
	out := make([]float64, len(synthetic))
	for i := range synthetic {
		out[i] = synthetic[i] - mu[i]
	}
	return out
}

// LatestZ standardizes the final spread value against a trailing lookback
// window with a minimum-period requirement of lookback/2. ok is false in every
// data-insufficiency state: too few points, zero variance, or a non-computable
// window. Those are expected conditions, not errors.
func LatestZ(hist []float64, lookback int) (z, spread float64, ok bool) {
	vals := valid(hist)
	min := lookback / 2
	if min < 10 {
		min = 10
	}
	if len(vals) < min {
		return 0, 0, false
	}
	last := vals[len(vals)-1]
	lo := len(vals) - lookback
	if lo < 0 {
		lo = 0
	}
	win := vals[lo:]
	if len(win) < lookback/2 {
		return 0, last, false
	}
	mu := mean(win)
	sd := popStd(win)
	if sd == 0 || math.IsNaN(sd) || math.IsNaN(mu) {
		return 0, last, false
	}
	return (last - mu) / sd, last, true
}
