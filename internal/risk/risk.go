// Package risk caps and filters target notionals and tracks the drawdown watermark.
package risk

import "math"

// Limits bounds how much exposure a single decision cycle may create.
type Limits struct {
	AllowShorts       bool
	MaxTotalNotional  float64
	MaxSymbolNotional float64
}

// SkippedLeg records a leg dropped by the sizer; partial basket execution is
// accepted rather than blocking the whole signal.
type SkippedLeg struct {
	Symbol   string
	Notional float64
	Reason   string
}

// Size scales the target map so gross notional stays under MaxTotalNotional
// (uniform shrink preserving leg proportions), then drops any leg whose
// post-scale magnitude exceeds MaxSymbolNotional. Dropped legs are reported,
// not clipped.
func (l Limits) Size(targets map[string]float64) (map[string]float64, []SkippedLeg) {
	var gross float64
	for _, ntl := range targets {
		gross += math.Abs(ntl)
	}
	scale := 1.0
	if l.MaxTotalNotional > 0 && gross > l.MaxTotalNotional {
		scale = l.MaxTotalNotional / gross
	}

	sized := make(map[string]float64, len(targets))
	var skipped []SkippedLeg
	for sym, ntl := range targets {
		scaled := ntl * scale
		if !l.AllowShorts && scaled < 0 {
			skipped = append(skipped, SkippedLeg{Symbol: sym, Notional: scaled, Reason: "shorts disabled"})
			continue
		}
		if math.Abs(scaled) > l.MaxSymbolNotional {
			skipped = append(skipped, SkippedLeg{Symbol: sym, Notional: scaled, Reason: "per-symbol cap"})
			continue
		}
		sized[sym] = scaled
	}
	return sized, skipped
}

// Watermark tracks the running maximum of observed account equity. It is
// monotonically non-decreasing and resets only with the process.
type Watermark struct {
	peak float64
}

// Observe folds a new equity reading into the watermark.
func (w *Watermark) Observe(equity float64) {
	if equity > w.peak {
		w.peak = equity
	}
}

// Peak returns the highest equity seen so far.
func (w *Watermark) Peak() float64 { return w.peak }

// Drawdown returns the fractional decline from the peak, 0 when no positive
// peak has been observed yet.
func (w *Watermark) Drawdown(equity float64) float64 {
	if w.peak <= 0 {
		return 0
	}
	return (w.peak - equity) / w.peak
}
