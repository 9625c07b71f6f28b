// Package basket implements the synthetic basket price and its rolling spread statistics.
package basket

import (
	"errors"
	"fmt"
	"math"
)

// ErrZeroSumWeights is returned when raw component weights cancel out.
var ErrZeroSumWeights = errors.New("component weights sum to zero")

// MissingPriceError reports a weighted symbol with no usable price in a row.
type MissingPriceError struct {
	Symbol string
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("missing price for %s", e.Symbol)
}

// Normalize rescales raw weights so they sum to 1. Relative proportions and
// signs are preserved.
func Normalize(raw map[string]float64) (map[string]float64, error) {
	var sum float64
	for _, w := range raw {
		sum += w
	}
	if sum == 0 {
		return nil, ErrZeroSumWeights
	}
	out := make(map[string]float64, len(raw))
	for sym, w := range raw {
		out[sym] = w / sum
	}
	return out, nil
}

// SyntheticPrice computes mult * sum of weight[s] * price[s]. Every weighted symbol
// must have a finite price; callers pre-filter incomplete rows.
func SyntheticPrice(prices map[string]float64, weights map[string]float64, mult float64) (float64, error) {
	var val float64
	for sym, w := range weights {
		px, ok := prices[sym]
		if !ok || math.IsNaN(px) || math.IsInf(px, 0) {
			return 0, &MissingPriceError{Symbol: sym}
		}
		val += w * px
	}
	return mult * val, nil
}
