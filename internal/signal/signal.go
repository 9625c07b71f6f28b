// Package signal holds the shared spread-signal evaluation used by both the
// backtest simulator and the live loop. Keeping one pure implementation is what
// guarantees backtest/live parity.
package signal

import (
	"basketbot-go/internal/basket"
)

// Action enumerates what a signal evaluation asks the caller to do.
type Action string

const (
	// None means hold: either inside the dead zone or not enough data.
	None Action = "NONE"
	// LongBasket buys the reference and sells the components.
	LongBasket Action = "LONG_BASKET"
	// ShortBasket sells the reference and buys the components.
	ShortBasket Action = "SHORT_BASKET"
	// Exit flattens whatever is currently held; no targets are built.
	Exit Action = "EXIT"
)

// Params mirrors the configuration slice the evaluation needs. Weights must
// already be normalized.
type Params struct {
	Reference        string
	Weights          map[string]float64
	Lookback         int
	EntryZ           float64
	ExitZ            float64
	MaxLegNotional   float64
	MaxTotalNotional float64
}

// Signal is the immutable result of one evaluation. Target maps symbol to
// signed notional (positive = long); it is empty for None and Exit.
type Signal struct {
	Spread float64
	Z      float64
	Action Action
	Target map[string]float64
}

// Evaluate applies the threshold state machine to the latest spread history.
// It is memoryless: the position, not the signal, carries state across bars.
//
//	z > entry:  ShortBasket (basket rich)
//	z < -entry: LongBasket
//	|z| < exit: Exit
//	otherwise:  None (hysteresis dead zone)
func Evaluate(hist []float64, p Params) Signal {
	z, spread, ok := basket.LatestZ(hist, p.Lookback)
	if !ok {
		return Signal{Spread: spread, Action: None}
	}

	sig := Signal{Spread: spread, Z: z, Action: None}
	switch {
	case z > p.EntryZ:
		sig.Action = ShortBasket
		sig.Target = p.buildTargets(-1)
	case z < -p.EntryZ:
		sig.Action = LongBasket
		sig.Target = p.buildTargets(+1)
	case abs(z) < p.ExitZ:
		sig.Action = Exit
	}
	return sig
}

// buildTargets constructs per-leg signed notionals. refSign is the direction of
// the reference leg (+1 long basket, -1 short basket).
func (p Params) buildTargets(refSign float64) map[string]float64 {
	targets := make(map[string]float64, len(p.Weights)+1)
	if p.Reference != "" {
		targets[p.Reference] = refSign * p.MaxLegNotional
		leftover := p.MaxTotalNotional - p.MaxLegNotional
		if leftover < 0 {
			leftover = 0
		}
		for sym, w := range p.Weights {
			targets[sym] = -refSign * leftover * w
		}
		return targets
	}
	for sym, w := range p.Weights {
		targets[sym] = refSign * p.MaxLegNotional * w
	}
	return targets
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
