// Package marketdata hosts bar types plus the historical and streaming sources.
package marketdata

import (
	"context"
	"math"
	"time"
)

// Bar is one close observation for one symbol.
type Bar struct {
	Symbol string
	Close  float64
	Ts     time.Time
}

// HistoricalBarSource retrieves a time-indexed close matrix. Providers may omit
// rows or columns; consumers drop incomplete rows before use.
type HistoricalBarSource interface {
	GetBars(ctx context.Context, symbols []string, start, end time.Time, timeframe string) (*Matrix, error)
}

// LiveBarStream pushes bars onto out until the context is canceled or the
// stream fails. A nil return means the upstream closed cleanly; either way the
// caller decides whether to reconnect.
type LiveBarStream interface {
	Run(ctx context.Context, out chan<- Bar) error
}

// Matrix is a wide close-price table: one row per timestamp, one column per
// symbol. Gaps are NaN.
type Matrix struct {
	Times []time.Time
	Close map[string][]float64
}

// Len returns the number of rows.
func (m *Matrix) Len() int { return len(m.Times) }

// Row returns the finite closes at row i as a symbol->price map.
func (m *Matrix) Row(i int) map[string]float64 {
	out := make(map[string]float64, len(m.Close))
	for sym, series := range m.Close {
		if px := series[i]; !math.IsNaN(px) {
			out[sym] = px
		}
	}
	return out
}

// Series returns the close column for one symbol, or nil when absent.
func (m *Matrix) Series(symbol string) []float64 { return m.Close[symbol] }

// DropIncomplete returns a new matrix keeping only rows where every required
// symbol has a finite close. Row order is preserved.
func (m *Matrix) DropIncomplete(required []string) *Matrix {
	keep := make([]int, 0, len(m.Times))
	for i := range m.Times {
		complete := true
		for _, sym := range required {
			series, ok := m.Close[sym]
			if !ok || math.IsNaN(series[i]) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, i)
		}
	}

	out := &Matrix{
		Times: make([]time.Time, len(keep)),
		Close: make(map[string][]float64, len(m.Close)),
	}
	for sym := range m.Close {
		out.Close[sym] = make([]float64, len(keep))
	}
	for j, i := range keep {
		out.Times[j] = m.Times[i]
		for sym, series := range m.Close {
			out.Close[sym][j] = series[i]
		}
	}
	return out
}
