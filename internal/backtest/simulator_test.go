package backtest

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"basketbot-go/internal/config"
	"basketbot-go/internal/marketdata"
)

func barTime(i int) time.Time {
	return time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute)
}

func matrixFrom(series map[string][]float64) *marketdata.Matrix {
	var n int
	for _, s := range series {
		n = len(s)
		break
	}
	times := make([]time.Time, n)
	for i := range times {
		times[i] = barTime(i)
	}
	return &marketdata.Matrix{Times: times, Close: series}
}

func pairConfig() *config.Config {
	return &config.Config{
		Basket: config.Basket{
			Name:       "test",
			Reference:  "ETF",
			Components: map[string]float64{"X": 0.6, "Y": 0.4},
			Multiplier: 1,
		},
		Strategy: config.Strategy{
			Lookback:         20,
			EntryZ:           1.5,
			ExitZ:            0.25,
			MaxLegNotional:   4000,
			MaxTotalNotional: 20000,
			LimitSlipBps:     5,
		},
		Risk: config.Risk{
			AllowShorts:       true,
			MaxSymbolNotional: 15000,
		},
	}
}

// jumpMatrix holds spread at 0 for 21 bars, jumps 5 points on bar 22, then
// snaps back.
func jumpMatrix(n int) *marketdata.Matrix {
	etf := make([]float64, n)
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range etf {
		etf[i] = 10
		x[i] = 10
		y[i] = 10
	}
	if n > 21 {
		etf[21] = 15
	}
	return matrixFrom(map[string][]float64{"ETF": etf, "X": x, "Y": y})
}

func TestShortEntryOnSpreadJump(t *testing.T) {
	sim, err := New(pairConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	curve, err := sim.Run(jumpMatrix(23))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(curve) != 22 {
		t.Fatalf("expected one equity point per bar from the second, got %d", len(curve))
	}

	fills := sim.Fills()
	if len(fills) < 3 {
		t.Fatalf("expected entry fills on the jump bar, got %d", len(fills))
	}
	bys := map[string]float64{}
	for _, f := range fills[:3] {
		if !f.Ts.Equal(barTime(21)) {
			t.Fatalf("expected fills on bar 22, got %v", f.Ts)
		}
		bys[f.Symbol] = f.Qty
	}
	if bys["ETF"] >= 0 {
		t.Fatalf("expected short reference leg, got %v", bys["ETF"])
	}
	if bys["X"] <= 0 || bys["Y"] <= 0 {
		t.Fatalf("expected long component legs, got %v", bys)
	}
	// leftover 16000 split 60/40 across X and Y at fill prices
	if math.Abs(bys["X"]/bys["Y"]-1.5) > 1e-9 {
		t.Fatalf("expected X/Y qty ratio 1.5, got %v", bys["X"]/bys["Y"])
	}
}

func TestExitFlattensPositions(t *testing.T) {
	sim, err := New(pairConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := sim.Run(jumpMatrix(30)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	// Spread snapped back after the jump, putting |z| inside the exit band;
	// every position must be flat by the end of the run.
	for sym, qty := range sim.positions {
		if math.Abs(qty) > epsilon {
			t.Fatalf("expected %s flat after exit, got %v", sym, qty)
		}
	}
}

func TestRunDeterminism(t *testing.T) {
	run := func() ([]EquityPoint, []Fill) {
		sim, err := New(pairConfig(), zerolog.Nop())
		if err != nil {
			t.Fatalf("New returned error: %v", err)
		}
		curve, err := sim.Run(jumpMatrix(30))
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		return curve, sim.Fills()
	}
	curve1, fills1 := run()
	curve2, fills2 := run()
	if !reflect.DeepEqual(curve1, curve2) {
		t.Fatalf("equity curves differ between identical runs")
	}
	if !reflect.DeepEqual(fills1, fills2) {
		t.Fatalf("fills differ between identical runs")
	}
}

func TestMarkToMarketEquity(t *testing.T) {
	cfg := pairConfig()
	cfg.Basket.Reference = ""
	cfg.Basket.Components = map[string]float64{"A": 1}
	sim, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	// Seed an open position of 10 shares with zero cash; the short series
	// keeps the signal in its insufficient-data state, so no trades occur.
	sim.positions["A"] = 10

	curve, err := sim.Run(matrixFrom(map[string][]float64{"A": {100, 101, 99}}))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(sim.Fills()) != 0 {
		t.Fatalf("expected no fills, got %d", len(sim.Fills()))
	}
	if len(curve) != 2 {
		t.Fatalf("expected 2 equity points, got %d", len(curve))
	}
	if curve[0].Equity != 1010 {
		t.Fatalf("equity after bar 2 = %v, want 1010", curve[0].Equity)
	}
	if curve[1].Equity != 990 {
		t.Fatalf("equity after bar 3 = %v, want 990", curve[1].Equity)
	}
}

func TestIncompleteRowsDropped(t *testing.T) {
	cfg := pairConfig()
	sim, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	m := jumpMatrix(23)
	m.Close["X"][5] = math.NaN()
	curve, err := sim.Run(m)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(curve) != 21 {
		t.Fatalf("expected dropped row to shorten the curve to 21, got %d", len(curve))
	}
}

func TestPerSymbolCapDropsLeg(t *testing.T) {
	cfg := pairConfig()
	cfg.Risk.MaxSymbolNotional = 9000 // X leg targets 9600 and must be dropped
	sim, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := sim.Run(jumpMatrix(23)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	for _, f := range sim.Fills() {
		if f.Symbol == "X" {
			t.Fatalf("expected X leg to be skipped, got fill %+v", f)
		}
	}
	var sawY bool
	for _, f := range sim.Fills() {
		if f.Symbol == "Y" {
			sawY = true
		}
	}
	if !sawY {
		t.Fatalf("expected surviving legs to still execute")
	}
}
