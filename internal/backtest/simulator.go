// Package backtest replays a historical close matrix through the shared signal
// path and simulates fills, cash, and mark-to-market equity.
package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"basketbot-go/internal/basket"
	"basketbot-go/internal/config"
	"basketbot-go/internal/marketdata"
	"basketbot-go/internal/risk"
	"basketbot-go/internal/signal"
)

const epsilon = 1e-9

// Fill is an immutable record of one simulated execution. Quantity is signed.
type Fill struct {
	Ts     time.Time `json:"ts"`
	Symbol string    `json:"symbol"`
	Qty    float64   `json:"qty"`
	Price  float64   `json:"price"`
}

// FillRecorder captures fills for later inspection.
type FillRecorder interface {
	Record(Fill)
}

// EquityPoint is one mark-to-market observation of the simulated account.
type EquityPoint struct {
	Ts     time.Time
	Equity float64
}

// Simulator owns the replay state: cash and positions are mutated only by its
// fill routine, which keeps the run deterministic and single-writer.
type Simulator struct {
	params           signal.Params
	limits           risk.Limits
	bias             float64
	multiplier       float64
	slipBps          float64
	lookback         int
	rebalanceEachBar bool
	log              zerolog.Logger
	recorder         FillRecorder

	cash      float64
	positions map[string]float64
	fills     []Fill
}

// Option configures optional simulator collaborators.
type Option func(*Simulator)

// WithRecorder streams every simulated fill into the given recorder.
func WithRecorder(r FillRecorder) Option {
	return func(s *Simulator) { s.recorder = r }
}

// New validates the basket weights and builds a simulator for the config.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) (*Simulator, error) {
	weights, err := basket.Normalize(cfg.Basket.Components)
	if err != nil {
		return nil, err
	}
	s := &Simulator{
		params: signal.Params{
			Reference:        cfg.Basket.Reference,
			Weights:          weights,
			Lookback:         cfg.Strategy.Lookback,
			EntryZ:           cfg.Strategy.EntryZ,
			ExitZ:            cfg.Strategy.ExitZ,
			MaxLegNotional:   cfg.Strategy.MaxLegNotional,
			MaxTotalNotional: cfg.Strategy.MaxTotalNotional,
		},
		limits: risk.Limits{
			AllowShorts:       cfg.Risk.AllowShorts,
			MaxTotalNotional:  cfg.Strategy.MaxTotalNotional,
			MaxSymbolNotional: cfg.Risk.MaxSymbolNotional,
		},
		bias:             cfg.Basket.Bias,
		multiplier:       cfg.Basket.Multiplier,
		slipBps:          cfg.Strategy.LimitSlipBps,
		lookback:         cfg.Strategy.Lookback,
		rebalanceEachBar: cfg.Strategy.RebalanceEachBar,
		log:              log,
		positions:        make(map[string]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Fills returns the append-only fill log.
func (s *Simulator) Fills() []Fill {
	out := make([]Fill, len(s.fills))
	copy(out, s.fills)
	return out
}

// Run replays the matrix bar-by-bar from the second row. Rows missing any
// required symbol are dropped up front; the returned equity curve has one point
// per retained bar starting from the second.
func (s *Simulator) Run(m *marketdata.Matrix) ([]EquityPoint, error) {
	required := make([]string, 0, len(s.params.Weights)+1)
	for sym := range s.params.Weights {
		required = append(required, sym)
	}
	if s.params.Reference != "" {
		required = append(required, s.params.Reference)
	}
	sort.Strings(required)
	m = m.DropIncomplete(required)

	syn := make([]float64, m.Len())
	for i := range syn {
		px, err := basket.SyntheticPrice(m.Row(i), s.params.Weights, s.multiplier)
		if err != nil {
			return nil, err
		}
		syn[i] = px
	}
	var spread []float64
	if s.params.Reference != "" {
		spread = basket.ReferenceSpread(m.Series(s.params.Reference), syn, s.bias)
	} else {
		spread = basket.SelfSpread(syn, s.lookback)
	}

	curve := make([]EquityPoint, 0, m.Len())
	for i := 1; i < m.Len(); i++ {
		ts := m.Times[i]
		row := m.Row(i)
		sig := signal.Evaluate(spread[:i+1], s.params)

		switch sig.Action {
		case signal.LongBasket, signal.ShortBasket:
			if s.rebalanceEachBar || !s.hasOpenPosition() {
				s.enter(ts, sig, row)
			}
		case signal.Exit:
			s.flatten(ts, row)
		}

		curve = append(curve, EquityPoint{Ts: ts, Equity: s.markToMarket(row)})
	}
	return curve, nil
}

func (s *Simulator) enter(ts time.Time, sig signal.Signal, row map[string]float64) {
	sized, skipped := s.limits.Size(sig.Target)
	for _, leg := range skipped {
		s.log.Debug().Str("sym", leg.Symbol).Float64("notional", leg.Notional).Str("reason", leg.Reason).Msg("leg skipped")
	}
	for _, sym := range sortedKeys(sized) {
		px, ok := row[sym]
		if !ok || px <= 0 {
			continue
		}
		side := 1.0
		if sized[sym] < 0 {
			side = -1.0
		}
		qty := sized[sym] / (px * (1 + side*s.slipBps/1e4))
		s.fill(ts, sym, qty, px)
	}
}

func (s *Simulator) flatten(ts time.Time, row map[string]float64) {
	for _, sym := range sortedKeys(s.positions) {
		qty := s.positions[sym]
		if math.Abs(qty) < epsilon {
			continue
		}
		px, ok := row[sym]
		if !ok {
			continue
		}
		s.fill(ts, sym, -qty, px)
	}
}

// fill executes a signed quantity against the bar price: buys pay up, sells
// receive down, by slipBps.
func (s *Simulator) fill(ts time.Time, symbol string, qty, price float64) {
	if price <= 0 || qty == 0 {
		return
	}
	side := 1.0
	if qty < 0 {
		side = -1.0
	}
	px := price * (1 + side*s.slipBps/1e4)
	s.positions[symbol] += qty
	s.cash -= qty * px
	f := Fill{Ts: ts, Symbol: symbol, Qty: qty, Price: px}
	s.fills = append(s.fills, f)
	if s.recorder != nil {
		s.recorder.Record(f)
	}
}

// markToMarket values the account with the current row; symbols without a
// price are skipped, not treated as zero.
func (s *Simulator) markToMarket(row map[string]float64) float64 {
	eq := s.cash
	for _, sym := range sortedKeys(s.positions) {
		if px, ok := row[sym]; ok {
			eq += s.positions[sym] * px
		}
	}
	return eq
}

func (s *Simulator) hasOpenPosition() bool {
	for _, qty := range s.positions {
		if math.Abs(qty) > epsilon {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
