// Package live drives the trading loop against a streaming bar feed: rolling
// buffers, the shared signal path, drawdown kill switch, order dispatch, and
// reconnect with backoff.
package live

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"basketbot-go/internal/basket"
	"basketbot-go/internal/broker"
	"basketbot-go/internal/config"
	"basketbot-go/internal/marketdata"
	"basketbot-go/internal/metrics"
	"basketbot-go/internal/risk"
	"basketbot-go/internal/signal"
)

// ErrKillSwitch is returned by Run when the drawdown kill switch fires. It is
// the only clean termination: every other failure reconnects.
var ErrKillSwitch = errors.New("kill switch drawdown breached")

const (
	posEpsilon     = 1e-6
	bufferMultiple = 5
	marketTimezone = "America/New_York"
)

// Loop owns the per-symbol buffers and the equity watermark; nothing else
// reads or writes them. Bar arrival is the only driver of evaluation.
type Loop struct {
	cfg    *config.Config
	params signal.Params
	limits risk.Limits
	brk    broker.Adapter
	stream marketdata.LiveBarStream
	log    zerolog.Logger

	loc       *time.Location
	universe  []string
	buffers   map[string]*priceBuffer
	lastPx    map[string]float64
	watermark risk.Watermark

	baseBackoff time.Duration
	maxBackoff  time.Duration
	cancelTimer *time.Timer
}

// New validates the basket weights and wires the loop to its collaborators.
func New(cfg *config.Config, brk broker.Adapter, stream marketdata.LiveBarStream, log zerolog.Logger) (*Loop, error) {
	weights, err := basket.Normalize(cfg.Basket.Components)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(marketTimezone)
	if err != nil {
		return nil, fmt.Errorf("load market timezone: %w", err)
	}
	l := &Loop{
		cfg: cfg,
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
		brk:         brk,
		stream:      stream,
		log:         log,
		loc:         loc,
		universe:    cfg.Universe(),
		buffers:     make(map[string]*priceBuffer),
		lastPx:      make(map[string]float64),
		baseBackoff: time.Second,
		maxBackoff:  30 * time.Second,
	}
	for _, sym := range l.universe {
		l.buffers[sym] = newPriceBuffer(bufferMultiple * cfg.Strategy.Lookback)
	}
	return l, nil
}

// Run consumes the stream until the context is canceled or the kill switch
// fires. Stream failures reconnect with exponential backoff, doubling from the
// base delay up to the cap.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopDeferredCancel()
	delay := l.baseBackoff
	for {
		err := l.runStream(ctx)
		switch {
		case errors.Is(err, ErrKillSwitch):
			l.log.Warn().Msg("stopped by kill switch")
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			metrics.StreamReconnectsTotal.Inc()
			l.log.Warn().Err(err).Dur("backoff", delay).Msg("stream failed, reconnecting")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay = nextBackoff(delay, l.maxBackoff)
		}
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}

func (l *Loop) runStream(ctx context.Context) error {
	bars := make(chan marketdata.Bar, 256)
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- l.stream.Run(streamCtx, bars) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			if err == nil {
				err = errors.New("bar stream closed")
			}
			return err
		case bar := <-bars:
			if err := l.onBar(ctx, bar); err != nil {
				return err
			}
		}
	}
}

// onBar is one decision cycle. It returns an error only for the kill switch;
// transient broker failures are logged and the cycle moves on.
func (l *Loop) onBar(ctx context.Context, bar marketdata.Bar) error {
	if !InRegularHours(bar.Ts, l.loc) {
		return nil
	}
	buf, ok := l.buffers[bar.Symbol]
	if !ok {
		return nil
	}
	buf.Push(bar.Close)
	l.lastPx[bar.Symbol] = bar.Close
	metrics.BarsTotal.WithLabelValues(bar.Symbol).Inc()

	if !l.warm() {
		return nil
	}

	hist := l.spreadHistory()
	sig := signal.Evaluate(hist, l.params)
	metrics.SignalsTotal.WithLabelValues(string(sig.Action)).Inc()
	metrics.LiveZScore.Set(sig.Z)
	l.log.Info().
		Str("sym", bar.Symbol).
		Float64("z", sig.Z).
		Float64("spread", sig.Spread).
		Str("action", string(sig.Action)).
		Msg("bar evaluated")

	if err := l.checkKillSwitch(ctx); err != nil {
		return err
	}

	switch sig.Action {
	case signal.LongBasket, signal.ShortBasket:
		l.dispatchEntry(ctx, sig)
	case signal.Exit:
		l.dispatchExit(ctx)
	}
	return nil
}

// warm reports whether every subscribed symbol has a full lookback of history.
func (l *Loop) warm() bool {
	for _, sym := range l.universe {
		if l.buffers[sym].Len() < l.cfg.Strategy.Lookback {
			return false
		}
	}
	return true
}

// spreadHistory rebuilds the spread series over the aligned tail of the
// buffers. The loop does not synchronize bars across instruments; it evaluates
// whatever is newest in each buffer.
func (l *Loop) spreadHistory() []float64 {
	n := 2 * l.params.Lookback
	for _, sym := range l.universe {
		if ln := l.buffers[sym].Len(); ln < n {
			n = ln
		}
	}
	tails := make(map[string][]float64, len(l.universe))
	for _, sym := range l.universe {
		tails[sym] = l.buffers[sym].Tail(n)
	}

	syn := make([]float64, n)
	row := make(map[string]float64, len(l.params.Weights))
	for i := 0; i < n; i++ {
		for sym := range l.params.Weights {
			row[sym] = tails[sym][i]
		}
		px, err := basket.SyntheticPrice(row, l.params.Weights, l.cfg.Basket.Multiplier)
		if err != nil {
			return nil
		}
		syn[i] = px
	}
	if l.params.Reference != "" {
		return basket.ReferenceSpread(tails[l.params.Reference], syn, l.cfg.Basket.Bias)
	}
	return basket.SelfSpread(syn, l.params.Lookback)
}

// checkKillSwitch folds live equity into the watermark and, on breach, cancels
// everything, flattens exhaustively, and terminates the loop. A failed equity
// read is transient: logged, no decision made on stale data.
func (l *Loop) checkKillSwitch(ctx context.Context) error {
	equity, err := l.brk.AccountEquity(ctx)
	if err != nil {
		l.log.Warn().Err(err).Msg("equity check failed")
		return nil
	}
	l.watermark.Observe(equity)
	dd := l.watermark.Drawdown(equity)
	if dd*100 < l.cfg.Risk.KillSwitchDrawdownPct {
		return nil
	}

	l.log.Error().
		Float64("drawdown_pct", dd*100).
		Float64("equity", equity).
		Float64("peak", l.watermark.Peak()).
		Msg("kill switch tripped, flattening and stopping")
	if err := l.brk.CancelAllOpen(ctx); err != nil {
		l.log.Warn().Err(err).Msg("cancel-all failed during kill switch")
	}
	positions, err := l.brk.Positions(ctx)
	if err != nil {
		l.log.Error().Err(err).Msg("positions unavailable during kill switch flatten")
	} else {
		l.flatten(ctx, positions, "killswitch")
	}
	return ErrKillSwitch
}

func (l *Loop) dispatchEntry(ctx context.Context, sig signal.Signal) {
	if !l.cfg.Strategy.RebalanceEachBar {
		positions, err := l.brk.Positions(ctx)
		if err != nil {
			l.log.Warn().Err(err).Msg("positions unavailable, skipping entry")
			return
		}
		for _, sym := range l.universe {
			if math.Abs(positions[sym]) > posEpsilon {
				return // already in the trade; position carries the state
			}
		}
	}

	sized, skipped := l.limits.Size(sig.Target)
	for _, leg := range skipped {
		metrics.LegsSkippedTotal.WithLabelValues(leg.Symbol).Inc()
		l.log.Info().Str("sym", leg.Symbol).Float64("notional", leg.Notional).Str("reason", leg.Reason).Msg("leg skipped")
	}

	groupID := fmt.Sprintf("basket-%d", time.Now().Unix())
	for _, sym := range sortedKeys(sized) {
		notional := sized[sym]
		side := broker.SideForNotional(notional)
		if err := l.submit(ctx, sym, side, math.Abs(notional), groupID); err != nil {
			l.log.Warn().Err(err).Str("sym", sym).Msg("entry order failed")
		}
	}
	l.scheduleCancelAll(ctx)
}

func (l *Loop) dispatchExit(ctx context.Context) {
	positions, err := l.brk.Positions(ctx)
	if err != nil {
		l.log.Warn().Err(err).Msg("positions unavailable, skipping exit")
		return
	}
	l.flatten(ctx, positions, fmt.Sprintf("basket-%d-exit", time.Now().Unix()))
}

// flatten submits offsetting orders for every non-negligible position. Per-leg
// failures are logged and never stop the remaining legs.
func (l *Loop) flatten(ctx context.Context, positions map[string]float64, cidPrefix string) {
	for _, sym := range sortedKeys(positions) {
		qty := positions[sym]
		if math.Abs(qty) < posEpsilon {
			continue
		}
		side := broker.Sell
		if qty < 0 {
			side = broker.Buy
		}
		last := l.lastPx[sym]
		if last <= 0 {
			l.log.Error().Str("sym", sym).Float64("qty", qty).Msg("no last price, cannot size flatten order")
			continue
		}
		var err error
		if l.marketOrders() {
			err = l.brk.SubmitMarketNotional(ctx, sym, side, math.Abs(qty)*last, l.cfg.Strategy.TIF, cidPrefix)
		} else {
			err = l.brk.SubmitLimitQty(ctx, sym, side, math.Abs(qty), limitFromLast(last, side, l.cfg.Strategy.LimitSlipBps), l.cfg.Strategy.TIF, cidPrefix)
		}
		if err != nil {
			l.log.Warn().Err(err).Str("sym", sym).Msg("flatten order failed")
		}
	}
}

func (l *Loop) submit(ctx context.Context, symbol string, side broker.Side, notional float64, cidPrefix string) error {
	if l.marketOrders() {
		return l.brk.SubmitMarketNotional(ctx, symbol, side, notional, l.cfg.Strategy.TIF, cidPrefix)
	}
	last := l.lastPx[symbol]
	if last <= 0 {
		return fmt.Errorf("no last price for %s", symbol)
	}
	limit := limitFromLast(last, side, l.cfg.Strategy.LimitSlipBps)
	return l.brk.SubmitLimitQty(ctx, symbol, side, notional/limit, limit, l.cfg.Strategy.TIF, cidPrefix)
}

func (l *Loop) marketOrders() bool {
	return strings.EqualFold(l.cfg.Strategy.OrderType, "market")
}

func limitFromLast(last float64, side broker.Side, slipBps float64) float64 {
	slip := slipBps / 1e4
	if side == broker.Buy {
		return last * (1 - slip)
	}
	return last * (1 + slip)
}

// scheduleCancelAll arms the deferred stale-order cancellation. Re-arming
// replaces any pending timer; loop shutdown stops it so no timer outlives the
// run.
func (l *Loop) scheduleCancelAll(ctx context.Context) {
	delay := time.Duration(l.cfg.Risk.CancelAfterSec) * time.Second
	if l.cancelTimer != nil {
		l.cancelTimer.Stop()
	}
	l.cancelTimer = time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := l.brk.CancelAllOpen(ctx); err != nil {
			l.log.Warn().Err(err).Msg("deferred cancel-all failed")
		}
	})
}

func (l *Loop) stopDeferredCancel() {
	if l.cancelTimer != nil {
		l.cancelTimer.Stop()
	}
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
