package broker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"basketbot-go/internal/config"
	"basketbot-go/internal/metrics"
)

const defaultTradingBaseURL = "https://paper-api.alpaca.markets"

// Alpaca implements Adapter against the Alpaca trading REST API. Every call is
// paced by a rate limiter and guarded by a circuit breaker so a flapping broker
// degrades to fast failures instead of piling up blocked cycles.
type Alpaca struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     zerolog.Logger
}

// AlpacaOption configures the adapter.
type AlpacaOption func(*Alpaca)

// WithTradingBaseURL overrides the API host, mainly for tests.
func WithTradingBaseURL(url string) AlpacaOption {
	return func(a *Alpaca) {
		a.client.SetBaseURL(strings.TrimSuffix(url, "/"))
	}
}

// NewAlpaca builds the adapter from injected credentials.
func NewAlpaca(creds config.Credentials, log zerolog.Logger, opts ...AlpacaOption) *Alpaca {
	client := resty.New().
		SetBaseURL(defaultTradingBaseURL).
		SetTimeout(15 * time.Second).
		SetHeader("APCA-API-KEY-ID", creds.APIKey).
		SetHeader("APCA-API-SECRET-KEY", creds.APISecret)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "alpaca",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	a := &Alpaca{
		client:  client,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(3), 10),
		log:     log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ClientOrderID builds a unique client order identifier under the given prefix.
func ClientOrderID(prefix, symbol string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s", prefix, symbol, suffix)
}

func (a *Alpaca) call(ctx context.Context, fn func() (*resty.Response, error)) (*resty.Response, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := a.breaker.Execute(func() (interface{}, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*resty.Response), nil
}

// SubmitMarketNotional places a notional market order (fractional-friendly).
func (a *Alpaca) SubmitMarketNotional(ctx context.Context, symbol string, side Side, notional float64, tif, cidPrefix string) error {
	body := map[string]any{
		"symbol":          symbol,
		"side":            string(side),
		"type":            "market",
		"notional":        fmt.Sprintf("%.2f", abs(notional)),
		"time_in_force":   strings.ToLower(tif),
		"client_order_id": ClientOrderID(cidPrefix, symbol),
	}
	_, err := a.call(ctx, func() (*resty.Response, error) {
		return a.client.R().SetContext(ctx).SetBody(body).Post("/v2/orders")
	})
	if err != nil {
		return fmt.Errorf("submit market order %s %s: %w", side, symbol, err)
	}
	metrics.OrdersTotal.WithLabelValues(symbol, string(side)).Inc()
	a.log.Info().Str("sym", symbol).Str("side", string(side)).Float64("notional", abs(notional)).Msg("submitted market order")
	return nil
}

// SubmitLimitQty places a whole-share limit order derived from quantity.
func (a *Alpaca) SubmitLimitQty(ctx context.Context, symbol string, side Side, qty, limitPrice float64, tif, cidPrefix string) error {
	shares := int64(abs(qty))
	if shares < 1 {
		shares = 1
	}
	body := map[string]any{
		"symbol":          symbol,
		"side":            string(side),
		"type":            "limit",
		"qty":             strconv.FormatInt(shares, 10),
		"limit_price":     fmt.Sprintf("%.2f", limitPrice),
		"time_in_force":   strings.ToLower(tif),
		"client_order_id": ClientOrderID(cidPrefix, symbol),
	}
	_, err := a.call(ctx, func() (*resty.Response, error) {
		return a.client.R().SetContext(ctx).SetBody(body).Post("/v2/orders")
	})
	if err != nil {
		return fmt.Errorf("submit limit order %s %s: %w", side, symbol, err)
	}
	metrics.OrdersTotal.WithLabelValues(symbol, string(side)).Inc()
	a.log.Info().Str("sym", symbol).Str("side", string(side)).Int64("qty", shares).Float64("limit", limitPrice).Msg("submitted limit order")
	return nil
}

// CancelAllOpen cancels every open order on the account.
func (a *Alpaca) CancelAllOpen(ctx context.Context) error {
	_, err := a.call(ctx, func() (*resty.Response, error) {
		return a.client.R().SetContext(ctx).Delete("/v2/orders")
	})
	if err != nil {
		return fmt.Errorf("cancel all open: %w", err)
	}
	return nil
}

// OpenOrders lists orders still working at the broker.
func (a *Alpaca) OpenOrders(ctx context.Context) ([]Order, error) {
	var orders []Order
	_, err := a.call(ctx, func() (*resty.Response, error) {
		return a.client.R().SetContext(ctx).SetQueryParam("status", "open").SetResult(&orders).Get("/v2/orders")
	})
	if err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}
	return orders, nil
}

type alpacaPosition struct {
	Symbol string `json:"symbol"`
	Qty    string `json:"qty"`
}

// Positions returns signed share quantities per symbol.
func (a *Alpaca) Positions(ctx context.Context) (map[string]float64, error) {
	var raw []alpacaPosition
	_, err := a.call(ctx, func() (*resty.Response, error) {
		return a.client.R().SetContext(ctx).SetResult(&raw).Get("/v2/positions")
	})
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	out := make(map[string]float64, len(raw))
	for _, p := range raw {
		qty, err := strconv.ParseFloat(p.Qty, 64)
		if err != nil {
			a.log.Warn().Str("sym", p.Symbol).Str("qty", p.Qty).Msg("unparseable position quantity")
			continue
		}
		out[p.Symbol] = qty
	}
	return out, nil
}

type alpacaAccount struct {
	Equity string `json:"equity"`
	Cash   string `json:"cash"`
}

// AccountEquity returns current account equity, falling back to cash when the
// equity field is absent.
func (a *Alpaca) AccountEquity(ctx context.Context) (float64, error) {
	var acct alpacaAccount
	_, err := a.call(ctx, func() (*resty.Response, error) {
		return a.client.R().SetContext(ctx).SetResult(&acct).Get("/v2/account")
	})
	if err != nil {
		return 0, fmt.Errorf("account equity: %w", err)
	}
	if eq, err := strconv.ParseFloat(acct.Equity, 64); err == nil {
		return eq, nil
	}
	cash, err := strconv.ParseFloat(acct.Cash, 64)
	if err != nil {
		return 0, fmt.Errorf("account equity: unparseable equity %q and cash %q", acct.Equity, acct.Cash)
	}
	return cash, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
