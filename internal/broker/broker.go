// Package broker defines the order/account surface the trading core depends on.
package broker

import "context"

// Side enumerates order directions.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// SideForNotional maps a signed target notional to an order side.
func SideForNotional(notional float64) Side {
	if notional < 0 {
		return Sell
	}
	return Buy
}

// Order is a broker-side order as reported by the open-orders query.
type Order struct {
	ID            string  `json:"id"`
	ClientOrderID string  `json:"client_order_id"`
	Symbol        string  `json:"symbol"`
	Side          Side    `json:"side"`
	Qty           string  `json:"qty"`
	Notional      string  `json:"notional"`
	LimitPrice    string  `json:"limit_price"`
	Status        string  `json:"status"`
}

// Adapter is the brokerage contract. All calls may fail transiently; callers
// log and continue except where a failure is part of the kill-switch path.
// Client order IDs are unique per submission and carry the supplied prefix so
// fills can be correlated back to the triggering decision cycle.
type Adapter interface {
	SubmitMarketNotional(ctx context.Context, symbol string, side Side, notional float64, tif, cidPrefix string) error
	SubmitLimitQty(ctx context.Context, symbol string, side Side, qty, limitPrice float64, tif, cidPrefix string) error
	CancelAllOpen(ctx context.Context) error
	OpenOrders(ctx context.Context) ([]Order, error)
	Positions(ctx context.Context) (map[string]float64, error)
	AccountEquity(ctx context.Context) (float64, error)
}
