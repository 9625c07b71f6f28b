package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"basketbot-go/internal/config"
)

func newTestAlpaca(t *testing.T, handler http.HandlerFunc) (*Alpaca, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a := NewAlpaca(config.Credentials{APIKey: "key", APISecret: "secret"}, zerolog.Nop(), WithTradingBaseURL(srv.URL))
	return a, srv
}

func TestClientOrderIDUniqueWithPrefix(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := ClientOrderID("basket-123", "SLB")
		if !strings.HasPrefix(id, "basket-123-SLB-") {
			t.Fatalf("unexpected client order id: %s", id)
		}
		if seen[id] {
			t.Fatalf("duplicate client order id: %s", id)
		}
		seen[id] = true
	}
}

func TestSubmitMarketNotional(t *testing.T) {
	var got map[string]any
	a, _ := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("APCA-API-KEY-ID") != "key" {
			t.Errorf("missing auth header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"1"}`))
	})

	err := a.SubmitMarketNotional(context.Background(), "SLB", Buy, -2500, "ioc", "grp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["notional"] != "2500.00" {
		t.Fatalf("expected absolute notional, got %v", got["notional"])
	}
	if got["type"] != "market" || got["side"] != "buy" {
		t.Fatalf("unexpected order body: %v", got)
	}
	cid, _ := got["client_order_id"].(string)
	if !strings.HasPrefix(cid, "grp-SLB-") {
		t.Fatalf("client order id missing prefix: %s", cid)
	}
}

func TestSubmitLimitQtyFloorsAtOneShare(t *testing.T) {
	var got map[string]any
	a, _ := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"1"}`))
	})

	if err := a.SubmitLimitQty(context.Background(), "OIH", Sell, 0.4, 301.23, "day", "grp"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["qty"] != "1" {
		t.Fatalf("expected qty floored to 1, got %v", got["qty"])
	}
	if got["limit_price"] != "301.23" {
		t.Fatalf("unexpected limit price: %v", got["limit_price"])
	}
}

func TestPositionsParsesSignedQuantities(t *testing.T) {
	a, _ := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/positions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"symbol":"SLB","qty":"12.5"},{"symbol":"OIH","qty":"-3"}]`))
	})

	pos, err := a.Positions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos["SLB"] != 12.5 || pos["OIH"] != -3 {
		t.Fatalf("unexpected positions: %v", pos)
	}
}

func TestAccountEquityFallsBackToCash(t *testing.T) {
	a, _ := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"equity":"","cash":"50000.5"}`))
	})
	eq, err := a.AccountEquity(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eq != 50000.5 {
		t.Fatalf("expected cash fallback 50000.5, got %v", eq)
	}
}

func TestTransientErrorSurfaces(t *testing.T) {
	a, _ := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busted", http.StatusBadGateway)
	})
	if err := a.CancelAllOpen(context.Background()); err == nil {
		t.Fatalf("expected error from 502 response")
	}
}

func TestSideForNotional(t *testing.T) {
	if SideForNotional(100) != Buy || SideForNotional(-100) != Sell {
		t.Fatalf("unexpected side mapping")
	}
}
