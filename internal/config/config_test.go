package config

import (
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "basketbot-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.Basket.Reference != "OIH" {
		t.Fatalf("unexpected reference: %s", cfg.Basket.Reference)
	}
	if len(cfg.Basket.Components) != 2 || cfg.Basket.Components["SLB"] != 0.6 {
		t.Fatalf("unexpected components: %+v", cfg.Basket.Components)
	}
	if cfg.Basket.Multiplier != 1.0 {
		t.Fatalf("unexpected multiplier: %v", cfg.Basket.Multiplier)
	}
	if cfg.Strategy.Lookback != 120 {
		t.Fatalf("unexpected lookback: %d", cfg.Strategy.Lookback)
	}
	if cfg.Strategy.EntryZ != 1.5 || cfg.Strategy.ExitZ != 0.25 {
		t.Fatalf("unexpected thresholds: entry=%v exit=%v", cfg.Strategy.EntryZ, cfg.Strategy.ExitZ)
	}
	if cfg.Strategy.OrderType != "limit" || cfg.Strategy.TIF != "ioc" {
		t.Fatalf("unexpected order style: %s/%s", cfg.Strategy.OrderType, cfg.Strategy.TIF)
	}
	if cfg.Risk.MaxSymbolNotional != 15000 {
		t.Fatalf("unexpected max symbol notional: %v", cfg.Risk.MaxSymbolNotional)
	}
	if cfg.Risk.KillSwitchDrawdownPct != 5 {
		t.Fatalf("unexpected kill switch pct: %v", cfg.Risk.KillSwitchDrawdownPct)
	}
	if cfg.Risk.CancelAfterSec != 3 {
		t.Fatalf("unexpected cancel_after_sec: %d", cfg.Risk.CancelAfterSec)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestUniverseSortedWithReference(t *testing.T) {
	cfg := &Config{Basket: Basket{
		Reference:  "OIH",
		Components: map[string]float64{"SLB": 0.6, "HAL": 0.4},
	}}
	got := cfg.Universe()
	want := []string{"HAL", "OIH", "SLB"}
	if len(got) != len(want) {
		t.Fatalf("unexpected universe: %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("universe[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func validConfig() *Config {
	return &Config{
		Basket: Basket{
			Name:       "b",
			Components: map[string]float64{"A": 1, "B": 1},
			Multiplier: 1,
		},
		Strategy: Strategy{
			Lookback:         20,
			EntryZ:           1.5,
			ExitZ:            0.25,
			MaxLegNotional:   4000,
			MaxTotalNotional: 20000,
			OrderType:        "limit",
		},
		Risk: Risk{
			MaxSymbolNotional:     15000,
			KillSwitchDrawdownPct: 5,
		},
	}
}

func TestValidateRejectsZeroSumWeights(t *testing.T) {
	cfg := validConfig()
	cfg.Basket.Components = map[string]float64{"A": 1, "B": -1}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected zero-sum weights to be rejected")
	}
}

func TestValidateRejectsExitAboveEntry(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.ExitZ = 2.0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected exit_z >= entry_z to be rejected")
	}

	cfg = validConfig()
	cfg.Strategy.ExitZ = cfg.Strategy.EntryZ
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected exit_z == entry_z to be rejected")
	}
}

func TestValidateRejectsNegativeExit(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.ExitZ = -0.1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative exit_z to be rejected")
	}
}

func TestValidateRejectsUnknownOrderType(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.OrderType = "iceberg"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown order type to be rejected")
	}
}
