// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
}

// Basket describes the synthetic instrument: component weights, an optional
// reference symbol traded against it, an additive bias, and a price multiplier.
type Basket struct {
	Name       string             `yaml:"name"`
	Reference  string             `yaml:"reference"`
	Components map[string]float64 `yaml:"components"`
	Bias       float64            `yaml:"bias"`
	Multiplier float64            `yaml:"multiplier"`
}

// Strategy groups the tunable knobs of the mean-reversion signal and order placement.
type Strategy struct {
	Timeframe        string  `yaml:"timeframe"`
	Lookback         int     `yaml:"lookback"`
	EntryZ           float64 `yaml:"entry_z"`
	ExitZ            float64 `yaml:"exit_z"`
	MaxLegNotional   float64 `yaml:"max_leg_notional"`
	MaxTotalNotional float64 `yaml:"max_total_notional"`
	OrderType        string  `yaml:"order_type"` // "market" | "limit"
	LimitSlipBps     float64 `yaml:"limit_slip_bps"`
	TIF              string  `yaml:"tif"`
	RebalanceEachBar bool    `yaml:"rebalance_each_bar"`
}

// Risk encodes guard-rails for how much size the trader may take on.
type Risk struct {
	AllowShorts           bool    `yaml:"allow_shorts"`
	MaxGrossExposure      float64 `yaml:"max_gross_exposure"`
	MaxSymbolNotional     float64 `yaml:"max_symbol_notional"`
	CancelAfterSec        int     `yaml:"cancel_after_sec"`
	KillSwitchDrawdownPct float64 `yaml:"kill_switch_drawdown_pct"`
}

// Data bounds the historical window used by the backtest.
type Data struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Basket   Basket   `yaml:"basket"`
	Strategy Strategy `yaml:"strategy"`
	Risk     Risk     `yaml:"risk"`
	Data     Data     `yaml:"data"`
}

// Load reads a YAML file from disk, hydrates a Config struct, applies defaults,
// and rejects invariant violations before any component sees the values.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Basket.Multiplier == 0 {
		c.Basket.Multiplier = 1.0
	}
	if c.Strategy.Timeframe == "" {
		c.Strategy.Timeframe = "1Min"
	}
	if c.Strategy.OrderType == "" {
		c.Strategy.OrderType = "limit"
	}
	if c.Strategy.TIF == "" {
		c.Strategy.TIF = "ioc"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
}

// Validate enforces the configuration invariants: non-empty non-zero-sum weights,
// a positive lookback, and an exit band strictly inside the entry band.
func (c *Config) Validate() error {
	if len(c.Basket.Components) == 0 {
		return fmt.Errorf("basket %q: no components", c.Basket.Name)
	}
	var sum float64
	for sym, w := range c.Basket.Components {
		if sym == "" {
			return fmt.Errorf("basket %q: empty component symbol", c.Basket.Name)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("basket %q: weight for %s is not finite", c.Basket.Name, sym)
		}
		sum += w
	}
	if sum == 0 {
		return fmt.Errorf("basket %q: component weights sum to zero", c.Basket.Name)
	}
	if c.Strategy.Lookback <= 0 {
		return fmt.Errorf("strategy: lookback must be positive, got %d", c.Strategy.Lookback)
	}
	if c.Strategy.ExitZ < 0 {
		return fmt.Errorf("strategy: exit_z must be >= 0, got %v", c.Strategy.ExitZ)
	}
	if c.Strategy.ExitZ >= c.Strategy.EntryZ {
		return fmt.Errorf("strategy: exit_z %v must be below entry_z %v", c.Strategy.ExitZ, c.Strategy.EntryZ)
	}
	if c.Strategy.MaxLegNotional <= 0 || c.Strategy.MaxTotalNotional <= 0 {
		return fmt.Errorf("strategy: leg and total notional caps must be positive")
	}
	switch strings.ToLower(c.Strategy.OrderType) {
	case "market", "limit":
	default:
		return fmt.Errorf("strategy: unknown order_type %q", c.Strategy.OrderType)
	}
	if c.Risk.MaxSymbolNotional <= 0 {
		return fmt.Errorf("risk: max_symbol_notional must be positive")
	}
	if c.Risk.KillSwitchDrawdownPct <= 0 {
		return fmt.Errorf("risk: kill_switch_drawdown_pct must be positive")
	}
	return nil
}

// Universe returns the component symbols plus the reference symbol (when set),
// sorted for deterministic iteration.
func (c *Config) Universe() []string {
	out := make([]string, 0, len(c.Basket.Components)+1)
	for sym := range c.Basket.Components {
		out = append(out, sym)
	}
	if c.Basket.Reference != "" {
		out = append(out, c.Basket.Reference)
	}
	sort.Strings(out)
	return out
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
