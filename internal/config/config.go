package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the tycho platform.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Gather   GatherConfig   `yaml:"gather"`
	Backtest BacktestConfig `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration for the report API.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatherConfig controls daily bar gathering.
type GatherConfig struct {
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	MaxWorkers      int      `yaml:"max_workers"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	RefreshCron     string   `yaml:"refresh_cron"` // cron spec for scheduled refresh; empty disables
}

// CashPolicy selects the executor's behaviour when a buy's notional exceeds
// available cash.
type CashPolicy string

const (
	// CashPolicyReject refuses the whole intent. This is the default.
	CashPolicyReject CashPolicy = "reject"
	// CashPolicyClip reduces the quantity to the largest affordable whole unit.
	CashPolicyClip CashPolicy = "clip"
)

// BacktestConfig defines simulation parameters.
type BacktestConfig struct {
	InitialCash        float64    `yaml:"initial_cash"`
	MarginLimit        float64    `yaml:"margin_limit"` // cash may go down to -margin_limit; 0 means no margin
	AllowShort         bool       `yaml:"allow_short"`
	OnInsufficientCash CashPolicy `yaml:"on_insufficient_cash"`
	CostBps            float64    `yaml:"cost_bps"` // commission in basis points of notional
	RiskFreeRate       float64    `yaml:"risk_free_rate"`
	Benchmark          string     `yaml:"benchmark"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("INITIAL_CASH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Backtest.InitialCash = f
		}
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// applyDefaults fills in zero-valued fields that have a sensible default.
func applyDefaults(cfg *Config) {
	if cfg.Backtest.InitialCash == 0 {
		cfg.Backtest.InitialCash = 100_000
	}
	if cfg.Backtest.OnInsufficientCash == "" {
		cfg.Backtest.OnInsufficientCash = CashPolicyReject
	}
	if cfg.Gather.MaxWorkers == 0 {
		cfg.Gather.MaxWorkers = 4
	}
	if cfg.Gather.RateLimitPerMin == 0 {
		cfg.Gather.RateLimitPerMin = 200
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validate rejects configurations the engine cannot run with.
func (c *Config) validate() error {
	if c.Backtest.InitialCash <= 0 {
		return fmt.Errorf("backtest.initial_cash must be positive, got %v", c.Backtest.InitialCash)
	}
	if c.Backtest.MarginLimit < 0 {
		return fmt.Errorf("backtest.margin_limit must be non-negative, got %v", c.Backtest.MarginLimit)
	}
	switch c.Backtest.OnInsufficientCash {
	case CashPolicyReject, CashPolicyClip:
	default:
		return fmt.Errorf("backtest.on_insufficient_cash must be %q or %q, got %q",
			CashPolicyReject, CashPolicyClip, c.Backtest.OnInsufficientCash)
	}
	if c.Backtest.CostBps < 0 {
		return fmt.Errorf("backtest.cost_bps must be non-negative, got %v", c.Backtest.CostBps)
	}
	return nil
}
