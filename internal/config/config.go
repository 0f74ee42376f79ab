// Package config defines all configuration for the trading bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via KALSHI_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun   bool           `mapstructure:"dry_run"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Spot     SpotConfig     `mapstructure:"spot"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Operator OperatorConfig `mapstructure:"operator"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ExchangeConfig holds Kalshi API access. The private key signs every request
// with RSA-PSS; either a PEM file path or inline PEM content must be set.
type ExchangeConfig struct {
	APIKeyID          string `mapstructure:"api_key_id"`
	PrivateKeyPath    string `mapstructure:"private_key_path"`
	PrivateKeyContent string `mapstructure:"private_key_content"`
	BaseURL           string `mapstructure:"base_url"`
	SeriesTicker      string `mapstructure:"series_ticker"`
}

// SpotConfig holds the two independent public spot-price endpoints.
// The primary is tried first on every tick; the fallback only on failure.
type SpotConfig struct {
	PrimaryURL     string `mapstructure:"primary_url"`
	PrimarySymbol  string `mapstructure:"primary_symbol"`
	FallbackURL    string `mapstructure:"fallback_url"`
	FallbackPair   string `mapstructure:"fallback_pair"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StrategyConfig tunes the high-confidence threshold strategy.
//
//   - MinProbability: model conviction required on the chosen side (0.95).
//   - MinEdge: model-vs-market mispricing required to trade (0.05).
//   - MinTimeRemaining / MaxTimeRemaining: tradeable window in seconds.
//   - VolLambda: EWMA decay for the volatility recurrence.
//   - MicrostructureFloor: minimum volatility, scaled by 1/√T.
//   - MomentumWindow: drift lookback in seconds.
//   - VolRegimeLookback / VolSpikeThreshold: volatility-spike filter.
//   - UseMonteCarlo / NumSimulations: GBM simulation instead of closed form.
//   - KellyFraction: fraction of full Kelly applied (0.15).
//   - PositionFloorPct / PositionCeilingPct: dollar clamp as bankroll fractions.
type StrategyConfig struct {
	Enabled []string `mapstructure:"enabled"`

	MinProbability      float64 `mapstructure:"min_probability"`
	MinEdge             float64 `mapstructure:"min_edge"`
	MinTimeRemaining    int     `mapstructure:"min_time_remaining"`
	MaxTimeRemaining    int     `mapstructure:"max_time_remaining"`
	MinSamples          int     `mapstructure:"min_samples"`
	VolLambda           float64 `mapstructure:"vol_lambda"`
	MicrostructureFloor float64 `mapstructure:"microstructure_floor"`
	MomentumWindow      int     `mapstructure:"momentum_window"`
	VolRegimeLookback   int     `mapstructure:"vol_regime_lookback"`
	VolSpikeThreshold   float64 `mapstructure:"vol_spike_threshold"`
	UseMonteCarlo       bool    `mapstructure:"use_monte_carlo"`
	NumSimulations      int     `mapstructure:"num_simulations"`
	KellyFraction       float64 `mapstructure:"kelly_fraction"`
	PositionFloorPct    float64 `mapstructure:"position_floor_pct"`
	PositionCeilingPct  float64 `mapstructure:"position_ceiling_pct"`
}

// RiskConfig sets the risk envelope: admission gates and the three-layer
// latching circuit breaker.
//
//   - Bankroll: starting capital reference in dollars.
//   - PositionCeilingPct: per-trade cap as a fraction of bankroll (2%).
//   - MaxConcurrentPositions: concurrent open markets cap (5).
//   - DailyLossThreshold: Layer-1 breaker, fraction of bankroll (5%).
//   - WeeklyDrawdownCap: Layer-2 breaker, drawdown fraction (10%).
//   - SessionDrawdownThreshold: Layer-3 breaker, drawdown fraction (15%).
//   - MinEdgeThreshold + UncertaintyBuffer: edge gate floor.
//
// Legacy fields are the retired flat risk surface. They are only read to
// detect a conflicting configuration, which refuses startup.
type RiskConfig struct {
	Bankroll                 float64 `mapstructure:"bankroll"`
	PositionCeilingPct       float64 `mapstructure:"position_ceiling_pct"`
	MaxConcurrentPositions   int     `mapstructure:"max_concurrent_positions"`
	DailyLossThreshold       float64 `mapstructure:"daily_loss_threshold"`
	WeeklyDrawdownCap        float64 `mapstructure:"weekly_drawdown_cap"`
	SessionDrawdownThreshold float64 `mapstructure:"session_drawdown_threshold"`
	MinEdgeThreshold         float64 `mapstructure:"min_edge_threshold"`
	UncertaintyBuffer        float64 `mapstructure:"uncertainty_buffer"`

	// Legacy surface (pre-rich risk config). Conflict detection only.
	LegacyMaxPositionSize float64 `mapstructure:"max_position_size"`
	LegacyLossThreshold   float64 `mapstructure:"circuit_breaker_loss_threshold"`
}

// OperatorConfig controls the REST/WebSocket control surface.
type OperatorConfig struct {
	Port           int      `mapstructure:"port"`
	Prefix         string   `mapstructure:"prefix"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Dir    string `mapstructure:"dir"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: KALSHI_API_KEY_ID, KALSHI_PRIVATE_KEY_PATH,
// KALSHI_PRIVATE_KEY_CONTENT, KALSHI_DRY_RUN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("KALSHI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("KALSHI_API_KEY_ID"); key != "" {
		cfg.Exchange.APIKeyID = key
	}
	if p := os.Getenv("KALSHI_PRIVATE_KEY_PATH"); p != "" {
		cfg.Exchange.PrivateKeyPath = p
	}
	if pem := os.Getenv("KALSHI_PRIVATE_KEY_CONTENT"); pem != "" {
		cfg.Exchange.PrivateKeyContent = pem
	}
	if os.Getenv("KALSHI_DRY_RUN") == "true" || os.Getenv("KALSHI_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dry_run", true)
	v.SetDefault("exchange.base_url", "https://api.elections.kalshi.com/trade-api/v2")
	v.SetDefault("exchange.series_ticker", "KXSOL15M")

	v.SetDefault("spot.primary_url", "https://api.binance.us/api/v3/ticker/price")
	v.SetDefault("spot.primary_symbol", "SOLUSDT")
	v.SetDefault("spot.fallback_url", "https://api.kraken.com/0/public/Ticker")
	v.SetDefault("spot.fallback_pair", "SOLUSD")
	v.SetDefault("spot.timeout_seconds", 5)

	v.SetDefault("strategy.enabled", []string{"high_confidence_threshold"})
	v.SetDefault("strategy.min_probability", 0.95)
	v.SetDefault("strategy.min_edge", 0.05)
	v.SetDefault("strategy.min_time_remaining", 30)
	v.SetDefault("strategy.max_time_remaining", 600)
	v.SetDefault("strategy.min_samples", 5)
	v.SetDefault("strategy.vol_lambda", 0.94)
	v.SetDefault("strategy.microstructure_floor", 0.0007)
	v.SetDefault("strategy.momentum_window", 60)
	v.SetDefault("strategy.vol_regime_lookback", 300)
	v.SetDefault("strategy.vol_spike_threshold", 2.0)
	v.SetDefault("strategy.num_simulations", 10000)
	v.SetDefault("strategy.kelly_fraction", 0.15)
	v.SetDefault("strategy.position_floor_pct", 0.005)
	v.SetDefault("strategy.position_ceiling_pct", 0.02)

	v.SetDefault("risk.bankroll", 10000.0)
	v.SetDefault("risk.position_ceiling_pct", 0.02)
	v.SetDefault("risk.max_concurrent_positions", 5)
	v.SetDefault("risk.daily_loss_threshold", 0.05)
	v.SetDefault("risk.weekly_drawdown_cap", 0.10)
	v.SetDefault("risk.session_drawdown_threshold", 0.15)
	v.SetDefault("risk.min_edge_threshold", 0.02)
	v.SetDefault("risk.uncertainty_buffer", 0.03)

	v.SetDefault("operator.port", 8000)
	v.SetDefault("operator.prefix", "/api")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.dir", "logs")
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Exchange.APIKeyID == "" {
		return fmt.Errorf("exchange.api_key_id is required (set KALSHI_API_KEY_ID)")
	}
	if c.Exchange.PrivateKeyPath == "" && c.Exchange.PrivateKeyContent == "" {
		return fmt.Errorf("exchange.private_key_path or exchange.private_key_content is required")
	}
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange.base_url is required")
	}
	if c.Exchange.SeriesTicker == "" {
		return fmt.Errorf("exchange.series_ticker is required")
	}
	if c.Risk.Bankroll <= 0 {
		return fmt.Errorf("risk.bankroll must be > 0")
	}
	if c.Risk.PositionCeilingPct <= 0 || c.Risk.PositionCeilingPct >= 1 {
		return fmt.Errorf("risk.position_ceiling_pct must be in (0, 1)")
	}
	if c.Risk.MaxConcurrentPositions < 1 {
		return fmt.Errorf("risk.max_concurrent_positions must be >= 1")
	}
	if c.Risk.DailyLossThreshold <= 0 || c.Risk.DailyLossThreshold >= 1 {
		return fmt.Errorf("risk.daily_loss_threshold must be in (0, 1)")
	}
	if err := c.checkLegacyRisk(); err != nil {
		return err
	}
	if c.Strategy.MinProbability <= 0.5 || c.Strategy.MinProbability >= 1 {
		return fmt.Errorf("strategy.min_probability must be in (0.5, 1)")
	}
	if c.Strategy.MinTimeRemaining >= c.Strategy.MaxTimeRemaining {
		return fmt.Errorf("strategy.min_time_remaining must be below max_time_remaining")
	}
	return nil
}

// checkLegacyRisk refuses to start when the retired flat risk surface is
// configured with values that contradict the rich one. The legacy daily-loss
// threshold of 0.20 in particular silently quadrupled the cap.
func (c *Config) checkLegacyRisk() error {
	if c.Risk.LegacyLossThreshold != 0 && c.Risk.LegacyLossThreshold != c.Risk.DailyLossThreshold {
		return fmt.Errorf(
			"conflicting risk config: legacy circuit_breaker_loss_threshold=%.2f vs daily_loss_threshold=%.2f; remove the legacy key",
			c.Risk.LegacyLossThreshold, c.Risk.DailyLossThreshold)
	}
	if c.Risk.LegacyMaxPositionSize != 0 {
		rich := c.Risk.Bankroll * c.Risk.PositionCeilingPct
		if c.Risk.LegacyMaxPositionSize != rich {
			return fmt.Errorf(
				"conflicting risk config: legacy max_position_size=%.2f vs bankroll×ceiling=%.2f; remove the legacy key",
				c.Risk.LegacyMaxPositionSize, rich)
		}
	}
	return nil
}
