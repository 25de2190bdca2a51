// Package config defines all configuration for the market maker. Config is
// loaded from an optional YAML file layered under CLI flags (bound via
// spf13/pflag) and PRIVATE_KEY from the environment, following the
// teacher's viper-backed Config/Load/Validate shape.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the top-level configuration for the market-maker and feed
// subcommands.
type Config struct {
	DryRun   bool           `mapstructure:"dry_run"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	API      APIConfig      `mapstructure:"api"`
	Market   MarketConfig   `mapstructure:"market"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// WalletConfig holds the signing key used for order actions.
type WalletConfig struct {
	PrivateKey string `mapstructure:"private_key"`
}

// APIConfig holds exchange and reference-venue endpoints.
type APIConfig struct {
	RESTBaseURL    string `mapstructure:"rest_base_url"`
	WSURL          string `mapstructure:"ws_url"`
	ReferenceWSURL string `mapstructure:"reference_ws_url"`
}

// MarketConfig identifies the single symbol this instance trades.
type MarketConfig struct {
	Symbol        string `mapstructure:"symbol"`
	PriceDecimals int32  `mapstructure:"price_decimals"`
	SizeDecimals  int32  `mapstructure:"size_decimals"`
}

// StrategyConfig tunes quoting and the event-loop timing.
type StrategyConfig struct {
	SpreadBps             int64         `mapstructure:"spread_bps"`
	TakeProfitBps         int64         `mapstructure:"take_profit_bps"`
	OrderSizeUSD          string        `mapstructure:"order_size_usd"`
	CloseThresholdUSD     string        `mapstructure:"close_threshold_usd"`
	WarmupSeconds         int           `mapstructure:"warmup_seconds"`
	UpdateThrottleMs      int64         `mapstructure:"update_throttle_ms"`
	OrderSyncIntervalMs   int64         `mapstructure:"order_sync_interval_ms"`
	FairPriceWindowMs     int64         `mapstructure:"fair_price_window_ms"`
	PositionSyncInterval  int64         `mapstructure:"position_sync_interval_ms"`
	MinFairPriceSamples   int           `mapstructure:"min_fair_price_samples"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RegisterFlags defines the specification's CLI flags on fs, without
// binding them to any viper instance. Callers that need to fs.Parse(args)
// before config.Load runs (to support positional arguments alongside the
// flags) should call this first; Load will skip re-registering flags it
// finds already defined.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("symbol", "", "market symbol to trade")
	fs.Int64("spread-bps", 20, "quoted spread in basis points around fair price")
	fs.Int64("take-profit-bps", 5, "spread used while in close mode")
	fs.String("order-size-usd", "100", "target notional size per quote, in USD")
	fs.String("close-threshold-usd", "1000", "notional at or above which the bot enters close-only mode")
	fs.Int("warmup-seconds", 10, "seconds to wait for fair-price samples before quoting")
	fs.Int64("update-throttle-ms", 250, "minimum interval between quote updates")
	fs.Int64("order-sync-interval-ms", 5000, "interval between authoritative open-order and position resyncs")
	fs.Int64("fair-price-window-ms", 30000, "fair-price estimator sliding window")
	fs.Int64("position-sync-interval-ms", 15000, "accepted but not read; the position is resynced on the order-sync interval")
	fs.Bool("dry-run", false, "log intended actions without submitting them")
}

// BindFlags registers the specification's CLI flags on fs (if not already
// registered) and binds them into v, following the teacher's
// pflag-then-viper.BindPFlag pattern.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	if fs.Lookup("symbol") == nil {
		RegisterFlags(fs)
	}

	_ = v.BindPFlag("market.symbol", fs.Lookup("symbol"))
	_ = v.BindPFlag("strategy.spread_bps", fs.Lookup("spread-bps"))
	_ = v.BindPFlag("strategy.take_profit_bps", fs.Lookup("take-profit-bps"))
	_ = v.BindPFlag("strategy.order_size_usd", fs.Lookup("order-size-usd"))
	_ = v.BindPFlag("strategy.close_threshold_usd", fs.Lookup("close-threshold-usd"))
	_ = v.BindPFlag("strategy.warmup_seconds", fs.Lookup("warmup-seconds"))
	_ = v.BindPFlag("strategy.update_throttle_ms", fs.Lookup("update-throttle-ms"))
	_ = v.BindPFlag("strategy.order_sync_interval_ms", fs.Lookup("order-sync-interval-ms"))
	_ = v.BindPFlag("strategy.fair_price_window_ms", fs.Lookup("fair-price-window-ms"))
	_ = v.BindPFlag("strategy.position_sync_interval_ms", fs.Lookup("position-sync-interval-ms"))
	_ = v.BindPFlag("dry_run", fs.Lookup("dry-run"))
}

// Load reads config from an optional YAML file, CLI flags bound via
// BindFlags, and the PRIVATE_KEY environment variable.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		BindFlags(fs, v)
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet private key is required (set PRIVATE_KEY)")
	}
	if c.Market.Symbol == "" {
		return fmt.Errorf("market.symbol is required (set --symbol)")
	}
	if c.API.RESTBaseURL == "" {
		return fmt.Errorf("api.rest_base_url is required")
	}
	if c.Strategy.SpreadBps <= 0 {
		return fmt.Errorf("strategy.spread_bps must be > 0")
	}
	if c.Strategy.TakeProfitBps <= 0 {
		return fmt.Errorf("strategy.take_profit_bps must be > 0")
	}
	if c.Strategy.OrderSizeUSD == "" {
		return fmt.Errorf("strategy.order_size_usd is required")
	}
	if c.Strategy.CloseThresholdUSD == "" {
		return fmt.Errorf("strategy.close_threshold_usd is required")
	}
	return nil
}
