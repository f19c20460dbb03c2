// Package config defines the top-level configuration for the puglies
// market-data backend and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PUGLIES_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Feeds      FeedsConfig      `toml:"feeds"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Watchlist  WatchlistConfig  `toml:"watchlist"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds the Ethereum wallet used to derive the authenticated
// feed's session credentials. Leave everything empty to run the order-book
// feed unauthenticated (public markets only).
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	GammaHost     string `toml:"gamma_host"`
	ClobWsURL     string `toml:"clob_ws_url"`
	RtdsWsURL     string `toml:"rtds_ws_url"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`
}

// FeedsConfig holds the reconnect and notification tuning shared by both
// feed connections.
type FeedsConfig struct {
	BackoffBase    duration `toml:"backoff_base"`
	BackoffCap     duration `toml:"backoff_cap"`
	MaxAttempts    int      `toml:"max_attempts"`
	PingPeriod     duration `toml:"ping_period"`
	CoalesceWindow duration `toml:"coalesce_window"`
}

// RedisConfig holds Redis connection parameters. Redis mirrors live prices
// and top-of-book so other processes can read without a feed of their own;
// an empty addr disables the mirror.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds the price-history database. An empty DSN (with no
// host set) disables history recording.
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// WatchlistConfig lists markets to subscribe at startup, before any
// interactive consumer shows up. Slugs are resolved through the metadata
// service into token ids.
type WatchlistConfig struct {
	Slugs      []string `toml:"slugs"`
	TokenIDs   []string `toml:"token_ids"`
	MarketIDs  []string `toml:"market_ids"`
	ResolveTTL duration `toml:"resolve_ttl"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			ClobWsURL:     "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			RtdsWsURL:     "wss://ws-live-data.polymarket.com",
			ChainID:       137,
			SignatureType: 2,
		},
		Feeds: FeedsConfig{
			BackoffBase:    duration{1 * time.Second},
			BackoffCap:     duration{30 * time.Second},
			MaxAttempts:    0,
			PingPeriod:     duration{30 * time.Second},
			CoalesceWindow: duration{100 * time.Millisecond},
		},
		Redis: RedisConfig{
			Addr:       "",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			Host:         "",
			Port:         5432,
			Database:     "puglies",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Watchlist: WatchlistConfig{
			ResolveTTL: duration{30 * time.Second},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — optional, but an encrypted key needs its password.
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}
	if c.Wallet.PrivateKey != "" && c.Wallet.EncryptedKeyPath != "" {
		errs = append(errs, "wallet: set either private_key or encrypted_key_path, not both")
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ClobWsURL == "" {
		errs = append(errs, "polymarket: clob_ws_url must not be empty")
	}
	if c.Polymarket.RtdsWsURL == "" {
		errs = append(errs, "polymarket: rtds_ws_url must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType != 1 && c.Polymarket.SignatureType != 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 1 (EOA) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}

	// Feeds
	if c.Feeds.BackoffBase.Duration <= 0 {
		errs = append(errs, "feeds: backoff_base must be positive")
	}
	if c.Feeds.BackoffCap.Duration < c.Feeds.BackoffBase.Duration {
		errs = append(errs, "feeds: backoff_cap must be >= backoff_base")
	}
	if c.Feeds.MaxAttempts < 0 {
		errs = append(errs, "feeds: max_attempts must be >= 0 (0 retries forever)")
	}
	if c.Feeds.PingPeriod.Duration <= 0 {
		errs = append(errs, "feeds: ping_period must be positive")
	}
	if c.Feeds.CoalesceWindow.Duration < 0 {
		errs = append(errs, "feeds: coalesce_window must be >= 0 (0 disables coalescing)")
	}

	// Redis — optional mirror; validate only when enabled.
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres — optional history store; validate only when enabled.
	if c.Postgres.Enabled() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Enabled reports whether a history database has been configured at all.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.DSN) != "" || p.Host != ""
}
