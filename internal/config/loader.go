package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PUGLIES_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PUGLIES_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PUGLIES_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PUGLIES_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PUGLIES_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "PUGLIES_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "PUGLIES_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobWsURL, "PUGLIES_POLYMARKET_CLOB_WS_URL")
	setStr(&cfg.Polymarket.RtdsWsURL, "PUGLIES_POLYMARKET_RTDS_WS_URL")
	setInt(&cfg.Polymarket.ChainID, "PUGLIES_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "PUGLIES_POLYMARKET_SIGNATURE_TYPE")

	// ── Feeds ──
	setDuration(&cfg.Feeds.BackoffBase, "PUGLIES_FEEDS_BACKOFF_BASE")
	setDuration(&cfg.Feeds.BackoffCap, "PUGLIES_FEEDS_BACKOFF_CAP")
	setInt(&cfg.Feeds.MaxAttempts, "PUGLIES_FEEDS_MAX_ATTEMPTS")
	setDuration(&cfg.Feeds.PingPeriod, "PUGLIES_FEEDS_PING_PERIOD")
	setDuration(&cfg.Feeds.CoalesceWindow, "PUGLIES_FEEDS_COALESCE_WINDOW")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PUGLIES_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PUGLIES_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PUGLIES_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PUGLIES_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PUGLIES_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PUGLIES_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PUGLIES_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PUGLIES_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PUGLIES_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PUGLIES_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PUGLIES_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PUGLIES_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PUGLIES_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PUGLIES_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PUGLIES_POSTGRES_POOL_MIN_CONNS")

	// ── Watchlist ──
	setStringSlice(&cfg.Watchlist.Slugs, "PUGLIES_WATCHLIST_SLUGS")
	setStringSlice(&cfg.Watchlist.TokenIDs, "PUGLIES_WATCHLIST_TOKEN_IDS")
	setStringSlice(&cfg.Watchlist.MarketIDs, "PUGLIES_WATCHLIST_MARKET_IDS")
	setDuration(&cfg.Watchlist.ResolveTTL, "PUGLIES_WATCHLIST_RESOLVE_TTL")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "PUGLIES_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
