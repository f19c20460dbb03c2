package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)
	redact(&out.Redis.Password)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Watchlist.Slugs = append([]string(nil), cfg.Watchlist.Slugs...)
	out.Watchlist.TokenIDs = append([]string(nil), cfg.Watchlist.TokenIDs...)
	out.Watchlist.MarketIDs = append([]string(nil), cfg.Watchlist.MarketIDs...)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
