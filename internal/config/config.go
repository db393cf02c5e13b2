// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime settings for the gate daemon and the settlement
// tool. Storage DSNs are optional: with both empty the daemon runs on
// in-memory stores, which is the development default.
type Config struct {
	// Solana connectivity
	RPCEndpoint string `env:"SOLANA_RPC_ENDPOINT" envDefault:"https://api.devnet.solana.com"`
	Network     string `env:"SOLANA_NETWORK" envDefault:"devnet"`

	// Treasury
	TreasuryPubkey      string `env:"TREASURY_PUBKEY"`
	TreasuryKeypairPath string `env:"TREASURY_KEYPAIR"`

	// Admission
	EntryFeeLamports    uint64 `env:"ENTRY_FEE_LAMPORTS" envDefault:"10000000"`
	EntryDurationDays   int    `env:"ENTRY_DURATION_DAYS" envDefault:"7"`
	EntryExpiryEnforced bool   `env:"ENTRY_EXPIRY_ENFORCED" envDefault:"true"`

	// Oracle
	PriceFeedID   string        `env:"PRICE_FEED_ID"`
	PythHermesURL string        `env:"PYTH_HERMES_URL"`
	PriceCacheTTL time.Duration `env:"PRICE_CACHE_TTL" envDefault:"30s"`

	// Submission
	MaxRetryAttempts int `env:"MAX_RETRY_ATTEMPTS" envDefault:"3"`

	// DebugMode bypasses admission checks. Never enable in production.
	DebugMode bool `env:"DEBUG_MODE"`

	// Storage
	PostgresDSN   string `env:"POSTGRES_DSN"`
	ClickhouseDSN string `env:"CLICKHOUSE_DSN"`

	// Observability
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9091"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// EntryDuration returns the configured entry lifetime.
func (c *Config) EntryDuration() time.Duration {
	return time.Duration(c.EntryDurationDays) * 24 * time.Hour
}

// Validate checks settings the daemon cannot start without.
func (c *Config) Validate() error {
	if c.RPCEndpoint == "" {
		return fmt.Errorf("SOLANA_RPC_ENDPOINT is required")
	}
	if c.TreasuryPubkey == "" {
		return fmt.Errorf("TREASURY_PUBKEY is required")
	}
	if c.EntryFeeLamports == 0 {
		return fmt.Errorf("ENTRY_FEE_LAMPORTS must be positive")
	}
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("MAX_RETRY_ATTEMPTS must be at least 1")
	}
	return nil
}
