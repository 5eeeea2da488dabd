// Package config defines the top-level configuration for the treasury daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TREASURYD_* environment variables.
type Config struct {
	Wallet      WalletConfig      `toml:"wallet"`
	Chain       ChainConfig       `toml:"chain"`
	Assets      AssetsConfig      `toml:"assets"`
	Modules     ModulesConfig     `toml:"modules"`
	Liquidation LiquidationConfig `toml:"liquidation"`
	Harvest     HarvestConfig     `toml:"harvest"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// WalletConfig holds the operator key used to sign transactions.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds RPC endpoint and chain parameters.
type ChainConfig struct {
	RPCURL         string   `toml:"rpc_url"`
	ChainID        int64    `toml:"chain_id"`
	ConfirmTimeout duration `toml:"confirm_timeout"`
	GasLimit       uint64   `toml:"gas_limit"`
}

// AssetsConfig names the three assets the daemon routes.
type AssetsConfig struct {
	BaseAsset   string `toml:"base_asset"`
	StakeAsset  string `toml:"stake_asset"`
	RewardAsset string `toml:"reward_asset"`
}

// ModulesConfig holds the addresses of the on-chain principals and contracts
// the engines act for and against.
type ModulesConfig struct {
	Adapter      string `toml:"adapter"`
	LP           string `toml:"lp"`
	Registry     string `toml:"registry"`
	Orchestrator string `toml:"orchestrator"`
	Governor     string `toml:"governor"`
	Treasury     string `toml:"treasury"`
	Pool         string `toml:"pool"`
	Staking      string `toml:"staking"`
	Router       string `toml:"router"`
	Quoter       string `toml:"quoter"`
}

// LiquidationConfig holds route execution parameters.
type LiquidationConfig struct {
	Cooldown duration `toml:"cooldown"`
}

// HarvestConfig holds the split ratios and the scheduler cadence. Ratios are
// 1e18-scaled decimal strings.
type HarvestConfig struct {
	RatioStake           string   `toml:"ratio_stake"`
	RatioReward          string   `toml:"ratio_reward"`
	Interval             duration `toml:"interval"`
	LockTTL              duration `toml:"lock_ttl"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	ArchiveInterval      duration `toml:"archive_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters. RateLimit is requests per client
// IP per rate_window; zero disables rate limiting.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	AuthToken   string   `toml:"auth_token"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "168h").
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
		Chain: ChainConfig{
			RPCURL:         "http://localhost:8545",
			ChainID:        1,
			ConfirmTimeout: duration{2 * time.Minute},
			GasLimit:       0,
		},
		Liquidation: LiquidationConfig{
			Cooldown: duration{168 * time.Hour},
		},
		Harvest: HarvestConfig{
			RatioStake:           "500000000000000000",
			RatioReward:          "500000000000000000",
			Interval:             duration{6 * time.Hour},
			LockTTL:              duration{15 * time.Minute},
			ArchiveRetentionDays: 90,
			ArchiveInterval:      duration{24 * time.Hour},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "treasuryd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "treasuryd-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:    true,
			Port:       8000,
			RateLimit:  120,
			RateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"liquidation", "treasury_exit", "error"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"harvest": true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, harvest, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet: harvest and serve sign transactions; monitor only reads.
	needsWallet := c.Mode == "serve" || c.Mode == "harvest"
	if needsWallet {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}

	for _, check := range []struct {
		name  string
		value string
	}{
		{"assets.base_asset", c.Assets.BaseAsset},
		{"assets.stake_asset", c.Assets.StakeAsset},
		{"assets.reward_asset", c.Assets.RewardAsset},
		{"modules.adapter", c.Modules.Adapter},
		{"modules.lp", c.Modules.LP},
		{"modules.registry", c.Modules.Registry},
		{"modules.orchestrator", c.Modules.Orchestrator},
		{"modules.governor", c.Modules.Governor},
		{"modules.pool", c.Modules.Pool},
		{"modules.staking", c.Modules.Staking},
		{"modules.router", c.Modules.Router},
	} {
		if check.value == "" {
			errs = append(errs, check.name+" must not be empty")
		} else if !common.IsHexAddress(check.value) {
			errs = append(errs, fmt.Sprintf("%s: %q is not a hex address", check.name, check.value))
		}
	}
	// Treasury and quoter are optional; exit fails at runtime when treasury
	// is unset.
	for _, check := range []struct {
		name  string
		value string
	}{
		{"modules.treasury", c.Modules.Treasury},
		{"modules.quoter", c.Modules.Quoter},
	} {
		if check.value != "" && !common.IsHexAddress(check.value) {
			errs = append(errs, fmt.Sprintf("%s: %q is not a hex address", check.name, check.value))
		}
	}

	if c.Liquidation.Cooldown.Duration < 0 {
		errs = append(errs, "liquidation: cooldown must not be negative")
	}
	if c.Harvest.Interval.Duration <= 0 {
		errs = append(errs, "harvest: interval must be positive")
	}
	if c.Harvest.LockTTL.Duration <= 0 {
		errs = append(errs, "harvest: lock_ttl must be positive")
	}
	if c.Harvest.ArchiveRetentionDays < 1 {
		errs = append(errs, "harvest: archive_retention_days must be >= 1")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
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

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
