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
// built-in defaults, applies TREASURYD_* environment variable overrides, and
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

// applyEnvOverrides reads well-known TREASURYD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "TREASURYD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "TREASURYD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "TREASURYD_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "TREASURYD_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "TREASURYD_CHAIN_ID")
	setDuration(&cfg.Chain.ConfirmTimeout, "TREASURYD_CHAIN_CONFIRM_TIMEOUT")
	setUint64(&cfg.Chain.GasLimit, "TREASURYD_CHAIN_GAS_LIMIT")

	// ── Assets ──
	setStr(&cfg.Assets.BaseAsset, "TREASURYD_ASSETS_BASE_ASSET")
	setStr(&cfg.Assets.StakeAsset, "TREASURYD_ASSETS_STAKE_ASSET")
	setStr(&cfg.Assets.RewardAsset, "TREASURYD_ASSETS_REWARD_ASSET")

	// ── Modules ──
	setStr(&cfg.Modules.Adapter, "TREASURYD_MODULES_ADAPTER")
	setStr(&cfg.Modules.LP, "TREASURYD_MODULES_LP")
	setStr(&cfg.Modules.Registry, "TREASURYD_MODULES_REGISTRY")
	setStr(&cfg.Modules.Orchestrator, "TREASURYD_MODULES_ORCHESTRATOR")
	setStr(&cfg.Modules.Governor, "TREASURYD_MODULES_GOVERNOR")
	setStr(&cfg.Modules.Treasury, "TREASURYD_MODULES_TREASURY")
	setStr(&cfg.Modules.Pool, "TREASURYD_MODULES_POOL")
	setStr(&cfg.Modules.Staking, "TREASURYD_MODULES_STAKING")
	setStr(&cfg.Modules.Router, "TREASURYD_MODULES_ROUTER")
	setStr(&cfg.Modules.Quoter, "TREASURYD_MODULES_QUOTER")

	// ── Liquidation ──
	setDuration(&cfg.Liquidation.Cooldown, "TREASURYD_LIQUIDATION_COOLDOWN")

	// ── Harvest ──
	setStr(&cfg.Harvest.RatioStake, "TREASURYD_HARVEST_RATIO_STAKE")
	setStr(&cfg.Harvest.RatioReward, "TREASURYD_HARVEST_RATIO_REWARD")
	setDuration(&cfg.Harvest.Interval, "TREASURYD_HARVEST_INTERVAL")
	setDuration(&cfg.Harvest.LockTTL, "TREASURYD_HARVEST_LOCK_TTL")
	setInt(&cfg.Harvest.ArchiveRetentionDays, "TREASURYD_HARVEST_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Harvest.ArchiveInterval, "TREASURYD_HARVEST_ARCHIVE_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TREASURYD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TREASURYD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TREASURYD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TREASURYD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TREASURYD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TREASURYD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TREASURYD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TREASURYD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TREASURYD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TREASURYD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TREASURYD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TREASURYD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TREASURYD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TREASURYD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TREASURYD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TREASURYD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TREASURYD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TREASURYD_S3_REGION")
	setStr(&cfg.S3.Bucket, "TREASURYD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TREASURYD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TREASURYD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TREASURYD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TREASURYD_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TREASURYD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TREASURYD_SERVER_PORT")
	setStr(&cfg.Server.AuthToken, "TREASURYD_SERVER_AUTH_TOKEN")
	setStringSlice(&cfg.Server.CORSOrigins, "TREASURYD_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "TREASURYD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "TREASURYD_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TREASURYD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TREASURYD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TREASURYD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TREASURYD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TREASURYD_MODE")
	setStr(&cfg.LogLevel, "TREASURYD_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
