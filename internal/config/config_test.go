package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTOML = `
mode = "monitor"
log_level = "debug"

[wallet]
private_key = "aa"

[chain]
rpc_url = "http://rpc.local:8545"
chain_id = 8453

[assets]
base_asset = "0x0000000000000000000000000000000000000001"
stake_asset = "0x0000000000000000000000000000000000000002"
reward_asset = "0x0000000000000000000000000000000000000003"

[modules]
adapter = "0x0000000000000000000000000000000000000011"
lp = "0x0000000000000000000000000000000000000012"
registry = "0x0000000000000000000000000000000000000013"
orchestrator = "0x0000000000000000000000000000000000000014"
governor = "0x0000000000000000000000000000000000000015"
treasury = "0x0000000000000000000000000000000000000016"
pool = "0x0000000000000000000000000000000000000017"
staking = "0x0000000000000000000000000000000000000018"
router = "0x0000000000000000000000000000000000000019"

[liquidation]
cooldown = "72h"

[harvest]
ratio_stake = "300000000000000000"
interval = "1h"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMergesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, testTOML))
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int64(8453), cfg.Chain.ChainID)
	assert.Equal(t, 72*time.Hour, cfg.Liquidation.Cooldown.Duration)
	assert.Equal(t, time.Hour, cfg.Harvest.Interval.Duration)
	assert.Equal(t, "300000000000000000", cfg.Harvest.RatioStake)

	// Untouched fields keep their defaults.
	assert.Equal(t, "500000000000000000", cfg.Harvest.RatioReward)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 90, cfg.Harvest.ArchiveRetentionDays)

	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("TREASURYD_MODE", "serve")
	t.Setenv("TREASURYD_CHAIN_RPC_URL", "http://override:8545")
	t.Setenv("TREASURYD_SERVER_PORT", "9000")
	t.Setenv("TREASURYD_HARVEST_INTERVAL", "30m")
	t.Setenv("TREASURYD_NOTIFY_EVENTS", "liquidation, treasury_exit")

	cfg, err := Load(writeConfig(t, testTOML))
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "http://override:8545", cfg.Chain.RPCURL)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Harvest.Interval.Duration)
	assert.Equal(t, []string{"liquidation", "treasury_exit"}, cfg.Notify.Events)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Assets.BaseAsset = "not-an-address"
	cfg.Harvest.Interval = duration{}
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "trade"`)
	assert.Contains(t, err.Error(), "assets.base_asset")
	assert.Contains(t, err.Error(), "harvest: interval must be positive")
	assert.Contains(t, err.Error(), "redis: addr must not be empty")
}

func TestValidateRequiresWalletForSigningModes(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "serve"
	fillAddresses(&cfg)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet: either private_key or encrypted_key_path")

	cfg.Mode = "monitor"
	require.NoError(t, cfg.Validate())

	cfg.Mode = "serve"
	cfg.Wallet.PrivateKey = "aa"
	require.NoError(t, cfg.Validate())
}

func fillAddresses(cfg *Config) {
	cfg.Assets.BaseAsset = "0x0000000000000000000000000000000000000001"
	cfg.Assets.StakeAsset = "0x0000000000000000000000000000000000000002"
	cfg.Assets.RewardAsset = "0x0000000000000000000000000000000000000003"
	cfg.Modules.Adapter = "0x0000000000000000000000000000000000000011"
	cfg.Modules.LP = "0x0000000000000000000000000000000000000012"
	cfg.Modules.Registry = "0x0000000000000000000000000000000000000013"
	cfg.Modules.Orchestrator = "0x0000000000000000000000000000000000000014"
	cfg.Modules.Governor = "0x0000000000000000000000000000000000000015"
	cfg.Modules.Pool = "0x0000000000000000000000000000000000000017"
	cfg.Modules.Staking = "0x0000000000000000000000000000000000000018"
	cfg.Modules.Router = "0x0000000000000000000000000000000000000019"
}
