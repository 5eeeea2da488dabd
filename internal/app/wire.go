package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/cadencefi/treasuryd/internal/blob/s3"
	"github.com/cadencefi/treasuryd/internal/cache/redis"
	"github.com/cadencefi/treasuryd/internal/chain"
	"github.com/cadencefi/treasuryd/internal/config"
	"github.com/cadencefi/treasuryd/internal/crypto"
	"github.com/cadencefi/treasuryd/internal/domain"
	"github.com/cadencefi/treasuryd/internal/notify"
	"github.com/cadencefi/treasuryd/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function. Chain-bound fields are nil in monitor mode, which never signs.
type Dependencies struct {
	// Chain
	Signer      *crypto.Signer
	Chain       *chain.Client
	Tokens      *chain.ERC20Source
	BaseToken   chain.Token
	StakeToken  chain.Token
	RewardToken chain.Token
	Pool        chain.PoolGateway
	Staking     chain.StakingPool
	Router      chain.SwapRouter

	// Stores
	RouteStore       domain.RouteStore
	RatioStore       domain.RatioStore
	LiquidationStore domain.LiquidationStore
	HarvestStore     domain.HarvestStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsChain returns true for modes that sign transactions.
func needsChain(mode string) bool {
	switch mode {
	case "serve", "harvest":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Chain (only for modes that sign) ---
	if needsChain(cfg.Mode) {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}
		signer, err := crypto.NewSigner(keyHex, cfg.Chain.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		deps.Signer = signer

		chainClient, err := chain.Dial(ctx, chain.ClientConfig{
			RPCURL:         cfg.Chain.RPCURL,
			Signer:         signer,
			ConfirmTimeout: cfg.Chain.ConfirmTimeout.Duration,
			GasLimit:       cfg.Chain.GasLimit,
			Logger:         logger,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain: %w", err)
		}
		closers = append(closers, chainClient.Close)
		deps.Chain = chainClient

		deps.Tokens = chain.NewERC20Source(chainClient)
		deps.BaseToken = chain.NewERC20(chainClient, addr(cfg.Assets.BaseAsset))
		deps.StakeToken = chain.NewERC20(chainClient, addr(cfg.Assets.StakeAsset))
		deps.RewardToken = chain.NewERC20(chainClient, addr(cfg.Assets.RewardAsset))
		deps.Pool = chain.NewPool(chainClient, addr(cfg.Modules.Pool))
		deps.Staking = chain.NewStaking(chainClient, addr(cfg.Modules.Staking))
		deps.Router = chain.NewRouter(chainClient, addr(cfg.Modules.Router), addr(cfg.Modules.Quoter))
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.RouteStore = postgres.NewRouteStore(pool)
	deps.RatioStore = postgres.NewRatioStore(pool)
	deps.LiquidationStore = postgres.NewLiquidationStore(pool)
	deps.HarvestStore = postgres.NewHarvestStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: s3: %w", err)
	}
	closers = append(closers, func() { _ = s3Client.Close() })

	deps.BlobWriter = s3blob.NewWriter(s3Client)
	deps.BlobReader = s3blob.NewReader(s3Client)
	deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.LiquidationStore, deps.HarvestStore, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
