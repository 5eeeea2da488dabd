// Package scheduler runs the daemon's periodic work: the harvest cycles under
// a distributed lock, the spot-price cache refresh, and the archive export of
// aged history records.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cadencefi/treasuryd/internal/chain"
	"github.com/cadencefi/treasuryd/internal/domain"
)

// harvestLockKey is the distributed lock key shared by all replicas.
const harvestLockKey = "lock:harvest"

// defaultPriceInterval is how often the spot price cache is refreshed.
const defaultPriceInterval = time.Minute

// HarvestRunner is the slice of the orchestrator the scheduler drives.
type HarvestRunner interface {
	HandleStakeAsset(ctx context.Context) error
	HandleRewardAsset(ctx context.Context) error
}

// Config carries the wiring for a Scheduler. Locks is required; Archiver,
// Prices, and Gateway are optional and disable their loops when nil.
type Config struct {
	Orchestrator HarvestRunner
	Locks        domain.LockManager
	Archiver     domain.Archiver
	Prices       domain.PriceCache
	Gateway      chain.PoolGateway

	HarvestInterval time.Duration
	LockTTL         time.Duration
	ArchiveInterval time.Duration
	RetentionDays   int
	PriceInterval   time.Duration

	Logger *slog.Logger
	Clock  func() time.Time
}

// Scheduler owns the daemon's ticker loops. Each loop runs once immediately
// and then on its interval until the context is cancelled.
type Scheduler struct {
	orchestrator HarvestRunner
	locks        domain.LockManager
	archiver     domain.Archiver
	prices       domain.PriceCache
	gateway      chain.PoolGateway

	harvestInterval time.Duration
	lockTTL         time.Duration
	archiveInterval time.Duration
	retention       time.Duration
	priceInterval   time.Duration

	logger *slog.Logger
	clock  func() time.Time
}

// New validates cfg and returns a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("scheduler: orchestrator is required")
	}
	if cfg.Locks == nil {
		return nil, fmt.Errorf("scheduler: lock manager is required")
	}
	if cfg.HarvestInterval <= 0 {
		return nil, fmt.Errorf("scheduler: harvest interval must be positive")
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 15 * time.Minute
	}
	priceInterval := cfg.PriceInterval
	if priceInterval <= 0 {
		priceInterval = defaultPriceInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		orchestrator:    cfg.Orchestrator,
		locks:           cfg.Locks,
		archiver:        cfg.Archiver,
		prices:          cfg.Prices,
		gateway:         cfg.Gateway,
		harvestInterval: cfg.HarvestInterval,
		lockTTL:         lockTTL,
		archiveInterval: cfg.ArchiveInterval,
		retention:       time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		priceInterval:   priceInterval,
		logger:          logger.With(slog.String("component", "scheduler")),
		clock:           clock,
	}, nil
}

// RunHarvestLoop runs both harvest cycles on the configured interval. The
// distributed lock ensures a single replica mutates the treasury per tick;
// replicas that lose the race skip the tick.
func (s *Scheduler) RunHarvestLoop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "harvest loop started",
		slog.Duration("interval", s.harvestInterval),
	)

	s.harvestOnce(ctx)
	ticker := time.NewTicker(s.harvestInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.harvestOnce(ctx)
		}
	}
}

func (s *Scheduler) harvestOnce(ctx context.Context) {
	unlock, err := s.locks.Acquire(ctx, harvestLockKey, s.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.DebugContext(ctx, "harvest lock held by another replica, skipping tick")
			return
		}
		s.logger.ErrorContext(ctx, "harvest lock acquire failed", slog.String("error", err.Error()))
		return
	}
	defer unlock()

	start := s.clock()

	if err := s.orchestrator.HandleStakeAsset(ctx); err != nil {
		if errors.Is(err, domain.ErrNothingToHarvest) {
			s.logger.DebugContext(ctx, "stake cycle: nothing to harvest")
		} else {
			s.logger.ErrorContext(ctx, "stake cycle failed", slog.String("error", err.Error()))
		}
	}

	if err := s.orchestrator.HandleRewardAsset(ctx); err != nil {
		if errors.Is(err, domain.ErrNoPendingRewards) {
			s.logger.DebugContext(ctx, "reward cycle: no pending rewards")
		} else {
			s.logger.ErrorContext(ctx, "reward cycle failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "harvest tick completed",
		slog.Duration("took", s.clock().Sub(start)),
	)
}

// RunArchiveLoop exports aged liquidation and harvest records to cold storage
// on the configured interval. No-op when no archiver is wired or the interval
// is zero.
func (s *Scheduler) RunArchiveLoop(ctx context.Context) error {
	if s.archiver == nil || s.archiveInterval <= 0 || s.retention <= 0 {
		s.logger.InfoContext(ctx, "archive loop disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "archive loop started",
		slog.Duration("interval", s.archiveInterval),
		slog.Duration("retention", s.retention),
	)

	s.archiveOnce(ctx)
	ticker := time.NewTicker(s.archiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.archiveOnce(ctx)
		}
	}
}

func (s *Scheduler) archiveOnce(ctx context.Context) {
	before := s.clock().UTC().Add(-s.retention)

	liquidations, err := s.archiver.ArchiveLiquidations(ctx, before)
	if err != nil {
		s.logger.ErrorContext(ctx, "archive liquidations failed", slog.String("error", err.Error()))
	}
	harvests, err := s.archiver.ArchiveHarvests(ctx, before)
	if err != nil {
		s.logger.ErrorContext(ctx, "archive harvests failed", slog.String("error", err.Error()))
	}

	if liquidations > 0 || harvests > 0 {
		s.logger.InfoContext(ctx, "archive tick completed",
			slog.Int64("liquidations", liquidations),
			slog.Int64("harvests", harvests),
			slog.Time("before", before),
		)
	}
}

// RunPriceLoop refreshes the cached pool spot price for the status endpoint.
// No-op when no price cache or gateway is wired.
func (s *Scheduler) RunPriceLoop(ctx context.Context) error {
	if s.prices == nil || s.gateway == nil {
		s.logger.InfoContext(ctx, "price loop disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	s.priceOnce(ctx)
	ticker := time.NewTicker(s.priceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.priceOnce(ctx)
		}
	}
}

func (s *Scheduler) priceOnce(ctx context.Context) {
	price, err := s.gateway.SpotPrice(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "spot price read failed", slog.String("error", err.Error()))
		return
	}
	if err := s.prices.SetSpotPrice(ctx, price, s.clock().UTC()); err != nil {
		s.logger.WarnContext(ctx, "spot price cache write failed", slog.String("error", err.Error()))
	}
}
