package scheduler

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cadencefi/treasuryd/internal/chain/chaintest"
	"github.com/cadencefi/treasuryd/internal/domain"
)

type fakeRunner struct {
	stakeCalls  int
	rewardCalls int
	stakeErr    error
	rewardErr   error
}

func (f *fakeRunner) HandleStakeAsset(context.Context) error {
	f.stakeCalls++
	return f.stakeErr
}

func (f *fakeRunner) HandleRewardAsset(context.Context) error {
	f.rewardCalls++
	return f.rewardErr
}

type fakeLocks struct {
	held     bool
	acquires int
	releases int
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	f.acquires++
	if f.held {
		return nil, domain.ErrLockHeld
	}
	return func() { f.releases++ }, nil
}

type fakeArchiver struct {
	mu      sync.Mutex
	befores []time.Time
}

func (f *fakeArchiver) ArchiveLiquidations(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.befores = append(f.befores, before)
	return 3, nil
}

func (f *fakeArchiver) ArchiveHarvests(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.befores = append(f.befores, before)
	return 1, nil
}

type memPriceCache struct {
	price *big.Int
	ts    time.Time
}

func (m *memPriceCache) SetSpotPrice(_ context.Context, price *big.Int, ts time.Time) error {
	m.price = new(big.Int).Set(price)
	m.ts = ts
	return nil
}

func (m *memPriceCache) GetSpotPrice(context.Context) (*big.Int, time.Time, error) {
	if m.price == nil {
		return nil, time.Time{}, domain.ErrNotFound
	}
	return m.price, m.ts, nil
}

func newScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.HarvestInterval == 0 {
		cfg.HarvestInterval = time.Hour
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Locks: &fakeLocks{}, HarvestInterval: time.Hour})
	require.Error(t, err)

	_, err = New(Config{Orchestrator: &fakeRunner{}, HarvestInterval: time.Hour})
	require.Error(t, err)

	_, err = New(Config{Orchestrator: &fakeRunner{}, Locks: &fakeLocks{}})
	require.Error(t, err)
}

func TestHarvestOnceRunsBothCycles(t *testing.T) {
	runner := &fakeRunner{}
	locks := &fakeLocks{}
	s := newScheduler(t, Config{Orchestrator: runner, Locks: locks})

	s.harvestOnce(context.Background())

	require.Equal(t, 1, runner.stakeCalls)
	require.Equal(t, 1, runner.rewardCalls)
	require.Equal(t, 1, locks.acquires)
	require.Equal(t, 1, locks.releases)
}

func TestHarvestOnceSkipsWhenLockHeld(t *testing.T) {
	runner := &fakeRunner{}
	locks := &fakeLocks{held: true}
	s := newScheduler(t, Config{Orchestrator: runner, Locks: locks})

	s.harvestOnce(context.Background())

	require.Zero(t, runner.stakeCalls)
	require.Zero(t, runner.rewardCalls)
}

func TestHarvestOnceContinuesPastIdleCycles(t *testing.T) {
	runner := &fakeRunner{
		stakeErr:  domain.ErrNothingToHarvest,
		rewardErr: domain.ErrNoPendingRewards,
	}
	s := newScheduler(t, Config{Orchestrator: runner, Locks: &fakeLocks{}})

	s.harvestOnce(context.Background())

	require.Equal(t, 1, runner.stakeCalls)
	require.Equal(t, 1, runner.rewardCalls)
}

func TestArchiveOnceUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	archiver := &fakeArchiver{}
	s := newScheduler(t, Config{
		Orchestrator:    &fakeRunner{},
		Locks:           &fakeLocks{},
		Archiver:        archiver,
		ArchiveInterval: time.Hour,
		RetentionDays:   90,
		Clock:           func() time.Time { return now },
	})

	s.archiveOnce(context.Background())

	want := now.Add(-90 * 24 * time.Hour)
	require.Len(t, archiver.befores, 2)
	require.Equal(t, want, archiver.befores[0])
	require.Equal(t, want, archiver.befores[1])
}

func TestPriceOnceCachesSpotPrice(t *testing.T) {
	asset := chaintest.NewAsset(common.Address{0xA1}, 18)
	depositor := common.Address{0x01}
	pool := chaintest.NewPool(asset, common.Address{0x03}, depositor)
	asset.Mint(depositor, big.NewInt(1000))
	require.NoError(t, pool.Deposit(context.Background(), big.NewInt(1000)))

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	prices := &memPriceCache{}
	s := newScheduler(t, Config{
		Orchestrator: &fakeRunner{},
		Locks:        &fakeLocks{},
		Prices:       prices,
		Gateway:      pool,
		Clock:        func() time.Time { return now },
	})

	s.priceOnce(context.Background())

	want, err := pool.SpotPrice(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, prices.price)
	require.Equal(t, now, prices.ts)
}
