package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/cadencefi/treasuryd/internal/accounting"
	"github.com/cadencefi/treasuryd/internal/domain"
	"github.com/cadencefi/treasuryd/internal/liquidation"
	"github.com/cadencefi/treasuryd/internal/notify"
	"github.com/cadencefi/treasuryd/internal/orchestrator"
	"github.com/cadencefi/treasuryd/internal/scheduler"
	"github.com/cadencefi/treasuryd/internal/server"
	"github.com/cadencefi/treasuryd/internal/server/handler"
	"github.com/cadencefi/treasuryd/internal/server/ws"
)

// engines groups the three on-chain engines built in modes that sign.
type engines struct {
	adapter      *accounting.Adapter
	registry     *liquidation.Registry
	orchestrator *orchestrator.Orchestrator
}

// ServeMode runs the full daemon: engines, the operator API, the websocket
// hub, and all scheduler loops.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	bridge := a.startBridge(ctx, g, deps)
	events := a.newEventSink(deps, bridge)

	eng, err := a.buildEngines(ctx, deps, events)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	sched, err := a.newScheduler(deps, eng)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}
	g.Go(func() error { return sched.RunHarvestLoop(ctx) })
	g.Go(func() error { return sched.RunArchiveLoop(ctx) })
	g.Go(func() error { return sched.RunPriceLoop(ctx) })

	a.startHTTPServer(ctx, g, deps, eng)

	return g.Wait()
}

// HarvestMode runs the engines and scheduler loops headless. The operator API
// is only started when enabled in the configuration.
func (a *App) HarvestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting harvest mode")

	g, ctx := errgroup.WithContext(ctx)

	bridge := a.startBridge(ctx, g, deps)
	events := a.newEventSink(deps, bridge)

	eng, err := a.buildEngines(ctx, deps, events)
	if err != nil {
		return fmt.Errorf("harvest mode: %w", err)
	}

	sched, err := a.newScheduler(deps, eng)
	if err != nil {
		return fmt.Errorf("harvest mode: %w", err)
	}
	g.Go(func() error { return sched.RunHarvestLoop(ctx) })
	g.Go(func() error { return sched.RunArchiveLoop(ctx) })
	g.Go(func() error { return sched.RunPriceLoop(ctx) })

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, eng)
	}

	return g.Wait()
}

// MonitorMode runs a read-only replica: no signer, no engines, no scheduler.
// It serves health, status, and archive endpoints plus the websocket hub,
// relaying events published on the bus by the signing replica.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startBridge(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, nil)

	return g.Wait()
}

// buildEngines constructs the adapter, the liquidation registry, and the
// reward orchestrator from the configured module addresses, restores persisted
// registry state, and runs the one-time approval handshakes.
func (a *App) buildEngines(ctx context.Context, deps *Dependencies, events domain.EventSink) (*engines, error) {
	adapter, err := accounting.New(accounting.Config{
		Self:       addr(a.cfg.Modules.Adapter),
		LP:         addr(a.cfg.Modules.LP),
		Spenders:   []common.Address{addr(a.cfg.Modules.Orchestrator)},
		Gateway:    deps.Pool,
		BaseAsset:  deps.BaseToken,
		StakeAsset: deps.StakeToken,
		Events:     events,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build adapter: %w", err)
	}

	registry, err := liquidation.New(liquidation.Config{
		Self:       addr(a.cfg.Modules.Registry),
		Governor:   addr(a.cfg.Modules.Governor),
		Router:     deps.Router,
		Tokens:     deps.Tokens,
		Cooldown:   a.cfg.Liquidation.Cooldown.Duration,
		RouteStore: deps.RouteStore,
		History:    deps.LiquidationStore,
		Events:     events,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	ratios, err := a.loadRatios(ctx, deps)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Self:           addr(a.cfg.Modules.Orchestrator),
		Adapter:        addr(a.cfg.Modules.Adapter),
		Governor:       addr(a.cfg.Modules.Governor),
		StakeAsset:     deps.StakeToken,
		RewardAsset:    deps.RewardToken,
		Staking:        deps.Staking,
		StakingAddr:    addr(a.cfg.Modules.Staking),
		Liquidator:     registry,
		LiquidatorAddr: addr(a.cfg.Modules.Registry),
		Modules: orchestrator.StaticResolver{
			orchestrator.TreasuryModule: addr(a.cfg.Modules.Treasury),
		},
		Ratios:     ratios,
		RatioStore: deps.RatioStore,
		History:    deps.HarvestStore,
		Events:     events,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	if err := registry.LoadState(ctx); err != nil {
		return nil, fmt.Errorf("restore routes: %w", err)
	}
	if err := adapter.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize adapter: %w", err)
	}
	if err := orch.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize orchestrator: %w", err)
	}

	return &engines{adapter: adapter, registry: registry, orchestrator: orch}, nil
}

// loadRatios returns the latest persisted split ratios, falling back to the
// configured defaults when none have been saved yet.
func (a *App) loadRatios(ctx context.Context, deps *Dependencies) (domain.SplitRatios, error) {
	ratios, err := deps.RatioStore.Latest(ctx)
	if err == nil {
		return ratios, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.SplitRatios{}, fmt.Errorf("load ratios: %w", err)
	}

	stake, err := parseFractionStr(a.cfg.Harvest.RatioStake)
	if err != nil {
		return domain.SplitRatios{}, fmt.Errorf("load ratios: harvest.ratio_stake: %w", err)
	}
	reward, err := parseFractionStr(a.cfg.Harvest.RatioReward)
	if err != nil {
		return domain.SplitRatios{}, fmt.Errorf("load ratios: harvest.ratio_reward: %w", err)
	}
	return domain.SplitRatios{StakeAsset: stake, RewardAsset: reward}, nil
}

func parseFractionStr(s string) (domain.Fraction, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return domain.Fraction{}, fmt.Errorf("not a decimal integer: %q", s)
	}
	return domain.NewFraction(n)
}

func (a *App) newScheduler(deps *Dependencies, eng *engines) (*scheduler.Scheduler, error) {
	return scheduler.New(scheduler.Config{
		Orchestrator:    eng.orchestrator,
		Locks:           deps.LockManager,
		Archiver:        deps.Archiver,
		Prices:          deps.PriceCache,
		Gateway:         deps.Pool,
		HarvestInterval: a.cfg.Harvest.Interval.Duration,
		LockTTL:         a.cfg.Harvest.LockTTL.Duration,
		ArchiveInterval: a.cfg.Harvest.ArchiveInterval.Duration,
		RetentionDays:   a.cfg.Harvest.ArchiveRetentionDays,
		Logger:          a.logger,
	})
}

// startBridge starts the notification bridge goroutine and returns the bridge
// so it can be attached to the event sink. Returns nil when no notification
// channels are configured.
func (a *App) startBridge(ctx context.Context, g *errgroup.Group, deps *Dependencies) *notify.Bridge {
	if deps.Notifier == nil {
		return nil
	}
	bridge := notify.NewBridge(deps.Notifier, 64, a.logger)
	g.Go(func() error { return bridge.Run(ctx) })
	return bridge
}

// newEventSink fans engine events out to the signal bus (feeding the
// websocket hub and the durable event stream) and the notification bridge.
func (a *App) newEventSink(deps *Dependencies, bridge *notify.Bridge) domain.EventSink {
	sinks := []domain.EventSink{newBusSink(deps.SignalBus, a.logger)}
	if bridge != nil {
		sinks = append(sinks, bridge)
	}
	return fanoutSink(sinks)
}

// fanoutSink delivers each event to every sink in order.
type fanoutSink []domain.EventSink

func (f fanoutSink) Emit(ev domain.Event) {
	for _, s := range f {
		s.Emit(ev)
	}
}

// eventStream is the durable Redis stream the bus sink appends every event to.
const eventStream = "stream:events"

// busSink publishes engine events on the signal bus. Emit never blocks the
// engines; delivery happens on a short-lived goroutine with its own deadline.
type busSink struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

func newBusSink(bus domain.SignalBus, logger *slog.Logger) *busSink {
	return &busSink{bus: bus, logger: logger}
}

func (s *busSink) Emit(ev domain.Event) {
	payload := ev.Marshal()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.bus.Publish(ctx, ws.EventsChannel, payload); err != nil {
			s.logger.Warn("event publish failed",
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, eventStream, payload); err != nil {
			s.logger.Warn("event stream append failed",
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// startHTTPServer adds the HTTP server and websocket hub goroutines to the
// given errgroup. eng may be nil (monitor mode); governance and harvest
// endpoints are then left unregistered.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engines) {
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
	})
	g.Go(func() error { return hub.Run(ctx) })

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.cfg.Mode, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	governor := addr(a.cfg.Modules.Governor)
	baseAsset := addr(a.cfg.Assets.BaseAsset)

	if eng != nil {
		handlers.Status = handler.NewStatusHandler(
			a.cfg.Mode, startedAt, baseAsset,
			eng.adapter, eng.orchestrator, deps.PriceCache, a.logger,
		)
		handlers.Routes = handler.NewRouteHandler(eng.registry, deps.LiquidationStore, governor, a.logger)
		handlers.Harvest = handler.NewHarvestHandler(eng.orchestrator, deps.HarvestStore, governor, a.logger)
	} else {
		handlers.Status = handler.NewStatusHandler(
			a.cfg.Mode, startedAt, baseAsset,
			nil, nil, deps.PriceCache, a.logger,
		)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AuthToken:   a.cfg.Server.AuthToken,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error { return srv.Start() })
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
