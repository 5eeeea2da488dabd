package liquidation

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/cadencefi/treasuryd/internal/chain"
	"github.com/cadencefi/treasuryd/internal/domain"
	"github.com/cadencefi/treasuryd/internal/guard"
)

// DefaultCooldown is the minimum interval between triggers of one route.
const DefaultCooldown = 7 * 24 * time.Hour

// Config carries the immutable wiring for a Registry.
type Config struct {
	// Self is the registry's module address; pulled sell assets and swap
	// proceeds pass through it.
	Self common.Address
	// Governor is the only principal allowed to mutate routes and caller
	// activation.
	Governor common.Address

	Router chain.SwapRouter
	Tokens chain.TokenSource

	// Cooldown defaults to DefaultCooldown when zero.
	Cooldown time.Duration

	// RouteStore and History are optional write-through persistence; when
	// nil the registry is purely in-memory.
	RouteStore domain.RouteStore
	History    domain.LiquidationStore

	Events domain.EventSink
	Logger *slog.Logger
	Clock  func() time.Time
}

// Registry owns the route table and executes triggers against it. All state
// mutations happen under the call guard; the in-memory maps are authoritative
// and the stores are write-through.
type Registry struct {
	guard guard.Guard

	self     common.Address
	governor common.Address
	router   chain.SwapRouter
	tokens   chain.TokenSource
	cooldown time.Duration

	routes  map[domain.RouteKey]*domain.Route
	callers map[common.Address]*domain.CallerState

	store   domain.RouteStore
	history domain.LiquidationStore
	events  domain.EventSink
	logger  *slog.Logger
	clock   func() time.Time
}

// New validates cfg and returns an empty Registry.
func New(cfg Config) (*Registry, error) {
	if cfg.Self == (common.Address{}) || cfg.Governor == (common.Address{}) {
		return nil, fmt.Errorf("liquidation: %w", domain.ErrZeroAddress)
	}
	if cfg.Router == nil || cfg.Tokens == nil {
		return nil, fmt.Errorf("liquidation: router and token source are required")
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	events := cfg.Events
	if events == nil {
		events = domain.NopSink
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		self:     cfg.Self,
		governor: cfg.Governor,
		router:   cfg.Router,
		tokens:   cfg.Tokens,
		cooldown: cooldown,
		routes:   make(map[domain.RouteKey]*domain.Route),
		callers:  make(map[common.Address]*domain.CallerState),
		store:    cfg.RouteStore,
		history:  cfg.History,
		events:   events,
		logger:   logger.With(slog.String("component", "liquidation")),
		clock:    clock,
	}, nil
}

// LoadState restores routes and caller activation from the route store. Call
// it once at startup, before the registry is exposed to callers.
func (r *Registry) LoadState(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	release, err := r.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	routes, err := r.store.ListRoutes(ctx)
	if err != nil {
		return fmt.Errorf("liquidation: load routes: %w", err)
	}
	for i := range routes {
		route := routes[i]
		r.routes[route.Key()] = &route
	}
	callers, err := r.store.ListCallers(ctx)
	if err != nil {
		return fmt.Errorf("liquidation: load callers: %w", err)
	}
	for i := range callers {
		state := callers[i]
		r.callers[state.Caller] = &state
	}
	r.logger.Info("registry state loaded",
		slog.Int("routes", len(routes)),
		slog.Int("callers", len(callers)),
	)
	return nil
}

// CreateRoute registers a route for (caller, sellAsset). Both paths must be
// structurally valid and terminate at the right assets; allowedSlippage must
// lie in (0, 1e18]. An existing route is only replaced when overrideExisting
// is set. On success the caller is marked active if it is not already, and the
// router is granted unlimited allowance over the sell asset held by the
// registry.
func (r *Registry) CreateRoute(ctx context.Context, by common.Address, caller, sellAsset, buyAsset common.Address, forwardPath, reversePath []byte, allowedSlippage domain.Fraction, overrideExisting bool) error {
	release, err := r.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if by != r.governor {
		return fmt.Errorf("liquidation: createRoute by %s: %w", by, domain.ErrUnauthorized)
	}
	if caller == (common.Address{}) || sellAsset == (common.Address{}) || buyAsset == (common.Address{}) {
		return fmt.Errorf("liquidation: createRoute: %w", domain.ErrZeroAddress)
	}
	if allowedSlippage.IsZero() {
		return fmt.Errorf("liquidation: createRoute: slippage: %w", domain.ErrInvalidFraction)
	}
	if err := ValidatePath(forwardPath, sellAsset, buyAsset); err != nil {
		return fmt.Errorf("forward path: %w", err)
	}
	if err := ValidatePath(reversePath, buyAsset, sellAsset); err != nil {
		return fmt.Errorf("reverse path: %w", err)
	}

	key := domain.RouteKey{Caller: caller, SellAsset: sellAsset}
	if _, exists := r.routes[key]; exists && !overrideExisting {
		return fmt.Errorf("liquidation: createRoute %s/%s: %w", caller, sellAsset, domain.ErrRouteExists)
	}

	route := &domain.Route{
		Caller:      caller,
		SellAsset:   sellAsset,
		BuyAsset:    buyAsset,
		ForwardPath: append([]byte(nil), forwardPath...),
		ReversePath: append([]byte(nil), reversePath...),
		Slippage:    allowedSlippage,
		CreatedAt:   r.clock().UTC(),
	}

	if err := r.approveRouter(ctx, sellAsset); err != nil {
		return err
	}

	state, known := r.callers[caller]
	activated := !known || !state.Active
	if activated {
		state = &domain.CallerState{Caller: caller, Active: true, UpdatedAt: r.clock().UTC()}
	}

	if r.store != nil {
		if err := r.store.UpsertRoute(ctx, *route); err != nil {
			return fmt.Errorf("liquidation: persist route: %w", err)
		}
		if activated {
			if err := r.store.UpsertCaller(ctx, *state); err != nil {
				return fmt.Errorf("liquidation: persist caller: %w", err)
			}
		}
	}

	r.routes[key] = route
	r.callers[caller] = state

	r.emit(domain.EventRouteCreated, map[string]string{
		"caller":     caller.Hex(),
		"sell_asset": sellAsset.Hex(),
		"buy_asset":  buyAsset.Hex(),
		"slippage":   allowedSlippage.String(),
		"override":   fmt.Sprintf("%t", overrideExisting),
	})
	return nil
}

// DeleteRoute removes the route for (caller, sellAsset).
func (r *Registry) DeleteRoute(ctx context.Context, by common.Address, caller, sellAsset common.Address) error {
	release, err := r.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if by != r.governor {
		return fmt.Errorf("liquidation: deleteRoute by %s: %w", by, domain.ErrUnauthorized)
	}
	key := domain.RouteKey{Caller: caller, SellAsset: sellAsset}
	if _, exists := r.routes[key]; !exists {
		return fmt.Errorf("liquidation: deleteRoute %s/%s: %w", caller, sellAsset, domain.ErrRouteNotFound)
	}
	if r.store != nil {
		if err := r.store.DeleteRoute(ctx, caller, sellAsset); err != nil {
			return fmt.Errorf("liquidation: delete route: %w", err)
		}
	}
	delete(r.routes, key)
	r.emit(domain.EventRouteDeleted, map[string]string{
		"caller":     caller.Hex(),
		"sell_asset": sellAsset.Hex(),
	})
	return nil
}

// ReapproveRoute re-grants the router allowance over the route's sell asset.
// Governance runs this after a router allowance was consumed or revoked.
func (r *Registry) ReapproveRoute(ctx context.Context, by common.Address, caller, sellAsset common.Address) error {
	release, err := r.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if by != r.governor {
		return fmt.Errorf("liquidation: reapproveRoute by %s: %w", by, domain.ErrUnauthorized)
	}
	if _, exists := r.routes[domain.RouteKey{Caller: caller, SellAsset: sellAsset}]; !exists {
		return fmt.Errorf("liquidation: reapproveRoute %s/%s: %w", caller, sellAsset, domain.ErrRouteNotFound)
	}
	return r.approveRouter(ctx, sellAsset)
}

// Activate enables a caller module. Fails when it is already active.
func (r *Registry) Activate(ctx context.Context, by common.Address, caller common.Address) error {
	return r.setActive(ctx, by, caller, true)
}

// Deactivate disables a caller module. Fails when it is already inactive.
func (r *Registry) Deactivate(ctx context.Context, by common.Address, caller common.Address) error {
	return r.setActive(ctx, by, caller, false)
}

func (r *Registry) setActive(ctx context.Context, by common.Address, caller common.Address, active bool) error {
	release, err := r.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if by != r.governor {
		return fmt.Errorf("liquidation: setActive by %s: %w", by, domain.ErrUnauthorized)
	}
	state, known := r.callers[caller]
	if !known {
		state = &domain.CallerState{Caller: caller}
	}
	if state.Active == active {
		if active {
			return fmt.Errorf("liquidation: activate %s: %w", caller, domain.ErrAlreadyActive)
		}
		return fmt.Errorf("liquidation: deactivate %s: %w", caller, domain.ErrAlreadyInactive)
	}
	state.Active = active
	state.UpdatedAt = r.clock().UTC()
	if r.store != nil {
		if err := r.store.UpsertCaller(ctx, *state); err != nil {
			return fmt.Errorf("liquidation: persist caller: %w", err)
		}
	}
	r.callers[caller] = state

	kind := domain.EventCallerActivated
	if !active {
		kind = domain.EventCallerDisabled
	}
	r.emit(kind, map[string]string{"caller": caller.Hex()})
	return nil
}

// Trigger executes the route registered for (caller, sellAsset). The caller
// identity is authenticated by the transport layer; amount must be positive
// and covered by the caller's sell-asset balance, and the route's cooldown
// must have elapsed. The swap aborts atomically when the router cannot beat
// the slippage floor. Returns the buy-asset amount returned to the caller.
func (r *Registry) Trigger(ctx context.Context, caller common.Address, sellAsset common.Address, amount *big.Int) (*big.Int, error) {
	release, err := r.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	state, known := r.callers[caller]
	if !known || !state.Active {
		return nil, fmt.Errorf("liquidation: trigger by %s: %w", caller, domain.ErrCallerInactive)
	}
	route, exists := r.routes[domain.RouteKey{Caller: caller, SellAsset: sellAsset}]
	if !exists {
		return nil, fmt.Errorf("liquidation: trigger %s/%s: %w", caller, sellAsset, domain.ErrRouteNotFound)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("liquidation: trigger: %w", domain.ErrZeroAmount)
	}

	now := r.clock().UTC()
	if !route.LastTriggeredAt.IsZero() && !now.After(route.LastTriggeredAt.Add(r.cooldown)) {
		return nil, fmt.Errorf("liquidation: trigger %s/%s before %s: %w",
			caller, sellAsset, route.LastTriggeredAt.Add(r.cooldown).Format(time.RFC3339), domain.ErrCooldownActive)
	}

	sellToken, err := r.tokens.Token(sellAsset)
	if err != nil {
		return nil, fmt.Errorf("liquidation: sell token %s: %w", sellAsset, err)
	}
	buyToken, err := r.tokens.Token(route.BuyAsset)
	if err != nil {
		return nil, fmt.Errorf("liquidation: buy token %s: %w", route.BuyAsset, err)
	}

	callerBalance, err := sellToken.BalanceOf(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("liquidation: caller balance: %w", err)
	}
	if amount.Cmp(callerBalance) > 0 {
		return nil, fmt.Errorf("liquidation: trigger %s exceeds caller balance %s: %w", amount, callerBalance, domain.ErrInsufficient)
	}

	if err := sellToken.TransferFrom(ctx, caller, r.self, amount); err != nil {
		return nil, fmt.Errorf("liquidation: pull sell asset: %w", err)
	}

	// Swap the registry's whole sell-asset balance, which folds in residue
	// from any earlier aborted pull.
	amountIn, err := sellToken.BalanceOf(ctx, r.self)
	if err != nil {
		return nil, fmt.Errorf("liquidation: registry balance: %w", err)
	}

	quoted, err := r.router.QuoteExactInput(ctx, route.ForwardPath, amountIn)
	if err != nil {
		return nil, fmt.Errorf("liquidation: quote: %w", err)
	}
	minOut := route.Slippage.Mul(quoted)

	out, err := r.router.ExactInput(ctx, chain.SwapParams{
		Path:      route.ForwardPath,
		Recipient: r.self,
		Deadline:  now,
		AmountIn:  amountIn,
		MinOut:    minOut,
	})
	if err != nil {
		return nil, fmt.Errorf("liquidation: swap: %w", err)
	}

	proceeds, err := buyToken.BalanceOf(ctx, r.self)
	if err != nil {
		return nil, fmt.Errorf("liquidation: proceeds balance: %w", err)
	}
	if proceeds.Sign() > 0 {
		if err := buyToken.Transfer(ctx, caller, proceeds); err != nil {
			return nil, fmt.Errorf("liquidation: return proceeds: %w", err)
		}
	}

	route.LastTriggeredAt = now
	if r.store != nil {
		// Best-effort: the swap is already committed on-chain.
		if err := r.store.UpdateTriggeredAt(ctx, caller, sellAsset, now); err != nil {
			r.logger.Error("persist trigger timestamp failed", slog.String("error", err.Error()))
		}
	}
	if r.history != nil {
		rec := domain.LiquidationRecord{
			ID:         uuid.New().String(),
			Caller:     caller,
			SellAsset:  sellAsset,
			BuyAsset:   route.BuyAsset,
			AmountIn:   new(big.Int).Set(amountIn),
			QuotedOut:  quoted,
			MinOut:     minOut,
			AmountOut:  new(big.Int).Set(proceeds),
			ExecutedAt: now,
		}
		if err := r.history.Insert(ctx, rec); err != nil {
			r.logger.Error("persist liquidation record failed", slog.String("error", err.Error()))
		}
	}

	r.logger.Info("liquidation executed",
		slog.String("caller", caller.Hex()),
		slog.String("sell_asset", sellAsset.Hex()),
		slog.String("amount_in", amountIn.String()),
		slog.String("amount_out", out.String()),
	)
	r.emit(domain.EventLiquidation, map[string]string{
		"caller":     caller.Hex(),
		"sell_asset": sellAsset.Hex(),
		"buy_asset":  route.BuyAsset.Hex(),
		"amount_in":  amountIn.String(),
		"quoted":     quoted.String(),
		"min_out":    minOut.String(),
		"amount_out": proceeds.String(),
	})
	return proceeds, nil
}

// Routes returns a snapshot of the route table for the status API.
func (r *Registry) Routes() []domain.Route {
	release, err := r.guard.Enter()
	if err != nil {
		return nil
	}
	defer release()

	out := make([]domain.Route, 0, len(r.routes))
	for _, route := range r.routes {
		out = append(out, *route)
	}
	return out
}

// Callers returns a snapshot of caller activation for the status API.
func (r *Registry) Callers() []domain.CallerState {
	release, err := r.guard.Enter()
	if err != nil {
		return nil
	}
	defer release()

	out := make([]domain.CallerState, 0, len(r.callers))
	for _, state := range r.callers {
		out = append(out, *state)
	}
	return out
}

func (r *Registry) approveRouter(ctx context.Context, sellAsset common.Address) error {
	token, err := r.tokens.Token(sellAsset)
	if err != nil {
		return fmt.Errorf("liquidation: sell token %s: %w", sellAsset, err)
	}
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	max.Sub(max, big.NewInt(1))
	if err := token.Approve(ctx, routerSpender(r.router), max); err != nil {
		return fmt.Errorf("liquidation: approve router: %w", err)
	}
	return nil
}

// routerSpender resolves the router's spender address when the implementation
// exposes one; fakes without an address approve the zero spender, which the
// fake token layer treats as the router.
func routerSpender(router chain.SwapRouter) common.Address {
	type addressed interface{ Address() common.Address }
	if a, ok := router.(addressed); ok {
		return a.Address()
	}
	return common.Address{}
}

func (r *Registry) emit(kind domain.EventKind, fields map[string]string) {
	r.events.Emit(domain.Event{
		ID:     uuid.New().String(),
		Kind:   kind,
		At:     r.clock().UTC(),
		Fields: fields,
	})
}
