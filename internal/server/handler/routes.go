package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/cadencefi/treasuryd/internal/domain"
)

// RouteService is the slice of the liquidation registry the HTTP layer needs.
type RouteService interface {
	CreateRoute(ctx context.Context, by common.Address, caller, sellAsset, buyAsset common.Address, forwardPath, reversePath []byte, allowedSlippage domain.Fraction, overrideExisting bool) error
	DeleteRoute(ctx context.Context, by common.Address, caller, sellAsset common.Address) error
	ReapproveRoute(ctx context.Context, by common.Address, caller, sellAsset common.Address) error
	Activate(ctx context.Context, by common.Address, caller common.Address) error
	Deactivate(ctx context.Context, by common.Address, caller common.Address) error
	Trigger(ctx context.Context, caller common.Address, sellAsset common.Address, amount *big.Int) (*big.Int, error)
	Routes() []domain.Route
	Callers() []domain.CallerState
}

// RouteHandler serves the liquidation route and caller management endpoints.
// Governance operations are executed with the configured governor identity;
// the auth middleware gates who can reach them.
type RouteHandler struct {
	registry RouteService
	history  domain.LiquidationStore
	governor common.Address
	logger   *slog.Logger
}

// NewRouteHandler creates a RouteHandler. history may be nil when no database
// is wired; the liquidation listing then returns 404.
func NewRouteHandler(registry RouteService, history domain.LiquidationStore, governor common.Address, logger *slog.Logger) *RouteHandler {
	return &RouteHandler{
		registry: registry,
		history:  history,
		governor: governor,
		logger:   logHandler(logger, "routes"),
	}
}

// routeJSON is the wire shape for a registered route.
type routeJSON struct {
	Caller          string `json:"caller"`
	SellAsset       string `json:"sell_asset"`
	BuyAsset        string `json:"buy_asset"`
	ForwardPath     string `json:"forward_path"`
	ReversePath     string `json:"reverse_path"`
	Slippage        string `json:"slippage"`
	LastTriggeredAt string `json:"last_triggered_at,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toRouteJSON(r domain.Route) routeJSON {
	out := routeJSON{
		Caller:      r.Caller.Hex(),
		SellAsset:   r.SellAsset.Hex(),
		BuyAsset:    r.BuyAsset.Hex(),
		ForwardPath: hexutil.Encode(r.ForwardPath),
		ReversePath: hexutil.Encode(r.ReversePath),
		Slippage:    r.Slippage.String(),
		CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !r.LastTriggeredAt.IsZero() {
		out.LastTriggeredAt = r.LastTriggeredAt.UTC().Format(time.RFC3339)
	}
	return out
}

// ListRoutes returns a snapshot of the route table.
// GET /api/routes
func (h *RouteHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	routes := h.registry.Routes()
	out := make([]routeJSON, 0, len(routes))
	for _, route := range routes {
		out = append(out, toRouteJSON(route))
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": out})
}

// createRouteRequest is the request body for CreateRoute.
type createRouteRequest struct {
	Caller      string `json:"caller"`
	SellAsset   string `json:"sell_asset"`
	BuyAsset    string `json:"buy_asset"`
	ForwardPath string `json:"forward_path"`
	ReversePath string `json:"reverse_path"`
	Slippage    string `json:"slippage"`
	Override    bool   `json:"override"`
}

// CreateRoute registers a liquidation route.
// POST /api/routes
func (h *RouteHandler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	var req createRouteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return
	}
	sellAsset, err := parseAddress(req.SellAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, "sell_asset: "+err.Error())
		return
	}
	buyAsset, err := parseAddress(req.BuyAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, "buy_asset: "+err.Error())
		return
	}
	forward, err := hexutil.Decode(req.ForwardPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, "forward_path: "+err.Error())
		return
	}
	reverse, err := hexutil.Decode(req.ReversePath)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reverse_path: "+err.Error())
		return
	}
	slippage, err := parseFraction(req.Slippage)
	if err != nil {
		writeError(w, http.StatusBadRequest, "slippage: "+err.Error())
		return
	}

	if err := h.registry.CreateRoute(r.Context(), h.governor, caller, sellAsset, buyAsset, forward, reverse, slippage, req.Override); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"caller":     caller.Hex(),
		"sell_asset": sellAsset.Hex(),
	})
}

// DeleteRoute removes a route.
// DELETE /api/routes/{caller}/{asset}
func (h *RouteHandler) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	caller, sellAsset, ok := h.routeKey(w, r)
	if !ok {
		return
	}
	if err := h.registry.DeleteRoute(r.Context(), h.governor, caller, sellAsset); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": "true"})
}

// ReapproveRoute re-grants the router allowance over a route's sell asset.
// POST /api/routes/{caller}/{asset}/reapprove
func (h *RouteHandler) ReapproveRoute(w http.ResponseWriter, r *http.Request) {
	caller, sellAsset, ok := h.routeKey(w, r)
	if !ok {
		return
	}
	if err := h.registry.ReapproveRoute(r.Context(), h.governor, caller, sellAsset); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reapproved": "true"})
}

// ListCallers returns the caller activation table.
// GET /api/callers
func (h *RouteHandler) ListCallers(w http.ResponseWriter, r *http.Request) {
	callers := h.registry.Callers()
	out := make([]map[string]any, 0, len(callers))
	for _, c := range callers {
		out = append(out, map[string]any{
			"caller":     c.Caller.Hex(),
			"active":     c.Active,
			"updated_at": c.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"callers": out})
}

// ActivateCaller enables a caller module.
// POST /api/callers/{address}/activate
func (h *RouteHandler) ActivateCaller(w http.ResponseWriter, r *http.Request) {
	h.setCallerActive(w, r, true)
}

// DeactivateCaller disables a caller module.
// POST /api/callers/{address}/deactivate
func (h *RouteHandler) DeactivateCaller(w http.ResponseWriter, r *http.Request) {
	h.setCallerActive(w, r, false)
}

func (h *RouteHandler) setCallerActive(w http.ResponseWriter, r *http.Request, active bool) {
	caller, err := parseAddress(pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "address: "+err.Error())
		return
	}
	if active {
		err = h.registry.Activate(r.Context(), h.governor, caller)
	} else {
		err = h.registry.Deactivate(r.Context(), h.governor, caller)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"caller": caller.Hex(),
		"active": active,
	})
}

// triggerRequest is the request body for a manual liquidation trigger.
type triggerRequest struct {
	Caller    string `json:"caller"`
	SellAsset string `json:"sell_asset"`
	Amount    string `json:"amount"`
}

// TriggerLiquidation executes a registered route for the given caller.
// POST /api/liquidations/trigger
func (h *RouteHandler) TriggerLiquidation(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return
	}
	sellAsset, err := parseAddress(req.SellAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, "sell_asset: "+err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount: "+err.Error())
		return
	}

	out, err := h.registry.Trigger(r.Context(), caller, sellAsset, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"amount_in":  amount.String(),
		"amount_out": out.String(),
	})
}

// ListLiquidations returns recent liquidation history, newest first.
// GET /api/liquidations
func (h *RouteHandler) ListLiquidations(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "liquidation history is not available")
		return
	}
	recs, err := h.history.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list liquidations failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list liquidations")
		return
	}

	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, map[string]any{
			"id":          rec.ID,
			"caller":      rec.Caller.Hex(),
			"sell_asset":  rec.SellAsset.Hex(),
			"buy_asset":   rec.BuyAsset.Hex(),
			"amount_in":   rec.AmountIn.String(),
			"quoted_out":  rec.QuotedOut.String(),
			"min_out":     rec.MinOut.String(),
			"amount_out":  rec.AmountOut.String(),
			"executed_at": rec.ExecutedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"liquidations": out})
}

func (h *RouteHandler) routeKey(w http.ResponseWriter, r *http.Request) (common.Address, common.Address, bool) {
	caller, err := parseAddress(pathParam(r, "caller"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return common.Address{}, common.Address{}, false
	}
	sellAsset, err := parseAddress(pathParam(r, "asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "asset: "+err.Error())
		return common.Address{}, common.Address{}, false
	}
	return caller, sellAsset, true
}
