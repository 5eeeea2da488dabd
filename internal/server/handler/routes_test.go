package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencefi/treasuryd/internal/domain"
)

type fakeRegistry struct {
	routes  []domain.Route
	callers []domain.CallerState

	createErr  error
	deleteErr  error
	triggerErr error
	triggerOut *big.Int

	lastBy     common.Address
	lastCaller common.Address
	lastAsset  common.Address
	lastAmount *big.Int
	lastRoute  domain.Route
	lastActive bool
}

func (f *fakeRegistry) CreateRoute(_ context.Context, by common.Address, caller, sellAsset, buyAsset common.Address, forwardPath, reversePath []byte, allowedSlippage domain.Fraction, overrideExisting bool) error {
	f.lastBy = by
	f.lastRoute = domain.Route{
		Caller: caller, SellAsset: sellAsset, BuyAsset: buyAsset,
		ForwardPath: forwardPath, ReversePath: reversePath, Slippage: allowedSlippage,
	}
	return f.createErr
}

func (f *fakeRegistry) DeleteRoute(_ context.Context, by common.Address, caller, sellAsset common.Address) error {
	f.lastBy, f.lastCaller, f.lastAsset = by, caller, sellAsset
	return f.deleteErr
}

func (f *fakeRegistry) ReapproveRoute(_ context.Context, by common.Address, caller, sellAsset common.Address) error {
	f.lastBy, f.lastCaller, f.lastAsset = by, caller, sellAsset
	return nil
}

func (f *fakeRegistry) Activate(_ context.Context, by common.Address, caller common.Address) error {
	f.lastBy, f.lastCaller, f.lastActive = by, caller, true
	return nil
}

func (f *fakeRegistry) Deactivate(_ context.Context, by common.Address, caller common.Address) error {
	f.lastBy, f.lastCaller, f.lastActive = by, caller, false
	return nil
}

func (f *fakeRegistry) Trigger(_ context.Context, caller common.Address, sellAsset common.Address, amount *big.Int) (*big.Int, error) {
	f.lastCaller, f.lastAsset, f.lastAmount = caller, sellAsset, amount
	if f.triggerErr != nil {
		return nil, f.triggerErr
	}
	return f.triggerOut, nil
}

func (f *fakeRegistry) Routes() []domain.Route        { return f.routes }
func (f *fakeRegistry) Callers() []domain.CallerState { return f.callers }

func newRouteHandler(reg *fakeRegistry) (*RouteHandler, common.Address) {
	governor := common.Address{0x99}
	return NewRouteHandler(reg, nil, governor, slog.New(slog.DiscardHandler)), governor
}

// routesMux registers the handler on the same patterns the server uses so the
// tests exercise PathValue extraction.
func routesMux(h *RouteHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/routes", h.ListRoutes)
	mux.HandleFunc("POST /api/routes", h.CreateRoute)
	mux.HandleFunc("DELETE /api/routes/{caller}/{asset}", h.DeleteRoute)
	mux.HandleFunc("POST /api/routes/{caller}/{asset}/reapprove", h.ReapproveRoute)
	mux.HandleFunc("GET /api/callers", h.ListCallers)
	mux.HandleFunc("POST /api/callers/{address}/activate", h.ActivateCaller)
	mux.HandleFunc("POST /api/callers/{address}/deactivate", h.DeactivateCaller)
	mux.HandleFunc("POST /api/liquidations/trigger", h.TriggerLiquidation)
	mux.HandleFunc("GET /api/liquidations", h.ListLiquidations)
	return mux
}

func testPath(sell, buy common.Address) []byte {
	path := make([]byte, 0, 43)
	path = append(path, sell.Bytes()...)
	path = append(path, 0x00, 0x0b, 0xb8)
	path = append(path, buy.Bytes()...)
	return path
}

func TestCreateRoute(t *testing.T) {
	reg := &fakeRegistry{}
	h, governor := newRouteHandler(reg)
	mux := routesMux(h)

	caller := common.Address{0x01}
	sell := common.Address{0x02}
	buy := common.Address{0x03}
	forward := testPath(sell, buy)
	reverse := testPath(buy, sell)

	body, err := json.Marshal(map[string]any{
		"caller":       caller.Hex(),
		"sell_asset":   sell.Hex(),
		"buy_asset":    buy.Hex(),
		"forward_path": hexutil.Encode(forward),
		"reverse_path": hexutil.Encode(reverse),
		"slippage":     "990000000000000000",
		"override":     true,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/routes", strings.NewReader(string(body))))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, governor, reg.lastBy)
	assert.Equal(t, caller, reg.lastRoute.Caller)
	assert.Equal(t, forward, reg.lastRoute.ForwardPath)
	assert.Equal(t, reverse, reg.lastRoute.ReversePath)
	assert.Equal(t, "990000000000000000", reg.lastRoute.Slippage.String())
}

func TestCreateRouteRejectsZeroAddress(t *testing.T) {
	reg := &fakeRegistry{}
	h, _ := newRouteHandler(reg)

	body := `{"caller":"0x0000000000000000000000000000000000000000","sell_asset":"0x02","buy_asset":"0x03"}`
	rec := httptest.NewRecorder()
	h.CreateRoute(rec, httptest.NewRequest(http.MethodPost, "/api/routes", strings.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRouteMapsEngineErrors(t *testing.T) {
	caller := common.Address{0x01}
	sell := common.Address{0x02}
	buy := common.Address{0x03}
	body, err := json.Marshal(map[string]any{
		"caller":       caller.Hex(),
		"sell_asset":   sell.Hex(),
		"buy_asset":    buy.Hex(),
		"forward_path": hexutil.Encode(testPath(sell, buy)),
		"reverse_path": hexutil.Encode(testPath(buy, sell)),
		"slippage":     "1000000000000000000",
	})
	require.NoError(t, err)

	cases := []struct {
		err  error
		code int
	}{
		{domain.ErrRouteExists, http.StatusConflict},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrInvalidPath, http.StatusBadRequest},
	}
	for _, tc := range cases {
		reg := &fakeRegistry{createErr: tc.err}
		h, _ := newRouteHandler(reg)

		rec := httptest.NewRecorder()
		h.CreateRoute(rec, httptest.NewRequest(http.MethodPost, "/api/routes", strings.NewReader(string(body))))
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}
}

func TestDeleteRoute(t *testing.T) {
	reg := &fakeRegistry{}
	h, governor := newRouteHandler(reg)
	mux := routesMux(h)

	caller := common.Address{0x01}
	sell := common.Address{0x02}
	url := "/api/routes/" + caller.Hex() + "/" + sell.Hex()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, url, nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, governor, reg.lastBy)
	assert.Equal(t, caller, reg.lastCaller)
	assert.Equal(t, sell, reg.lastAsset)
}

func TestDeleteRouteNotFound(t *testing.T) {
	reg := &fakeRegistry{deleteErr: domain.ErrRouteNotFound}
	h, _ := newRouteHandler(reg)
	mux := routesMux(h)

	url := "/api/routes/" + common.Address{0x01}.Hex() + "/" + common.Address{0x02}.Hex()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, url, nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivateCaller(t *testing.T) {
	reg := &fakeRegistry{}
	h, governor := newRouteHandler(reg)
	mux := routesMux(h)

	caller := common.Address{0x07}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/callers/"+caller.Hex()+"/activate", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, governor, reg.lastBy)
	assert.Equal(t, caller, reg.lastCaller)
	assert.True(t, reg.lastActive)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/callers/"+caller.Hex()+"/deactivate", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, reg.lastActive)
}

func TestTriggerLiquidation(t *testing.T) {
	reg := &fakeRegistry{triggerOut: big.NewInt(970)}
	h, _ := newRouteHandler(reg)

	body := `{"caller":"` + common.Address{0x01}.Hex() + `","sell_asset":"` + common.Address{0x02}.Hex() + `","amount":"1000"}`
	rec := httptest.NewRecorder()
	h.TriggerLiquidation(rec, httptest.NewRequest(http.MethodPost, "/api/liquidations/trigger", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1000", resp["amount_in"])
	assert.Equal(t, "970", resp["amount_out"])
	assert.Equal(t, big.NewInt(1000), reg.lastAmount)
}

func TestTriggerLiquidationCooldown(t *testing.T) {
	reg := &fakeRegistry{triggerErr: domain.ErrCooldownActive}
	h, _ := newRouteHandler(reg)

	body := `{"caller":"` + common.Address{0x01}.Hex() + `","sell_asset":"` + common.Address{0x02}.Hex() + `","amount":"1000"}`
	rec := httptest.NewRecorder()
	h.TriggerLiquidation(rec, httptest.NewRequest(http.MethodPost, "/api/liquidations/trigger", strings.NewReader(body)))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListRoutes(t *testing.T) {
	sell := common.Address{0x02}
	buy := common.Address{0x03}
	reg := &fakeRegistry{routes: []domain.Route{{
		Caller:      common.Address{0x01},
		SellAsset:   sell,
		BuyAsset:    buy,
		ForwardPath: testPath(sell, buy),
		ReversePath: testPath(buy, sell),
		Slippage:    domain.MustFraction(990_000_000_000_000_000),
		CreatedAt:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}}}
	h, _ := newRouteHandler(reg)

	rec := httptest.NewRecorder()
	h.ListRoutes(rec, httptest.NewRequest(http.MethodGet, "/api/routes", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Routes []routeJSON `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Routes, 1)
	assert.Equal(t, sell.Hex(), resp.Routes[0].SellAsset)
	assert.Equal(t, hexutil.Encode(testPath(sell, buy)), resp.Routes[0].ForwardPath)
	assert.Equal(t, "990000000000000000", resp.Routes[0].Slippage)
	assert.Empty(t, resp.Routes[0].LastTriggeredAt)
}

func TestListLiquidationsWithoutHistory(t *testing.T) {
	h, _ := newRouteHandler(&fakeRegistry{})

	rec := httptest.NewRecorder()
	h.ListLiquidations(rec, httptest.NewRequest(http.MethodGet, "/api/liquidations", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}
