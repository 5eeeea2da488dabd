package handler

import (
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cadencefi/treasuryd/internal/domain"
)

// BalanceReader reads the adapter's tracked base-asset balance.
type BalanceReader interface {
	CheckBalance(asset common.Address) (*big.Int, error)
}

// RatioReader reads the orchestrator's current split ratios.
type RatioReader interface {
	Ratios() domain.SplitRatios
}

// StatusHandler serves a snapshot of the daemon state for the operator
// dashboard.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	baseAsset common.Address
	adapter   BalanceReader
	ratios    RatioReader
	prices    domain.PriceCache
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler. prices may be nil when no cache is
// wired; the spot price is then omitted from the snapshot.
func NewStatusHandler(mode string, startedAt time.Time, baseAsset common.Address, adapter BalanceReader, ratios RatioReader, prices domain.PriceCache, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		startedAt: startedAt,
		baseAsset: baseAsset,
		adapter:   adapter,
		ratios:    ratios,
		prices:    prices,
		logger:    logHandler(logger, "status"),
	}
}

// GetStatus responds with the current mode, uptime, tracked balance, split
// ratios, and cached spot price.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	if h.adapter != nil {
		balance, err := h.adapter.CheckBalance(h.baseAsset)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "check balance failed", slog.String("error", err.Error()))
		} else {
			resp["tracked_balance"] = balance.String()
		}
	}

	if h.ratios != nil {
		ratios := h.ratios.Ratios()
		resp["ratio_stake"] = ratios.StakeAsset.String()
		resp["ratio_reward"] = ratios.RewardAsset.String()
		if !ratios.UpdatedAt.IsZero() {
			resp["ratios_updated_at"] = ratios.UpdatedAt.UTC().Format(time.RFC3339)
		}
	}

	if h.prices != nil {
		price, ts, err := h.prices.GetSpotPrice(r.Context())
		if err == nil {
			resp["spot_price"] = price.String()
			resp["spot_price_at"] = ts.UTC().Format(time.RFC3339)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
