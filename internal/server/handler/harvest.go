package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cadencefi/treasuryd/internal/domain"
)

// HarvestService is the slice of the orchestrator the HTTP layer needs.
type HarvestService interface {
	HandleStakeAsset(ctx context.Context) error
	HandleRewardAsset(ctx context.Context) error
	UpdateSplitRatios(ctx context.Context, by common.Address, ratioStake, ratioReward domain.Fraction) error
	Ratios() domain.SplitRatios
	ExitToTreasury(ctx context.Context, by common.Address) error
	ReapproveContracts(ctx context.Context, by common.Address) error
}

// HarvestHandler serves the harvest cycle, split ratio, and emergency exit
// endpoints.
type HarvestHandler struct {
	orchestrator HarvestService
	history      domain.HarvestStore
	governor     common.Address
	logger       *slog.Logger
}

// NewHarvestHandler creates a HarvestHandler. history may be nil when no
// database is wired.
func NewHarvestHandler(orchestrator HarvestService, history domain.HarvestStore, governor common.Address, logger *slog.Logger) *HarvestHandler {
	return &HarvestHandler{
		orchestrator: orchestrator,
		history:      history,
		governor:     governor,
		logger:       logHandler(logger, "harvest"),
	}
}

// RunStakeCycle manually runs the stake-asset cycle.
// POST /api/harvest/stake
func (h *HarvestHandler) RunStakeCycle(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.HandleStakeAsset(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cycle": string(domain.CycleStakeAsset)})
}

// RunRewardCycle manually runs the reward-asset cycle.
// POST /api/harvest/reward
func (h *HarvestHandler) RunRewardCycle(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.HandleRewardAsset(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cycle": string(domain.CycleRewardAsset)})
}

// ListHarvests returns recent harvest cycles, newest first.
// GET /api/harvests
func (h *HarvestHandler) ListHarvests(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "harvest history is not available")
		return
	}
	recs, err := h.history.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list harvests failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list harvests")
		return
	}

	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, map[string]any{
			"id":          rec.ID,
			"cycle":       string(rec.Cycle),
			"staked":      rec.Staked.String(),
			"liquidated":  rec.Liquidated.String(),
			"forwarded":   rec.Forwarded.String(),
			"executed_at": rec.ExecutedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"harvests": out})
}

// GetRatios returns the current split ratios.
// GET /api/ratios
func (h *HarvestHandler) GetRatios(w http.ResponseWriter, r *http.Request) {
	ratios := h.orchestrator.Ratios()
	resp := map[string]any{
		"ratio_stake":  ratios.StakeAsset.String(),
		"ratio_reward": ratios.RewardAsset.String(),
	}
	if !ratios.UpdatedAt.IsZero() {
		resp["updated_at"] = ratios.UpdatedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// updateRatiosRequest is the request body for UpdateRatios. Ratios are
// 1e18-scaled decimal strings.
type updateRatiosRequest struct {
	RatioStake  string `json:"ratio_stake"`
	RatioReward string `json:"ratio_reward"`
}

// UpdateRatios atomically replaces both split ratios.
// PUT /api/ratios
func (h *HarvestHandler) UpdateRatios(w http.ResponseWriter, r *http.Request) {
	var req updateRatiosRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	ratioStake, err := parseFraction(req.RatioStake)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ratio_stake: "+err.Error())
		return
	}
	ratioReward, err := parseFraction(req.RatioReward)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ratio_reward: "+err.Error())
		return
	}

	if err := h.orchestrator.UpdateSplitRatios(r.Context(), h.governor, ratioStake, ratioReward); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ratio_stake":  ratioStake.String(),
		"ratio_reward": ratioReward.String(),
	})
}

// ExitToTreasury drains the staked position to the treasury.
// POST /api/exit
func (h *HarvestHandler) ExitToTreasury(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.ExitToTreasury(r.Context(), h.governor); err != nil {
		writeEngineError(w, err)
		return
	}
	h.logger.WarnContext(r.Context(), "treasury exit requested via api")
	writeJSON(w, http.StatusOK, map[string]string{"exited": "true"})
}

// Reapprove re-grants the orchestrator's contract allowances.
// POST /api/reapprove
func (h *HarvestHandler) Reapprove(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.ReapproveContracts(r.Context(), h.governor); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reapproved": "true"})
}
