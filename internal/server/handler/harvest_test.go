package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencefi/treasuryd/internal/domain"
)

type fakeOrchestrator struct {
	stakeErr  error
	rewardErr error
	updateErr error
	exitErr   error
	ratios    domain.SplitRatios

	lastBy     common.Address
	lastStake  domain.Fraction
	lastReward domain.Fraction
	exits      int
}

func (f *fakeOrchestrator) HandleStakeAsset(context.Context) error  { return f.stakeErr }
func (f *fakeOrchestrator) HandleRewardAsset(context.Context) error { return f.rewardErr }

func (f *fakeOrchestrator) UpdateSplitRatios(_ context.Context, by common.Address, ratioStake, ratioReward domain.Fraction) error {
	f.lastBy, f.lastStake, f.lastReward = by, ratioStake, ratioReward
	return f.updateErr
}

func (f *fakeOrchestrator) Ratios() domain.SplitRatios { return f.ratios }

func (f *fakeOrchestrator) ExitToTreasury(_ context.Context, by common.Address) error {
	f.lastBy = by
	f.exits++
	return f.exitErr
}

func (f *fakeOrchestrator) ReapproveContracts(_ context.Context, by common.Address) error {
	f.lastBy = by
	return nil
}

func newHarvestHandler(orch *fakeOrchestrator) (*HarvestHandler, common.Address) {
	governor := common.Address{0x99}
	return NewHarvestHandler(orch, nil, governor, slog.New(slog.DiscardHandler)), governor
}

func TestRunStakeCycle(t *testing.T) {
	orch := &fakeOrchestrator{}
	h, _ := newHarvestHandler(orch)

	rec := httptest.NewRecorder()
	h.RunStakeCycle(rec, httptest.NewRequest(http.MethodPost, "/api/harvest/stake", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(domain.CycleStakeAsset), resp["cycle"])
}

func TestRunStakeCycleIdle(t *testing.T) {
	orch := &fakeOrchestrator{stakeErr: domain.ErrNothingToHarvest}
	h, _ := newHarvestHandler(orch)

	rec := httptest.NewRecorder()
	h.RunStakeCycle(rec, httptest.NewRequest(http.MethodPost, "/api/harvest/stake", nil))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRunRewardCycleNoPending(t *testing.T) {
	orch := &fakeOrchestrator{rewardErr: domain.ErrNoPendingRewards}
	h, _ := newHarvestHandler(orch)

	rec := httptest.NewRecorder()
	h.RunRewardCycle(rec, httptest.NewRequest(http.MethodPost, "/api/harvest/reward", nil))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetRatios(t *testing.T) {
	orch := &fakeOrchestrator{ratios: domain.SplitRatios{
		StakeAsset:  domain.MustFraction(300_000_000_000_000_000),
		RewardAsset: domain.MustFraction(700_000_000_000_000_000),
		UpdatedAt:   time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}}
	h, _ := newHarvestHandler(orch)

	rec := httptest.NewRecorder()
	h.GetRatios(rec, httptest.NewRequest(http.MethodGet, "/api/ratios", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "300000000000000000", resp["ratio_stake"])
	assert.Equal(t, "700000000000000000", resp["ratio_reward"])
	assert.Equal(t, "2026-08-30T10:00:00Z", resp["updated_at"])
}

func TestUpdateRatios(t *testing.T) {
	orch := &fakeOrchestrator{}
	h, governor := newHarvestHandler(orch)

	body := `{"ratio_stake":"250000000000000000","ratio_reward":"1000000000000000000"}`
	rec := httptest.NewRecorder()
	h.UpdateRatios(rec, httptest.NewRequest(http.MethodPut, "/api/ratios", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, governor, orch.lastBy)
	assert.Equal(t, "250000000000000000", orch.lastStake.String())
	assert.True(t, orch.lastReward.IsOne())
}

func TestUpdateRatiosRejectsOutOfRange(t *testing.T) {
	orch := &fakeOrchestrator{}
	h, _ := newHarvestHandler(orch)

	body := `{"ratio_stake":"1000000000000000001","ratio_reward":"0"}`
	rec := httptest.NewRecorder()
	h.UpdateRatios(rec, httptest.NewRequest(http.MethodPut, "/api/ratios", strings.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExitToTreasury(t *testing.T) {
	orch := &fakeOrchestrator{}
	h, governor := newHarvestHandler(orch)

	rec := httptest.NewRecorder()
	h.ExitToTreasury(rec, httptest.NewRequest(http.MethodPost, "/api/exit", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, governor, orch.lastBy)
	assert.Equal(t, 1, orch.exits)
}

func TestExitToTreasuryNothingToExit(t *testing.T) {
	orch := &fakeOrchestrator{exitErr: domain.ErrNothingToExit}
	h, _ := newHarvestHandler(orch)

	rec := httptest.NewRecorder()
	h.ExitToTreasury(rec, httptest.NewRequest(http.MethodPost, "/api/exit", nil))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListHarvestsWithoutHistory(t *testing.T) {
	h, _ := newHarvestHandler(&fakeOrchestrator{})

	rec := httptest.NewRecorder()
	h.ListHarvests(rec, httptest.NewRequest(http.MethodGet, "/api/harvests", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}
