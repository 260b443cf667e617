package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/internal/portfolio"
)

func TestYieldFarmingHandlerRejectsWhenImpermanentLossExceedsCap(t *testing.T) {
	now := time.Now()
	chain, protocol := domain.ChainEthereum, domain.ProtocolAave
	store := portfolio.NewStore()
	deps := testDeps(chain, protocol, store, &fakeAdapter{chain: chain})

	strat := baseActiveStrategy("s1", "user-1", 100, now)
	strat.Config.MaxImpermanentLossPercent = 1 // opp RiskScore 8 * 0.5 = 4 > 1

	opp := yieldFarmingOpportunity(chain, protocol, now)
	opp.RiskScore = 8

	result, err := YieldFarmingHandler{}.Handle(context.Background(), deps, strat, opp, now)
	require.Error(t, err)
	assert.ErrorIs(t, err, errImpermanentLossBreach)
	assert.Equal(t, domain.StrategyExecutionResult{}, result)
}

func TestYieldFarmingHandlerDepositsWithoutHarvestBelowThreshold(t *testing.T) {
	now := time.Now()
	chain, protocol := domain.ChainEthereum, domain.ProtocolAave
	store := portfolio.NewStore()
	adapter := &fakeAdapter{chain: chain}
	deps := testDeps(chain, protocol, store, adapter)

	strat := baseActiveStrategy("s1", "user-1", 100, now)
	opp := yieldFarmingOpportunity(chain, protocol, now)

	result, err := YieldFarmingHandler{}.Handle(context.Background(), deps, strat, opp, now)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, domain.ActionDeposit, result.Action)
	assert.Len(t, result.ChainTxs, 1)

	pos := store.Get("user-1").Positions["s1"]
	assert.Equal(t, 100.0, pos.ValueUSD)
}

func TestYieldFarmingHandlerHarvestsWhenPendingRewardsClearThreshold(t *testing.T) {
	now := time.Now()
	chain, protocol := domain.ChainEthereum, domain.ProtocolAave
	store := portfolio.NewStore()
	adapter := &fakeAdapter{chain: chain}
	deps := testDeps(chain, protocol, store, adapter)

	store.UpsertPosition("user-1", domain.Position{ID: "s1", Chain: chain, Protocol: protocol, Type: domain.PositionYieldFarming, PendingRewards: 50})

	strat := baseActiveStrategy("s1", "user-1", 100, now)
	opp := yieldFarmingOpportunity(chain, protocol, now)
	opp.EstimatedGasCostUSD = 5 // ratio 0.1 <= cap 0.3

	result, err := YieldFarmingHandler{}.Handle(context.Background(), deps, strat, opp, now)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, domain.ActionHarvest, result.Action)
	assert.Len(t, result.ChainTxs, 2)

	pos := store.Get("user-1").Positions["s1"]
	assert.Equal(t, 0.0, pos.PendingRewards)
	assert.Equal(t, 50.0, pos.TotalCompounded)
}
