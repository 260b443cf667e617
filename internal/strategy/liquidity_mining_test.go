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

func liquidityMiningOpportunity(chain domain.ChainId, protocol domain.Protocol, now time.Time) domain.Opportunity {
	return domain.Opportunity{
		ID:   "opp-lp",
		Type: domain.OpportunityLiquidityMining,
		LiquidityMining: &domain.LiquidityMiningPayload{APR: 20, Pool: "eth-usdc"},
		Chain:                    chain,
		Protocol:                 protocol,
		ExpectedReturnPercentage: 20,
		RiskScore:                4,
		LiquidityScore:           70,
		DiscoveredAt:             now,
		ExpiresAt:                now.Add(time.Hour),
	}
}

func TestLiquidityMiningHandlerSuppliesAndStakes(t *testing.T) {
	now := time.Now()
	chain, protocol := domain.ChainEthereum, domain.ProtocolUniswapV3
	store := portfolio.NewStore()
	deps := testDeps(chain, protocol, store, &fakeAdapter{chain: chain})

	strat := baseActiveStrategy("s1", "user-1", 150, now)
	opp := liquidityMiningOpportunity(chain, protocol, now)

	result, err := LiquidityMiningHandler{}.Handle(context.Background(), deps, strat, opp, now)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.ChainTxs, 2) // supply + stake, no harvest

	pos := store.Get("user-1").Positions["s1"]
	assert.Equal(t, domain.PositionLP, pos.Type)
	assert.Equal(t, 150.0, pos.ValueUSD)
}

func TestLiquidityMiningHandlerHarvestsAccumulatedRewards(t *testing.T) {
	now := time.Now()
	chain, protocol := domain.ChainEthereum, domain.ProtocolUniswapV3
	store := portfolio.NewStore()
	deps := testDeps(chain, protocol, store, &fakeAdapter{chain: chain})

	store.UpsertPosition("user-1", domain.Position{ID: "s1", Chain: chain, Protocol: protocol, Type: domain.PositionLP, PendingRewards: 25})

	strat := baseActiveStrategy("s1", "user-1", 150, now)
	opp := liquidityMiningOpportunity(chain, protocol, now)

	result, err := LiquidityMiningHandler{}.Handle(context.Background(), deps, strat, opp, now)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.ChainTxs, 3) // supply + stake + harvest

	pos := store.Get("user-1").Positions["s1"]
	assert.Equal(t, 0.0, pos.PendingRewards)
	assert.Equal(t, 25.0, pos.TotalCompounded)
}

func TestLiquidityMiningHandlerFailsWhenStakeLegFails(t *testing.T) {
	now := time.Now()
	chain, protocol := domain.ChainEthereum, domain.ProtocolUniswapV3
	store := portfolio.NewStore()
	adapter := &failOnNthBroadcastAdapter{fakeAdapter: fakeAdapter{chain: chain}, failOnCall: 2}
	deps := testDeps(chain, protocol, store, adapter)

	strat := baseActiveStrategy("s1", "user-1", 150, now)
	opp := liquidityMiningOpportunity(chain, protocol, now)

	result, err := LiquidityMiningHandler{}.Handle(context.Background(), deps, strat, opp, now)
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Len(t, result.ChainTxs, 1) // only the supply leg committed
}
