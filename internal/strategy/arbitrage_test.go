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

func arbitrageOpportunity(chain domain.ChainId, protocol domain.Protocol, now time.Time) domain.Opportunity {
	return domain.Opportunity{
		ID:   "opp-arb",
		Type: domain.OpportunityArbitrage,
		Arbitrage: &domain.ArbitragePayload{ProfitPercent: 5, Pair: "ETH/USDC", DexPair: [2]string{"uniswap_v3", "sushi"}},
		Chain:                    chain,
		Protocol:                 protocol,
		ExpectedReturnPercentage: 5,
		RiskScore:                2,
		LiquidityScore:           90,
		DiscoveredAt:             now,
		ExpiresAt:                now.Add(time.Hour),
	}
}

func TestArbitrageHandlerSucceedsOnBothLegs(t *testing.T) {
	now := time.Now()
	chain, protocol := domain.ChainEthereum, domain.ProtocolUniswapV3
	store := portfolio.NewStore()
	deps := testDeps(chain, protocol, store, &fakeAdapter{chain: chain})

	strat := baseActiveStrategy("s1", "user-1", 200, now)
	strat.Config.MaxExecutionTimeSeconds = 30

	opp := arbitrageOpportunity(chain, protocol, now)

	result, err := ArbitrageHandler{}.Handle(context.Background(), deps, strat, opp, now)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.ChainTxs, 2)
	assert.Equal(t, 10.0, result.ExpectedReturnUSD)

	_, anomalous := store.Get("user-1").Positions["s1:opp-arb"]
	assert.False(t, anomalous)
}

func TestArbitrageHandlerFlagsOpenPositionWhenSellLegFails(t *testing.T) {
	now := time.Now()
	chain, protocol := domain.ChainEthereum, domain.ProtocolUniswapV3
	store := portfolio.NewStore()
	adapter := &failOnNthBroadcastAdapter{fakeAdapter: fakeAdapter{chain: chain}, failOnCall: 2}
	deps := testDeps(chain, protocol, store, adapter)

	strat := baseActiveStrategy("s1", "user-1", 200, now)
	strat.Config.MaxExecutionTimeSeconds = 30
	opp := arbitrageOpportunity(chain, protocol, now)

	result, err := ArbitrageHandler{}.Handle(context.Background(), deps, strat, opp, now)
	require.Error(t, err)
	assert.False(t, result.Success)

	pos, ok := store.Get("user-1").Positions["s1:opp-arb"]
	require.True(t, ok)
	assert.True(t, pos.Anomaly)
	assert.Contains(t, pos.AnomalyReason, "sell leg failed")
}

func TestArbitrageHandlerFlagsAnomalyWhenOpportunityExpiresBeforeSellLeg(t *testing.T) {
	now := time.Now()
	chain, protocol := domain.ChainEthereum, domain.ProtocolUniswapV3
	store := portfolio.NewStore()
	adapter := &fakeAdapter{chain: chain}
	deps := testDeps(chain, protocol, store, adapter)

	strat := baseActiveStrategy("s1", "user-1", 200, now)
	strat.Config.MaxExecutionTimeSeconds = 30

	opp := arbitrageOpportunity(chain, protocol, now)
	opp.ExpiresAt = now // already expired by the time the handler checks

	result, err := ArbitrageHandler{}.Handle(context.Background(), deps, strat, opp, now)
	require.Error(t, err)
	assert.False(t, result.Success)

	pos, ok := store.Get("user-1").Positions["s1:opp-arb"]
	require.True(t, ok)
	assert.True(t, pos.Anomaly)
}
