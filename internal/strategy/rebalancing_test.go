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

func TestRebalancingHandlerNoOpBelowDrift(t *testing.T) {
	now := time.Now()
	chain, protocol := domain.ChainEthereum, domain.ProtocolUniswapV3
	store := portfolio.NewStore()
	deps := testDeps(chain, protocol, store, &fakeAdapter{chain: chain})

	store.UpsertPosition("user-1", domain.Position{ID: "p1", Chain: chain, Protocol: protocol, Type: domain.PositionYieldFarming, ValueUSD: 100, RiskScore: 5})

	strat := baseActiveStrategy("s1", "user-1", 0, now)
	strat.Config.Type = domain.StrategyRebalancing
	strat.Config.RebalanceThresholdPercent = 99 // effectively never fires with one position

	opp := domain.Opportunity{ID: "opp-reb", Chain: chain, Protocol: protocol, DiscoveredAt: now, ExpiresAt: now.Add(time.Hour)}

	result, err := RebalancingHandler{}.Handle(context.Background(), deps, strat, opp, now)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "drift below threshold", result.ErrorMessage)
}

func TestRebalancingHandlerAppliesDriftAction(t *testing.T) {
	now := time.Now()
	chain, protocol := domain.ChainEthereum, domain.ProtocolUniswapV3
	store := portfolio.NewStore()
	deps := testDeps(chain, protocol, store, &fakeAdapter{chain: chain})

	key := string(chain) + "|" + string(protocol.Category()) + "|medium"
	store.UpsertPosition("user-1", domain.Position{ID: "p1", Chain: chain, Protocol: protocol, Type: domain.PositionYieldFarming, ValueUSD: 900, RiskScore: 5})
	store.UpsertPosition("user-1", domain.Position{ID: "p2", Chain: domain.ChainArbitrum, Protocol: domain.ProtocolAave, Type: domain.PositionLending, ValueUSD: 100, RiskScore: 5})

	p := store.Get("user-1")
	p.RiskTolerance = domain.ToleranceModerate
	store.Put(p)
	_ = key

	strat := baseActiveStrategy("s1", "user-1", 0, now)
	strat.Config.Type = domain.StrategyRebalancing
	strat.Config.RebalanceThresholdPercent = 5

	opp := domain.Opportunity{ID: "opp-reb", Chain: chain, Protocol: protocol, DiscoveredAt: now, ExpiresAt: now.Add(time.Hour)}

	result, err := RebalancingHandler{}.Handle(context.Background(), deps, strat, opp, now)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionRebalance, result.Action)
	assert.True(t, result.AmountUSD > 0)
}
