package rebalance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/strategy-engine/internal/domain"
)

func twoChainPortfolio() domain.UserPortfolio {
	return domain.UserPortfolio{
		UserID:        "user-1",
		RiskTolerance: domain.ToleranceModerate,
		Positions: map[string]domain.Position{
			"eth-pos": {ID: "eth-pos", Chain: domain.ChainEthereum, Protocol: domain.ProtocolAave, ValueUSD: 7000, RiskScore: 5},
			"arb-pos": {ID: "arb-pos", Chain: domain.ChainArbitrum, Protocol: domain.ProtocolAave, ValueUSD: 3000, RiskScore: 5},
		},
	}
}

func TestGeneratePlanThresholdStrategyEmitsDriftAction(t *testing.T) {
	p := twoChainPortfolio()
	strategy := Strategy{Kind: StrategyThreshold, ThresholdPercent: 5}

	plan, err := GeneratePlan(p, strategy, Limits{})
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Actions)
	for _, a := range plan.Actions {
		assert.GreaterOrEqual(t, a.Priority, 0.0)
		assert.LessOrEqual(t, a.Priority, 1.0)
	}
}

func TestGeneratePlanManualStrategyEmitsNoDriftActions(t *testing.T) {
	p := twoChainPortfolio()
	strategy := Strategy{Kind: StrategyManual}

	plan, err := GeneratePlan(p, strategy, Limits{})
	require.NoError(t, err)
	assert.Empty(t, plan.Actions)
}

func TestGeneratePlanEmitsRiskDrivenActionForOverConcentratedPosition(t *testing.T) {
	p := domain.UserPortfolio{
		UserID: "user-1",
		Positions: map[string]domain.Position{
			"whale": {ID: "whale", Chain: domain.ChainEthereum, Protocol: domain.ProtocolAave, ValueUSD: 9500, RiskScore: 5},
			"small": {ID: "small", Chain: domain.ChainArbitrum, Protocol: domain.ProtocolAave, ValueUSD: 500, RiskScore: 5},
		},
	}
	strategy := Strategy{Kind: StrategyManual}
	limits := Limits{MaxSinglePositionPercentage: 50}

	plan, err := GeneratePlan(p, strategy, limits)
	require.NoError(t, err)
	require.NotEmpty(t, plan.Actions)

	found := false
	for _, a := range plan.Actions {
		if a.From == "whale" && a.Priority == 0.9 {
			found = true
		}
	}
	assert.True(t, found)
}

func TestGeneratePlanRejectsWhenEstimatedCostExceedsMax(t *testing.T) {
	p := twoChainPortfolio()
	strategy := Strategy{Kind: StrategyPeriodic}
	limits := Limits{MaxCostUSD: 0.01}

	_, err := GeneratePlan(p, strategy, limits)
	assert.ErrorIs(t, err, errCostExceedsLimit)
}

func TestGeneratePlanEmptyPortfolioReturnsEmptyPlan(t *testing.T) {
	plan, err := GeneratePlan(domain.UserPortfolio{UserID: "empty"}, Strategy{Kind: StrategyPeriodic}, Limits{})
	require.NoError(t, err)
	assert.Empty(t, plan.Actions)
}
