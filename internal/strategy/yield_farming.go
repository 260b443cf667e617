package strategy

import (
	"context"
	"time"

	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/internal/protocoladapter"
)

// harvestThresholdUSD is the minimum pending-reward value a harvest call
// must clear — below this the gas cost likely exceeds the reward.
const harvestThresholdUSD = 10.0

// harvestGasRatioCap bounds gas_cost / pending_rewards for a harvest to
// be worth submitting.
const harvestGasRatioCap = 0.3

// YieldFarmingHandler deposits into a pool and opportunistically
// harvests pending rewards (§4.2).
type YieldFarmingHandler struct{}

func (YieldFarmingHandler) Handle(ctx context.Context, deps *Deps, strat domain.ActiveStrategy, opp domain.Opportunity, now time.Time) (domain.StrategyExecutionResult, error) {
	if opp.YieldFarming == nil {
		return domain.StrategyExecutionResult{}, domain.NewError(domain.ErrValidation, "YieldFarmingHandler.Handle", errOpportunityExpired)
	}

	estimatedIL := estimateImpermanentLoss(opp)
	if strat.Config.MaxImpermanentLossPercent > 0 && estimatedIL > strat.Config.MaxImpermanentLossPercent {
		return domain.StrategyExecutionResult{}, domain.NewError(domain.ErrPolicyRejected, "YieldFarmingHandler.Handle", errImpermanentLossBreach)
	}

	result := newResult(strat, opp, domain.ActionDeposit, strat.AllocatedCapital, now)
	start := time.Now()

	spec := protocoladapter.ActionSpec{Action: "supply", TokenIn: opp.YieldFarming.Pool, AmountUSD: strat.AllocatedCapital}
	ref, err := submitAction(ctx, deps, strat.UserID, opp.Chain, opp.Protocol, spec)
	if err != nil {
		result.Success = false
		result.ErrorMessage = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}
	result.ChainTxs = append(result.ChainTxs, ref)

	position := deps.Portfolio.Get(strat.UserID)
	pos, existing := position.Positions[strat.ID]
	if !existing {
		pos = domain.Position{ID: strat.ID, Chain: opp.Chain, Protocol: opp.Protocol, Type: domain.PositionYieldFarming, CreatedAt: now}
	}
	pendingRewards := pos.PendingRewards

	harvested := false
	if pendingRewards >= harvestThresholdUSD {
		estimatedGasRatio := opp.EstimatedGasCostUSD / pendingRewards
		if estimatedGasRatio <= harvestGasRatioCap {
			harvestSpec := protocoladapter.ActionSpec{Action: "claim", TokenIn: opp.YieldFarming.Pool}
			harvestRef, hErr := submitAction(ctx, deps, strat.UserID, opp.Chain, opp.Protocol, harvestSpec)
			if hErr == nil {
				result.ChainTxs = append(result.ChainTxs, harvestRef)
				result.GasCostUSD += opp.EstimatedGasCostUSD
				pos.TotalCompounded += pendingRewards
				pos.PendingRewards = 0
				nowCopy := now
				pos.LastCompoundTime = &nowCopy
				harvested = true
			}
		}
	}

	pos.ValueUSD += strat.AllocatedCapital
	pos.InitialInvestment += strat.AllocatedCapital
	pos.CurrentAPY = opp.YieldFarming.APY
	pos.RiskScore = int(opp.RiskScore)
	pos.UpdatedAt = now
	deps.Portfolio.UpsertPosition(strat.UserID, pos)

	if harvested {
		result.Action = domain.ActionHarvest
	}
	result.Success = true
	result.ExpectedReturnUSD = strat.AllocatedCapital * opp.YieldFarming.APY / 100
	result.Duration = time.Since(start)
	return result, nil
}

// estimateImpermanentLoss is a coarse IL estimate driven by the
// opportunity's own risk_score — higher-risk pools are modeled as
// proportionally more exposed to divergence loss.
func estimateImpermanentLoss(opp domain.Opportunity) float64 {
	return opp.RiskScore * 0.5
}
