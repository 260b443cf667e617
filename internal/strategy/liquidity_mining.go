package strategy

import (
	"context"
	"time"

	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/internal/protocoladapter"
)

// LiquidityMiningHandler provisions LP and stakes it in the reward
// contract, auto-harvesting when eligible (§4.2) — the same
// stake-then-harvest shape as YieldFarmingHandler, but always stakes
// (never conditionally skips based on IL) since LP reward-contract
// positions are modeled as the protocol's own risk surface.
type LiquidityMiningHandler struct{}

func (LiquidityMiningHandler) Handle(ctx context.Context, deps *Deps, strat domain.ActiveStrategy, opp domain.Opportunity, now time.Time) (domain.StrategyExecutionResult, error) {
	if opp.LiquidityMining == nil {
		return domain.StrategyExecutionResult{}, domain.NewError(domain.ErrValidation, "LiquidityMiningHandler.Handle", errOpportunityExpired)
	}

	result := newResult(strat, opp, domain.ActionDeposit, strat.AllocatedCapital, now)
	start := time.Now()

	lpSpec := protocoladapter.ActionSpec{Action: "supply", TokenIn: opp.LiquidityMining.Pool, AmountUSD: strat.AllocatedCapital}
	lpRef, err := submitAction(ctx, deps, strat.UserID, opp.Chain, opp.Protocol, lpSpec)
	if err != nil {
		result.Success = false
		result.ErrorMessage = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}
	result.ChainTxs = append(result.ChainTxs, lpRef)

	stakeSpec := protocoladapter.ActionSpec{Action: "stake", TokenIn: opp.LiquidityMining.Pool, AmountUSD: strat.AllocatedCapital}
	stakeRef, err := submitAction(ctx, deps, strat.UserID, opp.Chain, opp.Protocol, stakeSpec)
	if err != nil {
		result.Success = false
		result.ErrorMessage = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}
	result.ChainTxs = append(result.ChainTxs, stakeRef)

	pos := deps.Portfolio.Get(strat.UserID).Positions[strat.ID]
	pos.ID = strat.ID
	pos.Chain = opp.Chain
	pos.Protocol = opp.Protocol
	pos.Type = domain.PositionLP
	pos.ValueUSD += strat.AllocatedCapital
	pos.InitialInvestment += strat.AllocatedCapital
	pos.CurrentAPY = opp.LiquidityMining.APR
	pos.RiskScore = int(opp.RiskScore)
	if pos.CreatedAt.IsZero() {
		pos.CreatedAt = now
	}
	pos.UpdatedAt = now

	if pos.PendingRewards >= harvestThresholdUSD {
		harvestSpec := protocoladapter.ActionSpec{Action: "claim", TokenIn: opp.LiquidityMining.Pool}
		if harvestRef, hErr := submitAction(ctx, deps, strat.UserID, opp.Chain, opp.Protocol, harvestSpec); hErr == nil {
			result.ChainTxs = append(result.ChainTxs, harvestRef)
			pos.TotalCompounded += pos.PendingRewards
			pos.PendingRewards = 0
			nowCopy := now
			pos.LastCompoundTime = &nowCopy
		}
	}
	deps.Portfolio.UpsertPosition(strat.UserID, pos)

	result.Success = true
	result.ExpectedReturnUSD = strat.AllocatedCapital * opp.LiquidityMining.APR / 100
	result.Duration = time.Since(start)
	return result, nil
}
