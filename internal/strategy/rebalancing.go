package strategy

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/internal/protocoladapter"
	"github.com/flowforge/strategy-engine/internal/rebalance"
)

// RebalancingHandler only acts when drift vs target_allocation reaches
// rebalance_threshold_percentage, then delegates plan generation and
// application to C7 (§4.2).
type RebalancingHandler struct{}

func (RebalancingHandler) Handle(ctx context.Context, deps *Deps, strat domain.ActiveStrategy, opp domain.Opportunity, now time.Time) (domain.StrategyExecutionResult, error) {
	p := deps.Portfolio.Get(strat.UserID)

	strategyConfig := rebalance.Strategy{Kind: rebalance.StrategyThreshold, ThresholdPercent: strat.Config.RebalanceThresholdPercent}
	plan, err := rebalance.GeneratePlan(p, strategyConfig, rebalance.Limits{})
	if err != nil {
		return domain.StrategyExecutionResult{}, domain.NewError(domain.ErrPolicyRejected, "RebalancingHandler.Handle", err)
	}

	result := newResult(strat, opp, domain.ActionRebalance, 0, now)
	if len(plan.Actions) == 0 {
		result.Success = true
		result.ErrorMessage = "drift below threshold"
		return result, nil
	}

	exec := chainExecutor{deps: deps, userID: strat.UserID, defaultChain: opp.Chain, defaultProtocol: opp.Protocol}
	results := rebalance.Apply(ctx, zap.NewNop(), deps.Portfolio, strat.UserID, plan, exec)

	amount := 0.0
	gas := 0.0
	allSucceeded := true
	for _, r := range results {
		amount += r.Action.AmountUSD
		gas += r.GasCostUSD
		if !r.Success {
			allSucceeded = false
		}
	}

	result.AmountUSD = amount
	result.GasCostUSD = gas
	result.Success = allSucceeded
	if !allSucceeded {
		result.ErrorMessage = "one or more rebalancing actions failed; applied best-effort"
	}
	return result, nil
}

// chainExecutor adapts rebalance.ActionPlan into the build-sign-broadcast
// pipeline every on-chain action goes through, taking the acting chain
// from the first "|"-separated field of the category selector when it
// names a chain with a registered adapter and falling back to the
// triggering opportunity's chain otherwise (as for the synthetic
// "target"/"diversify" selectors). The protocol is always the triggering
// opportunity's.
type chainExecutor struct {
	deps            *Deps
	userID          string
	defaultChain    domain.ChainId
	defaultProtocol domain.Protocol
}

func (e chainExecutor) Execute(ctx context.Context, action rebalance.ActionPlan) (float64, float64, error) {
	chain, protocol := e.resolve(action.From)
	spec := protocoladapter.ActionSpec{Action: "swap", TokenIn: action.From, TokenOut: action.To, AmountUSD: action.AmountUSD}

	ref, err := submitAction(ctx, e.deps, e.userID, chain, protocol, spec)
	if err != nil {
		return 0, 0, err
	}
	_ = ref

	return estimatedSlippageForAmount(action.AmountUSD), estimatedGasForAmount(action.AmountUSD), nil
}

func (e chainExecutor) resolve(selector string) (domain.ChainId, domain.Protocol) {
	parts := strings.SplitN(selector, "|", 2)
	if len(parts) > 0 && parts[0] != "" {
		if chain := domain.ChainId(parts[0]); e.deps.Adapters[chain] != nil {
			return chain, e.defaultProtocol
		}
	}
	return e.defaultChain, e.defaultProtocol
}

func estimatedSlippageForAmount(amountUSD float64) float64 {
	return 0.1 + amountUSD*0.00002
}

func estimatedGasForAmount(amountUSD float64) float64 {
	return 5.0 + amountUSD*0.0005
}
