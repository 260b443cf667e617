package strategy

import (
	"context"
	"math"
	"time"

	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/internal/protocoladapter"
)

// DCAHandler executes a fixed-size buy of target_token, optionally
// gated on price proximity to the trailing average (§4.2). DCA consumes
// synthetic opportunities generated internally (§4.3); the synthesizer
// carries the current price's deviation from the trailing average in
// ExpectedReturnPercentage, which this handler reads as a signed percent
// deviation rather than a return estimate.
type DCAHandler struct{}

func (DCAHandler) Handle(ctx context.Context, deps *Deps, strat domain.ActiveStrategy, opp domain.Opportunity, now time.Time) (domain.StrategyExecutionResult, error) {
	if strat.Config.PriceThresholdPercent > 0 && math.Abs(opp.ExpectedReturnPercentage) > strat.Config.PriceThresholdPercent {
		result := newResult(strat, opp, domain.ActionNoOp, 0, now)
		result.Success = true
		result.ErrorMessage = "price outside price_threshold_percentage of trailing average"
		return result, nil
	}

	amount := strat.Config.AmountPerExecution
	result := newResult(strat, opp, domain.ActionSwap, amount, now)
	start := time.Now()

	spec := protocoladapter.ActionSpec{Action: "swap", TokenIn: "USD", TokenOut: strat.Config.TargetToken, AmountUSD: amount}
	ref, err := submitAction(ctx, deps, strat.UserID, opp.Chain, opp.Protocol, spec)
	if err != nil {
		result.Success = false
		result.ErrorMessage = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}
	result.ChainTxs = append(result.ChainTxs, ref)

	p := deps.Portfolio.Get(strat.UserID)
	pos, ok := p.Positions[strat.ID]
	if !ok {
		pos = domain.Position{ID: strat.ID, Chain: opp.Chain, Protocol: opp.Protocol, Type: domain.PositionDCA, CreatedAt: now}
	}
	pos.ValueUSD += amount
	pos.InitialInvestment += amount
	pos.UpdatedAt = now
	deps.Portfolio.UpsertPosition(strat.UserID, pos)

	result.Success = true
	result.Duration = time.Since(start)
	return result, nil
}
