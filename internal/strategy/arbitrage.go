package strategy

import (
	"context"
	"time"

	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/internal/protocoladapter"
)

// ArbitrageHandler executes a two-leg buy-then-sell within
// max_execution_time_seconds (§4.2). It never drops funds silently: a
// failed sell leg leaves the buy leg recorded as an open, anomaly-flagged
// position rather than losing track of the capital.
type ArbitrageHandler struct{}

func (ArbitrageHandler) Handle(ctx context.Context, deps *Deps, strat domain.ActiveStrategy, opp domain.Opportunity, now time.Time) (domain.StrategyExecutionResult, error) {
	if opp.Arbitrage == nil {
		return domain.StrategyExecutionResult{}, domain.NewError(domain.ErrValidation, "ArbitrageHandler.Handle", errOpportunityExpired)
	}

	result := newResult(strat, opp, domain.ActionSwap, strat.AllocatedCapital, now)
	start := time.Now()

	buySpec := protocoladapter.ActionSpec{Action: "swap", TokenIn: "USD", TokenOut: opp.Arbitrage.Pair, AmountUSD: strat.AllocatedCapital}
	buyRef, err := submitAction(ctx, deps, strat.UserID, opp.Chain, opp.Protocol, buySpec)
	if err != nil {
		result.Success = false
		result.ErrorMessage = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}
	result.ChainTxs = append(result.ChainTxs, buyRef)

	deadline := opp.DiscoveredAt.Add(time.Duration(strat.Config.MaxExecutionTimeSeconds) * time.Second)
	if !now.Before(opp.ExpiresAt) || now.After(deadline) {
		openBuyLegAsAnomaly(deps, strat, opp, "opportunity expired before sell leg")
		result.Success = false
		result.ErrorMessage = errOpportunityExpired.Error()
		result.Duration = time.Since(start)
		return result, domain.NewError(domain.ErrOpportunityExpired, "ArbitrageHandler.Handle", errOpportunityExpired)
	}

	sellSpec := protocoladapter.ActionSpec{Action: "swap", TokenIn: opp.Arbitrage.Pair, TokenOut: "USD", AmountUSD: strat.AllocatedCapital, MinOutUSD: strat.AllocatedCapital}
	sellRef, err := submitAction(ctx, deps, strat.UserID, opp.Chain, opp.Protocol, sellSpec)
	if err != nil {
		// Sell leg failed: the buy leg already committed capital on-chain.
		// Record it as an open, anomaly-flagged position instead of
		// silently losing track of the funds (§4.2).
		openBuyLegAsAnomaly(deps, strat, opp, "sell leg failed: "+err.Error())
		result.Success = false
		result.ErrorMessage = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}
	result.ChainTxs = append(result.ChainTxs, sellRef)

	result.Success = true
	result.ExpectedReturnUSD = strat.AllocatedCapital * opp.Arbitrage.ProfitPercent / 100
	result.ActualReturnUSD = result.ExpectedReturnUSD
	result.Duration = time.Since(start)
	return result, nil
}

func openBuyLegAsAnomaly(deps *Deps, strat domain.ActiveStrategy, opp domain.Opportunity, reason string) {
	pos := domain.Position{
		ID:                strat.ID + ":" + opp.ID,
		Chain:             opp.Chain,
		Protocol:          opp.Protocol,
		Type:              domain.PositionArbitrage,
		ValueUSD:          strat.AllocatedCapital,
		InitialInvestment: strat.AllocatedCapital,
		RiskScore:         int(opp.RiskScore),
		Anomaly:           true,
		AnomalyReason:     reason,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	deps.Portfolio.UpsertPosition(strat.UserID, pos)
}
