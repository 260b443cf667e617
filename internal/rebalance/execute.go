package rebalance

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/internal/portfolio"
)

var errCostExceedsLimit = errors.New("estimated rebalancing cost exceeds max_cost")

// ActionResult is the outcome of executing one ActionPlan (§4.5 plan
// execution): actual slippage and gas cost observed on-chain.
type ActionResult struct {
	Action         ActionPlan
	Success        bool
	ActualSlippage float64 // percentage, e.g. 0.2 == 0.2%
	GasCostUSD     float64
	Err            error
}

// Executor applies a rebalancing action against a real adapter/protocol
// path. Production wiring wraps chainadapter/protocoladapter calls;
// tests substitute a fake.
type Executor interface {
	Execute(ctx context.Context, action ActionPlan) (actualSlippagePercent, gasCostUSD float64, err error)
}

// Apply runs every action in plan sequentially by priority (already
// sorted by GeneratePlan), applying each to store's copy of the
// portfolio. A failure is recorded but does not roll back prior
// successes (§4.5: "monotonic apply... a best-effort, not a
// transaction"). Position value changes flow through store.Put so the
// invariant "Σ after = Σ before − Σ slippage − Σ gas" holds across the
// whole pass.
func Apply(ctx context.Context, logger *zap.Logger, store *portfolio.Store, userID string, plan Plan, exec Executor) []ActionResult {
	results := make([]ActionResult, 0, len(plan.Actions))

	for _, action := range plan.Actions {
		slippagePct, gasCostUSD, err := exec.Execute(ctx, action)
		if err != nil {
			logger.Warn("rebalancing action failed",
				zap.String("from", action.From), zap.String("to", action.To), zap.Error(err))
			results = append(results, ActionResult{Action: action, Success: false, Err: err})
			continue
		}

		p := store.Get(userID)
		applyValueShift(&p, action, slippagePct, gasCostUSD)
		store.Put(p)

		results = append(results, ActionResult{
			Action:         action,
			Success:        true,
			ActualSlippage: slippagePct,
			GasCostUSD:     gasCostUSD,
		})
	}

	return results
}

// applyValueShift decrements the from-side and increments the to-side by
// amount x (1 - actual_slippage), spread proportionally across the
// user's positions matching each side's category/id (§4.5 plan
// execution step).
func applyValueShift(p *domain.UserPortfolio, action ActionPlan, slippagePercent, gasCostUSD float64) {
	net := action.AmountUSD * (1 - slippagePercent/100)
	deductTotal := action.AmountUSD + gasCostUSD

	deductFromMatching(p, action.From, deductTotal)
	creditToMatching(p, action.To, net)
}

func deductFromMatching(p *domain.UserPortfolio, selector string, amount float64) {
	ids := matchingPositionIDs(p, selector)
	if len(ids) == 0 {
		return
	}
	perPosition := amount / float64(len(ids))
	for _, id := range ids {
		pos := p.Positions[id]
		pos.ValueUSD -= perPosition
		if pos.ValueUSD < 0 {
			pos.ValueUSD = 0
		}
		p.Positions[id] = pos
	}
}

func creditToMatching(p *domain.UserPortfolio, selector string, amount float64) {
	ids := matchingPositionIDs(p, selector)
	if len(ids) == 0 {
		return
	}
	perPosition := amount / float64(len(ids))
	for _, id := range ids {
		pos := p.Positions[id]
		pos.ValueUSD += perPosition
		p.Positions[id] = pos
	}
}

// matchingPositionIDs resolves a plan selector (a position id, a
// "chain|protocol|bucket" category key, or the synthetic "target"/
// "diversify" markers) to the concrete position ids it denotes.
func matchingPositionIDs(p *domain.UserPortfolio, selector string) []string {
	if selector == "target" || selector == "diversify" {
		ids := make([]string, 0, len(p.Positions))
		for id := range p.Positions {
			ids = append(ids, id)
		}
		return ids
	}
	if pos, ok := p.Positions[selector]; ok {
		return []string{pos.ID}
	}

	var ids []string
	for id, pos := range p.Positions {
		if string(pos.Chain)+"|"+string(pos.Protocol.Category())+"|"+riskBucket(pos.RiskScore) == selector {
			ids = append(ids, id)
		}
	}
	return ids
}

func riskBucket(riskScore int) string {
	switch {
	case riskScore <= 3:
		return "low"
	case riskScore <= 7:
		return "medium"
	default:
		return "high"
	}
}
