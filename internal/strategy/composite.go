package strategy

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/strategy-engine/internal/domain"
)

// CompositeHandler iterates sub-strategies by priority, each receiving
// allocation_percentage x strategy.allocated_capital. One sub-failure
// does not abort siblings unless the sub-strategy is declared fail-fast
// (§4.2).
type CompositeHandler struct{}

func (CompositeHandler) Handle(ctx context.Context, deps *Deps, strat domain.ActiveStrategy, opp domain.Opportunity, now time.Time) (domain.StrategyExecutionResult, error) {
	subs := make([]domain.SubStrategyConfig, len(strat.Config.SubStrategies))
	copy(subs, strat.Config.SubStrategies)
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].Priority < subs[j].Priority })

	handlers := Handlers()
	result := newResult(strat, opp, domain.ActionNoOp, 0, now)
	start := time.Now()

	anyFailed := false
	for _, sub := range subs {
		handler, ok := handlers[sub.Config.Type]
		if !ok {
			anyFailed = true
			if sub.FailFast {
				break
			}
			continue
		}

		subStrat := strat
		subStrat.ID = strat.ID + ":" + uuid.New().String()
		subStrat.Config = sub.Config
		subStrat.AllocatedCapital = strat.AllocatedCapital * sub.AllocationPercentage / 100

		subResult, err := handler.Handle(ctx, deps, subStrat, opp, now)
		result.AmountUSD += subResult.AmountUSD
		result.GasCostUSD += subResult.GasCostUSD
		result.ExpectedReturnUSD += subResult.ExpectedReturnUSD
		result.ActualReturnUSD += subResult.ActualReturnUSD
		result.ChainTxs = append(result.ChainTxs, subResult.ChainTxs...)

		if err != nil {
			anyFailed = true
			if sub.FailFast {
				result.ErrorMessage = "fail-fast sub-strategy failed: " + err.Error()
				break
			}
		}
	}

	result.Success = !anyFailed
	result.Duration = time.Since(start)
	return result, nil
}
