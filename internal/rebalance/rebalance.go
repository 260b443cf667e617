// Package rebalance implements the rebalancing engine (§4.5, C7): plan
// generation from drift against a target allocation, and best-effort
// sequential plan execution with slippage/gas accounting. The
// category-drift comparison is grounded on
// internal/wallet/multichain/multichain_manager.go's calculateRiskMetrics
// (largest-share-vs-total percentage math), generalized from a single
// concentration score to a full current-vs-target allocation diff across
// every category.
package rebalance

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/internal/portfolio"
)

// StrategyKind discriminates the RebalancingStrategy union (§4.5).
type StrategyKind string

const (
	StrategyThreshold StrategyKind = "threshold"
	StrategyPeriodic  StrategyKind = "periodic"
	StrategyManual    StrategyKind = "manual"
	StrategyDynamic   StrategyKind = "dynamic"
)

// Strategy selects when a category's drift triggers a rebalancing action.
// Threshold fires only past ThresholdPercent drift; Periodic and Dynamic
// emit an action for every category whose drift is non-zero (§4.5 step 3).
type Strategy struct {
	Kind             StrategyKind
	ThresholdPercent float64 // meaningful for StrategyThreshold only
	PeriodHours      int     // meaningful for StrategyPeriodic only
}

// ActionPlan is one proposed rebalancing move (§4.5 step 3/4).
type ActionPlan struct {
	From     string // category key, or position id for risk-driven actions
	To       string
	AmountUSD float64
	Priority float64 // drift/10 clamped to [0,1], or 0.9 for risk-driven
}

// Plan is the full proposed rebalance: ordered actions plus the
// estimated cost that was checked against MaxCostUSD.
type Plan struct {
	Actions        []ActionPlan
	EstimatedCostUSD float64
}

// Limits bounds plan generation and rejection (§4.5 steps 4/5).
type Limits struct {
	MaxSinglePositionPercentage float64
	MaxCostUSD                  float64
}

// targetAllocation derives a target percentage for each category key from
// risk_tolerance (§4.5 step 2). Conservative favors low-risk buckets,
// Aggressive favors high-risk; Moderate is the even split; Custom defers
// entirely to the portfolio's own TargetAllocation map.
func targetAllocation(p domain.UserPortfolio, categories map[string]float64) map[string]float64 {
	if p.RiskTolerance == domain.ToleranceCustom && len(p.TargetAllocation) > 0 {
		return p.TargetAllocation
	}

	weights := riskBucketWeights(p.RiskTolerance)
	target := make(map[string]float64, len(categories))

	bucketTotals := make(map[string]int)
	for key := range categories {
		bucketTotals[bucketOf(key)]++
	}

	for key := range categories {
		bucket := bucketOf(key)
		count := bucketTotals[bucket]
		if count == 0 {
			continue
		}
		target[key] = weights[bucket] / float64(count)
	}
	return target
}

// riskBucketWeights returns the percentage each risk bucket should hold
// in total, per RiskTolerance (§4.5 step 2).
func riskBucketWeights(tolerance domain.RiskTolerance) map[string]float64 {
	switch tolerance {
	case domain.ToleranceConservative:
		return map[string]float64{"low": 70, "medium": 25, "high": 5}
	case domain.ToleranceAggressive:
		return map[string]float64{"low": 10, "medium": 30, "high": 60}
	default: // Moderate
		return map[string]float64{"low": 40, "medium": 40, "high": 20}
	}
}

// bucketOf extracts the risk-bucket suffix from a "chain|protocol|bucket"
// category key produced by portfolio.Summarize.
func bucketOf(categoryKey string) string {
	for i := len(categoryKey) - 1; i >= 0; i-- {
		if categoryKey[i] == '|' {
			return categoryKey[i+1:]
		}
	}
	return categoryKey
}

// GeneratePlan implements §4.5 steps 1-5: compute current vs target
// allocation, emit drift and risk-driven actions, estimate cost and
// reject if it exceeds MaxCostUSD.
func GeneratePlan(p domain.UserPortfolio, strategy Strategy, limits Limits) (Plan, error) {
	summary := portfolio.Summarize(p)
	if summary.TotalValueUSD <= 0 {
		return Plan{}, nil
	}

	current := summary.CategoryAllocation
	target := targetAllocation(p, current)

	var actions []ActionPlan
	for key, currentPct := range current {
		targetPct := target[key]
		drift := currentPct - targetPct
		absDrift := drift
		if absDrift < 0 {
			absDrift = -absDrift
		}

		fires := strategy.Kind == StrategyPeriodic || strategy.Kind == StrategyDynamic
		if strategy.Kind == StrategyThreshold && absDrift >= strategy.ThresholdPercent {
			fires = true
		}
		if !fires || absDrift < 1e-9 {
			continue
		}

		amount := absDrift / 100 * summary.TotalValueUSD
		priority := clamp01(absDrift / 10)
		if drift > 0 {
			actions = append(actions, ActionPlan{From: key, To: "target", AmountUSD: amount, Priority: priority})
		} else {
			actions = append(actions, ActionPlan{From: "target", To: key, AmountUSD: amount, Priority: priority})
		}
	}

	if limits.MaxSinglePositionPercentage > 0 {
		for _, pos := range p.Positions {
			share := pos.ValueUSD / summary.TotalValueUSD * 100
			if share > limits.MaxSinglePositionPercentage {
				actions = append(actions, ActionPlan{
					From:      pos.ID,
					To:        "diversify",
					AmountUSD: (share - limits.MaxSinglePositionPercentage) / 100 * summary.TotalValueUSD,
					Priority:  0.9,
				})
			}
		}
	}

	sort.Slice(actions, func(i, j int) bool { return actions[i].Priority > actions[j].Priority })

	estimatedCost := estimateTotalCost(actions)
	if limits.MaxCostUSD > 0 && estimatedCost > limits.MaxCostUSD {
		return Plan{}, errCostExceedsLimit
	}

	return Plan{Actions: actions, EstimatedCostUSD: estimatedCost}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var (
	chainBaseCostUSD     = decimal.NewFromFloat(5.0)
	volumeCostFactor     = decimal.NewFromFloat(0.0005) // cost scales with portfolio size
	chainBaseSlippagePct = decimal.NewFromFloat(0.1)
	amountSlippageFactor = decimal.NewFromFloat(0.00002) // slippage scales with action size
)

// estimateTotalCost implements §4.5 step 5's "chain base + volume x
// portfolio-size factor" cost model summed over every action. The
// per-action terms are accumulated in decimal.Decimal to avoid float
// summation drift across a long action list; only the final total
// crosses back to float64, the domain's numeric contract (§4.4).
func estimateTotalCost(actions []ActionPlan) float64 {
	total := decimal.Zero
	for _, a := range actions {
		amount := decimal.NewFromFloat(a.AmountUSD)
		total = total.Add(chainBaseCostUSD).Add(amount.Mul(volumeCostFactor))
	}
	f, _ := total.Float64()
	return f
}

// estimatedSlippagePercent is the "chain-base x amount factor" slippage
// model (§4.5 step 5), applied per action at execution time.
func estimatedSlippagePercent(amountUSD float64) float64 {
	amount := decimal.NewFromFloat(amountUSD)
	result := chainBaseSlippagePct.Add(amount.Mul(amountSlippageFactor))
	f, _ := result.Float64()
	return f
}
