package domain

import "time"

// OpportunityType is a tagged variant over the payload shapes an
// opportunity can carry (§3). Exactly one of the typed payload fields below
// is meaningful for a given Type.
type OpportunityType string

const (
	OpportunityYieldFarming    OpportunityType = "yield_farming"
	OpportunityArbitrage       OpportunityType = "arbitrage"
	OpportunityLiquidityMining OpportunityType = "liquidity_mining"
	OpportunityRebalancing     OpportunityType = "rebalancing"
)

// YieldFarmingPayload is the Type==OpportunityYieldFarming payload.
type YieldFarmingPayload struct {
	APY          float64
	RewardTokens []string
	Pool         string
}

// ArbitragePayload is the Type==OpportunityArbitrage payload.
type ArbitragePayload struct {
	ProfitPercent float64
	Pair          string
	DexPair       [2]string // [buy_exchange, sell_exchange]
}

// LiquidityMiningPayload is the Type==OpportunityLiquidityMining payload.
type LiquidityMiningPayload struct {
	APR          float64
	RewardTokens []string
	Pool         string
}

// RebalancingPayload is the Type==OpportunityRebalancing payload; it is
// synthesized internally by the rebalancing handler, never sourced
// externally (§4.3).
type RebalancingPayload struct {
	Current map[string]float64
	Target  map[string]float64
}

// Opportunity is ephemeral: never persisted across restarts (§3).
type Opportunity struct {
	ID                        string
	Type                      OpportunityType
	YieldFarming              *YieldFarmingPayload
	Arbitrage                 *ArbitragePayload
	LiquidityMining           *LiquidityMiningPayload
	Rebalancing               *RebalancingPayload
	Chain                     ChainId
	Protocol                  Protocol
	ExpectedReturnPercentage  float64
	RiskScore                 float64
	EstimatedGasCostUSD       float64
	LiquidityScore            float64
	DiscoveredAt              time.Time
	ExpiresAt                 time.Time
}

// Validate enforces the §3 invariant expires_at > discovered_at.
func (o Opportunity) Validate() error {
	if !o.ExpiresAt.After(o.DiscoveredAt) {
		return NewError(ErrValidation, "Opportunity.Validate", errOpportunityWindow)
	}
	return nil
}

// Expired reports whether the opportunity's window has closed at now.
func (o Opportunity) Expired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}

// CompatibleWith implements the strategy-type × opportunity-type
// compatibility table of §4.3. DCA and Composite consume synthetic
// opportunities generated internally and never require an external match,
// so they report compatible with any type here; the handlers themselves
// never call the scanner for a match.
func (t StrategyType) CompatibleWith(o OpportunityType) bool {
	switch t {
	case StrategyYieldFarming:
		return o == OpportunityYieldFarming
	case StrategyArbitrage:
		return o == OpportunityArbitrage
	case StrategyLiquidityMining:
		return o == OpportunityLiquidityMining
	case StrategyRebalancing:
		return o == OpportunityRebalancing
	case StrategyDCA, StrategyComposite:
		return true
	default:
		return false
	}
}

// TieBreakScore implements §4.2's tie-break ordering: max
// expected_return_percentage / (1 + risk_score/10).
func (o Opportunity) TieBreakScore() float64 {
	return o.ExpectedReturnPercentage / (1 + o.RiskScore/10)
}
