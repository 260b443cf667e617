package domain

import "time"

// PositionType categorizes a Position for risk-bucket and drift
// computations (§3, §4.5).
type PositionType string

const (
	PositionYieldFarming PositionType = "yield_farming"
	PositionLending      PositionType = "lending"
	PositionLP           PositionType = "lp"
	PositionStaking      PositionType = "staking"
	PositionArbitrage    PositionType = "arbitrage"
	PositionDCA          PositionType = "dca"
)

// Position is owned by a UserPortfolio (§3).
type Position struct {
	ID                string
	Chain             ChainId
	Protocol          Protocol
	Type              PositionType
	ValueUSD          float64
	InitialInvestment float64
	PendingRewards    float64
	CurrentAPY        float64
	RiskScore         int // 1..=10
	LastCompoundTime  *time.Time
	TotalCompounded   float64
	Anomaly           bool   // set when a handler could not complete an atomic multi-leg action cleanly (§4.2 Arbitrage)
	AnomalyReason     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PnL is value + pending − initial (§3).
func (p Position) PnL() float64 {
	return p.ValueUSD + p.PendingRewards - p.InitialInvestment
}

// UserPortfolio is exclusively owned by the portfolio store (C6); strategy
// components reference it only by UserID, never by pointer (§3 ownership
// rule: cross-component references are by id).
type UserPortfolio struct {
	UserID              string
	Positions           map[string]Position // keyed by Position.ID
	TargetAllocation    map[string]float64  // category key -> target percentage
	AutoCompoundEnabled bool
	RiskTolerance       RiskTolerance
	PreferredChains     []ChainId
	UpdatedAt           time.Time
}

// RiskTolerance drives target-allocation generation in the rebalancing
// engine (§4.5).
type RiskTolerance string

const (
	ToleranceConservative RiskTolerance = "conservative"
	ToleranceModerate     RiskTolerance = "moderate"
	ToleranceAggressive   RiskTolerance = "aggressive"
	ToleranceCustom       RiskTolerance = "custom"
)

// TotalValueUSD sums all position values (the portfolio's TVL).
func (p UserPortfolio) TotalValueUSD() float64 {
	total := 0.0
	for _, pos := range p.Positions {
		total += pos.ValueUSD
	}
	return total
}

// SignatureKey is an opaque handle; the private key never exists in this
// process. Derivation path is deterministic over (app-prefix, chain, user).
type SignatureKey struct {
	KeyName        string
	DerivationPath string
}

// DerivationPath builds the deterministic path described in §3.
func DerivationPath(appPrefix string, chain ChainId, userID string) string {
	return appPrefix + "/" + string(chain) + "/" + userID
}
