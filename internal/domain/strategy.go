package domain

import "time"

// StrategyType is the declarative behavior a strategy dispatches to (§4.2).
type StrategyType string

const (
	StrategyYieldFarming   StrategyType = "yield_farming"
	StrategyArbitrage      StrategyType = "arbitrage"
	StrategyRebalancing    StrategyType = "rebalancing"
	StrategyLiquidityMining StrategyType = "liquidity_mining"
	StrategyDCA            StrategyType = "dca"
	StrategyComposite      StrategyType = "composite"
)

// StrategyStatus is the lifecycle state of an ActiveStrategy.
type StrategyStatus string

const (
	StatusCreated StrategyStatus = "created"
	StatusActive  StrategyStatus = "active"
	StatusPaused  StrategyStatus = "paused"
	StatusStopped StrategyStatus = "stopped"
	StatusError   StrategyStatus = "error"
)

// SubStrategyConfig is one member of a Composite strategy.
type SubStrategyConfig struct {
	Config               StrategyConfig
	AllocationPercentage float64 // of the parent's allocated_capital
	Priority             int
	FailFast             bool
}

// StrategyConfig is immutable after the update_config operation replaces it
// wholesale (§3).
type StrategyConfig struct {
	Name                      string
	Description               string
	Type                      StrategyType
	TargetChains              []ChainId
	TargetProtocols           []Protocol
	RiskLevel                 int // 1..=10
	MaxAllocationUSD          float64
	MinReturnThreshold        float64
	ExecutionIntervalMinutes  int // ≥1
	GasLimitUSD               float64
	AutoCompound              bool
	StopLossPercentage        *float64
	TakeProfitPercentage      *float64
	MaxImpermanentLossPercent float64 // YieldFarming handler cap
	MaxExecutionTimeSeconds   int     // Arbitrage handler cap
	RebalanceThresholdPercent float64 // Rebalancing handler cap
	AmountPerExecution        float64 // DCA handler
	TargetToken               string  // DCA handler
	PriceThresholdPercent     float64 // DCA handler, vs trailing average
	SubStrategies             []SubStrategyConfig // Composite handler
}

// Validate applies the Validation error-kind checks of §7 that must reject
// before any side effect.
func (c StrategyConfig) Validate() error {
	switch {
	case c.Name == "":
		return NewError(ErrValidation, "StrategyConfig.Validate", errEmptyName)
	case len(c.TargetChains) == 0:
		return NewError(ErrValidation, "StrategyConfig.Validate", errEmptyChains)
	case len(c.TargetProtocols) == 0:
		return NewError(ErrValidation, "StrategyConfig.Validate", errEmptyProtocols)
	case c.MaxAllocationUSD <= 0:
		return NewError(ErrValidation, "StrategyConfig.Validate", errNonPositiveAllocation)
	case c.ExecutionIntervalMinutes < 1:
		return NewError(ErrValidation, "StrategyConfig.Validate", errIntervalTooShort)
	case c.RiskLevel < 1 || c.RiskLevel > 10:
		return NewError(ErrValidation, "StrategyConfig.Validate", errRiskLevelOutOfRange)
	}
	return nil
}

// PerformanceMetrics tracks cumulative execution outcomes for an
// ActiveStrategy, updated by the engine's post-execution step (§4.1.f).
type PerformanceMetrics struct {
	TotalExecutions      int
	SuccessfulExecutions int
	FailedExecutions     int
	TotalReturnUSD       float64
	TotalGasCostUSD      float64
}

// RiskMetrics is the rolling risk posture of a strategy, maintained by the
// risk engine's post-execution assessment (§4.4).
type RiskMetrics struct {
	VaR1Day        float64
	VaR30Day       float64
	MaxDrawdown    float64
	SharpeLike     float64
	LastAssessedAt time.Time
}

// ActiveStrategy is the durable aggregate a user owns (§3). The
// AutomatedStrategyManager (internal/strategy.Manager) exclusively owns
// instances of this type.
type ActiveStrategy struct {
	ID                string
	UserID            string
	Config            StrategyConfig
	Status            StrategyStatus
	AllocatedCapital  float64
	Performance       PerformanceMetrics
	Risk              RiskMetrics
	ExecutionHistory  []StrategyExecutionResult // bounded to HistoryLimit
	NextExecution     *time.Time
	LastExecution     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HistoryLimit bounds ActiveStrategy.ExecutionHistory (§3: "bounded
// execution_history (tail of N most-recent results)").
const HistoryLimit = 1000

// AppendHistory appends result, evicting the oldest entry once the bound is
// exceeded.
func (s *ActiveStrategy) AppendHistory(result StrategyExecutionResult) {
	s.ExecutionHistory = append(s.ExecutionHistory, result)
	if len(s.ExecutionHistory) > HistoryLimit {
		s.ExecutionHistory = s.ExecutionHistory[len(s.ExecutionHistory)-HistoryLimit:]
	}
}

// Due reports whether the strategy is eligible for an execution pass at now
// (§4.1 step 1: status=Active, allocated_capital>0, due).
func (s *ActiveStrategy) Due(now time.Time) bool {
	if s.Status != StatusActive || s.AllocatedCapital <= 0 {
		return false
	}
	if s.NextExecution == nil {
		return false
	}
	return !s.NextExecution.After(now)
}

// Invariant reports a data-model violation per §3's invariants. Callers
// treat a non-nil return as an ErrInvariant condition.
func (s *ActiveStrategy) Invariant() error {
	if s.AllocatedCapital > s.Config.MaxAllocationUSD {
		return NewError(ErrInvariant, "ActiveStrategy.Invariant", errAllocationExceedsMax)
	}
	if s.Status == StatusActive && (s.AllocatedCapital <= 0 || s.NextExecution == nil) {
		return NewError(ErrInvariant, "ActiveStrategy.Invariant", errActiveWithoutSchedule)
	}
	if len(s.ExecutionHistory) > HistoryLimit {
		return NewError(ErrInvariant, "ActiveStrategy.Invariant", errHistoryOverflow)
	}
	return nil
}
