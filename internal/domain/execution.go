package domain

import "time"

// ActionType records which side of a strategy handler produced an execution
// (useful for composite/rebalancing breakdowns in history/analytics).
type ActionType string

const (
	ActionDeposit  ActionType = "deposit"
	ActionWithdraw ActionType = "withdraw"
	ActionSwap     ActionType = "swap"
	ActionHarvest  ActionType = "harvest"
	ActionRebalance ActionType = "rebalance"
	ActionNoOp     ActionType = "no_opportunity"
)

// ChainTxRef identifies an on-chain transaction produced by an execution.
type ChainTxRef struct {
	Chain ChainId
	TxID  string
}

// StrategyExecutionResult is append-only per strategy, bounded by
// HistoryLimit on the owning ActiveStrategy (§3).
type StrategyExecutionResult struct {
	ExecutionID      string
	StrategyID       string
	UserID           string
	OpportunityID    string
	Action           ActionType
	AmountUSD        float64
	ExpectedReturnUSD float64
	ActualReturnUSD  float64
	GasCostUSD       float64
	Duration         time.Duration
	Success          bool
	ErrorMessage     string
	ChainTxs         []ChainTxRef
	ExecutedAt       time.Time
}
