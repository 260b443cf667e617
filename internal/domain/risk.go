package domain

// RiskLimits is defined per-scope (global / per-user / per-strategy); the
// effective limit used by a check is the min over applicable scopes (§4.4).
type RiskLimits struct {
	MaxSingleStrategyAllocation float64
	MaxStrategyRiskScore        int
	MaxDailyLossPercentage      float64
	MaxTotalExposurePercentage  float64
	MaxConcurrentStrategies     int
	EmergencyStop               bool
}

// minFloat returns the smaller of a, b, treating a non-positive "unset"
// value (0) as "no limit" so callers can omit a scope's override.
func minFloat(a, b float64) float64 {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

// Effective computes min(global, user, strategy) per field (§4.4 step 1).
// A zero-value override scope means "not set", falling back to the
// narrower of the remaining scopes.
func Effective(global, user, strategy RiskLimits) RiskLimits {
	emergency := global.EmergencyStop || user.EmergencyStop || strategy.EmergencyStop
	return RiskLimits{
		MaxSingleStrategyAllocation: minFloat(minFloat(global.MaxSingleStrategyAllocation, user.MaxSingleStrategyAllocation), strategy.MaxSingleStrategyAllocation),
		MaxStrategyRiskScore:        minInt(minInt(global.MaxStrategyRiskScore, user.MaxStrategyRiskScore), strategy.MaxStrategyRiskScore),
		MaxDailyLossPercentage:      minFloat(minFloat(global.MaxDailyLossPercentage, user.MaxDailyLossPercentage), strategy.MaxDailyLossPercentage),
		MaxTotalExposurePercentage:  minFloat(minFloat(global.MaxTotalExposurePercentage, user.MaxTotalExposurePercentage), strategy.MaxTotalExposurePercentage),
		MaxConcurrentStrategies:     minInt(minInt(global.MaxConcurrentStrategies, user.MaxConcurrentStrategies), strategy.MaxConcurrentStrategies),
		EmergencyStop:               emergency,
	}
}

// DailyExecutionLedger tracks (user, day) → execution totals, reset at UTC
// day rollover (§3). Incremented only on execution commit.
type DailyExecutionLedger struct {
	UserID         string
	Day            string // YYYY-MM-DD, UTC
	CapitalDeployed float64
	Executions     int
	Successes      int
	Failures       int
	LossUSD        float64
}

// RecordExecution increments the ledger on commit of one execution result.
func (l *DailyExecutionLedger) RecordExecution(amountUSD float64, success bool, lossUSD float64) {
	l.CapitalDeployed += amountUSD
	l.Executions++
	if success {
		l.Successes++
	} else {
		l.Failures++
	}
	l.LossUSD += lossUSD
}
