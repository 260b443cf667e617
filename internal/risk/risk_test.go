package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowforge/strategy-engine/internal/domain"
)

func baseStrategy() domain.ActiveStrategy {
	return domain.ActiveStrategy{
		Config: domain.StrategyConfig{RiskLevel: 5, MaxAllocationUSD: 10000},
	}
}

func TestCheckPreExecutionEmergencyStopRejectsFirst(t *testing.T) {
	e := NewEngine()
	limits := domain.RiskLimits{EmergencyStop: true, MaxSingleStrategyAllocation: 100000}
	d := e.CheckPreExecution(baseStrategy(), 10, limits, domain.DailyExecutionLedger{}, PortfolioView{ValueUSD: 1000})
	assert.False(t, d.Approved)
	assert.Equal(t, ReasonEmergencyStop, d.Reason)
}

func TestCheckPreExecutionCapitalExceedsSingleStrategy(t *testing.T) {
	e := NewEngine()
	limits := domain.RiskLimits{MaxSingleStrategyAllocation: 500}
	d := e.CheckPreExecution(baseStrategy(), 1000, limits, domain.DailyExecutionLedger{}, PortfolioView{ValueUSD: 10000})
	assert.False(t, d.Approved)
	assert.Equal(t, ReasonCapitalExceedsSingleStrategy, d.Reason)
}

func TestCheckPreExecutionDailyLossLimitHit(t *testing.T) {
	e := NewEngine()
	limits := domain.RiskLimits{MaxDailyLossPercentage: 5}
	ledger := domain.DailyExecutionLedger{LossUSD: 600}
	d := e.CheckPreExecution(baseStrategy(), 10, limits, ledger, PortfolioView{ValueUSD: 10000})
	assert.False(t, d.Approved)
	assert.Equal(t, ReasonDailyLossLimitHit, d.Reason)
}

func TestCheckPreExecutionTotalExposureTooHigh(t *testing.T) {
	e := NewEngine()
	limits := domain.RiskLimits{MaxTotalExposurePercentage: 50}
	portfolio := PortfolioView{ValueUSD: 10000, OtherActiveAllocatedUSD: 4900}
	d := e.CheckPreExecution(baseStrategy(), 200, limits, domain.DailyExecutionLedger{}, portfolio)
	assert.False(t, d.Approved)
	assert.Equal(t, ReasonTotalExposureTooHigh, d.Reason)
}

func TestCheckPreExecutionRiskScoreTooHigh(t *testing.T) {
	e := NewEngine()
	limits := domain.RiskLimits{MaxStrategyRiskScore: 3}
	d := e.CheckPreExecution(baseStrategy(), 10, limits, domain.DailyExecutionLedger{}, PortfolioView{ValueUSD: 10000})
	assert.False(t, d.Approved)
	assert.Equal(t, ReasonRiskScoreTooHigh, d.Reason)
}

func TestCheckPreExecutionConcurrentStrategyCapRejectsAboveLimit(t *testing.T) {
	e := NewEngine()
	limits := domain.RiskLimits{MaxConcurrentStrategies: 3}
	portfolio := PortfolioView{ValueUSD: 10000, ActiveStrategyCount: 4}
	d := e.CheckPreExecution(baseStrategy(), 10, limits, domain.DailyExecutionLedger{}, portfolio)
	assert.False(t, d.Approved)
	assert.Equal(t, ReasonConcurrentStrategyCap, d.Reason)
}

func TestCheckPreExecutionConcurrentStrategyCapApprovesAtLimit(t *testing.T) {
	e := NewEngine()
	limits := domain.RiskLimits{MaxConcurrentStrategies: 3}
	portfolio := PortfolioView{ValueUSD: 10000, ActiveStrategyCount: 3}
	d := e.CheckPreExecution(baseStrategy(), 10, limits, domain.DailyExecutionLedger{}, portfolio)
	assert.True(t, d.Approved, "a user sitting exactly at their concurrency cap may still start another strategy")
}

func TestCheckPreExecutionApprovesWithinAllLimits(t *testing.T) {
	e := NewEngine()
	limits := domain.RiskLimits{
		MaxSingleStrategyAllocation: 1000,
		MaxDailyLossPercentage:      10,
		MaxTotalExposurePercentage:  50,
		MaxStrategyRiskScore:        8,
		MaxConcurrentStrategies:     10,
	}
	portfolio := PortfolioView{ValueUSD: 10000, OtherActiveAllocatedUSD: 1000, ActiveStrategyCount: 2}
	d := e.CheckPreExecution(baseStrategy(), 500, limits, domain.DailyExecutionLedger{}, portfolio)
	assert.True(t, d.Approved)
}

func TestAssessPostExecutionFlagsPauseOnDrawdownBreach(t *testing.T) {
	e := NewEngine()
	in := PostExecutionInput{
		DailyReturnsPercent: []float64{5, -20, -10},
		StopLossPercentage:  15,
	}
	assessment := e.AssessPostExecution(in, time.Now())
	assert.True(t, assessment.ShouldPause)
	assert.Greater(t, assessment.Metrics.MaxDrawdown, 15.0)
}

func TestAssessPostExecutionNoPauseWithinTolerance(t *testing.T) {
	e := NewEngine()
	in := PostExecutionInput{
		DailyReturnsPercent: []float64{1, 2, -1, 1},
		StopLossPercentage:  50,
	}
	assessment := e.AssessPostExecution(in, time.Now())
	assert.False(t, assessment.ShouldPause)
}
