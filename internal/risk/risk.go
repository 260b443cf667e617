// Package risk implements the pre-execution and post-execution contracts
// of the risk engine (§4.4). Both paths are total — they always return a
// decision and never panic, mirroring the teacher's risk-check style of
// returning a reason string rather than erroring out of band.
package risk

import (
	"math"
	"time"

	"github.com/flowforge/strategy-engine/internal/domain"
)

// Reason enumerates the pre-execution rejection reasons (§4.4).
type Reason string

const (
	ReasonCapitalExceedsSingleStrategy Reason = "capital_exceeds_single_strategy"
	ReasonDailyLossLimitHit            Reason = "daily_loss_limit_hit"
	ReasonTotalExposureTooHigh         Reason = "total_exposure_too_high"
	ReasonRiskScoreTooHigh             Reason = "risk_score_too_high"
	ReasonEmergencyStop                Reason = "emergency_stop"
	ReasonConcurrentStrategyCap        Reason = "concurrent_strategy_cap"
)

// Decision is the pre-execution check's total result: either approved, or
// rejected with exactly one Reason.
type Decision struct {
	Approved bool
	Reason   Reason
}

func approved() Decision       { return Decision{Approved: true} }
func rejected(r Reason) Decision { return Decision{Approved: false, Reason: r} }

// PortfolioView is the minimal read-only snapshot the risk engine needs
// from the portfolio store: current value and the user's other Active
// strategies' allocated capital.
type PortfolioView struct {
	ValueUSD                float64
	OtherActiveAllocatedUSD float64
	ActiveStrategyCount     int
}

// Engine implements the risk engine's pre/post-execution contracts.
type Engine struct {
	zScore95 float64 // z_{0.95} for VaR scaling, fixed per §4.4's "volatility x z_0.95 scaled by sqrt(days)"
}

// NewEngine builds a risk Engine.
func NewEngine() *Engine {
	return &Engine{zScore95: 1.645}
}

// CheckPreExecution implements §4.4's pre-execution contract: effective
// limits = min(global, user, strategy); checks run in this order and the
// first violated reason is returned: emergency stop, single-strategy
// allocation, daily loss, total exposure, risk score, concurrency.
// Percentage limits are in percent (5 means 5%).
func (e *Engine) CheckPreExecution(
	strategy domain.ActiveStrategy,
	proposedCapitalUSD float64,
	effective domain.RiskLimits,
	ledger domain.DailyExecutionLedger,
	portfolio PortfolioView,
) Decision {
	if effective.EmergencyStop {
		return rejected(ReasonEmergencyStop)
	}
	if effective.MaxSingleStrategyAllocation > 0 && proposedCapitalUSD > effective.MaxSingleStrategyAllocation {
		return rejected(ReasonCapitalExceedsSingleStrategy)
	}
	if effective.MaxDailyLossPercentage > 0 && portfolio.ValueUSD > 0 {
		dailyLossPercent := ledger.LossUSD / portfolio.ValueUSD * 100
		if dailyLossPercent > effective.MaxDailyLossPercentage {
			return rejected(ReasonDailyLossLimitHit)
		}
	}
	if effective.MaxTotalExposurePercentage > 0 && portfolio.ValueUSD > 0 {
		totalExposure := portfolio.OtherActiveAllocatedUSD + proposedCapitalUSD
		if totalExposure > effective.MaxTotalExposurePercentage/100*portfolio.ValueUSD {
			return rejected(ReasonTotalExposureTooHigh)
		}
	}
	if effective.MaxStrategyRiskScore > 0 && strategy.Config.RiskLevel > effective.MaxStrategyRiskScore {
		return rejected(ReasonRiskScoreTooHigh)
	}
	if effective.MaxConcurrentStrategies > 0 && portfolio.ActiveStrategyCount > effective.MaxConcurrentStrategies {
		return rejected(ReasonConcurrentStrategyCap)
	}
	return approved()
}

// PostExecutionInput is the rolling return series the post-execution
// assessment consumes.
type PostExecutionInput struct {
	DailyReturnsPercent []float64 // most-recent-last
	StopLossPercentage  float64
}

// Assessment is the updated risk posture plus whether the strategy must
// auto-transition to Paused.
type Assessment struct {
	Metrics      domain.RiskMetrics
	ShouldPause  bool
}

// AssessPostExecution updates VaR-1d/30d, max-drawdown and a Sharpe-like
// ratio from the strategy's daily return series, and flags auto-pause if
// rolling drawdown breaches stop_loss_percentage (§4.4: "auto-transitions
// to Paused, not Stopped").
func (e *Engine) AssessPostExecution(in PostExecutionInput, now time.Time) Assessment {
	mean, stddev := meanStddev(in.DailyReturnsPercent)
	drawdown := maxDrawdown(in.DailyReturnsPercent)

	metrics := domain.RiskMetrics{
		VaR1Day:        stddev * e.zScore95,
		VaR30Day:       stddev * e.zScore95 * math.Sqrt(30),
		MaxDrawdown:    drawdown,
		SharpeLike:     sharpeLike(mean, stddev),
		LastAssessedAt: now,
	}

	shouldPause := in.StopLossPercentage > 0 && drawdown >= in.StopLossPercentage
	return Assessment{Metrics: metrics, ShouldPause: shouldPause}
}

func meanStddev(returns []float64) (mean, stddev float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean = sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	return mean, math.Sqrt(variance)
}

func sharpeLike(mean, stddev float64) float64 {
	if stddev == 0 {
		return 0
	}
	return mean / stddev
}

// maxDrawdown computes the largest peak-to-trough decline over the
// cumulative return series implied by returns.
func maxDrawdown(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	cumulative := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range returns {
		cumulative *= 1 + r/100
		if cumulative > peak {
			peak = cumulative
		}
		if peak > 0 {
			dd := (peak - cumulative) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
