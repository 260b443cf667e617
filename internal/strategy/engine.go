// Package strategy's Engine implements the strategy execution engine
// (C8, §4.1): one cooperative pass per call to ExecuteDueStrategies over
// every strategy whose next_execution has come due. Structurally
// grounded on internal/defi/trading_bot.go's tradingLoop/executeStrategy
// dispatch shape, generalized from a single ticking bot to a full
// snapshot-approve-dispatch-reschedule pass over every user's
// strategies at once.
package strategy

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/clock"
	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/internal/portfolio"
	"github.com/flowforge/strategy-engine/internal/risk"
	"github.com/flowforge/strategy-engine/internal/scanner"
)

var errNoHandlerForStrategyType = errors.New("no handler registered for strategy type")

// RetryPolicy bounds the exponential backoff the engine applies within
// one execution attempt over retriable failure categories (§4.1 retry
// semantics: "base 2, initial retry_delay_ms, up to max_retries").
type RetryPolicy struct {
	InitialDelayMs int
	MaxRetries     int
}

// Engine drives one pass of execute_due_strategies (C8).
type Engine struct {
	logger      *zap.Logger
	clock       clock.Clock
	manager     *Manager
	coordinator *Coordinator
	scanner     *scanner.Scanner
	risk        *risk.Engine
	portfolio   *portfolio.Store
	handlers    map[domain.StrategyType]Handler
	deps        *Deps
	limits      domain.RiskLimits // global scope, passed to the risk check as-is; no per-user or per-strategy limits are applied
	retry       RetryPolicy
	metrics     *Metrics
}

// WithMetrics attaches a Metrics collector to report execution counters
// and pass durations. Optional — a nil Metrics receiver on any of its
// methods is a no-op, so the engine runs unmetered if this is never
// called.
func (e *Engine) WithMetrics(m *Metrics) *Engine {
	e.metrics = m
	return e
}

// NewEngine wires the strategy execution engine's collaborators.
func NewEngine(
	logger *zap.Logger,
	clk clock.Clock,
	manager *Manager,
	coordinator *Coordinator,
	scan *scanner.Scanner,
	riskEngine *risk.Engine,
	store *portfolio.Store,
	deps *Deps,
	globalLimits domain.RiskLimits,
	retry RetryPolicy,
) *Engine {
	return &Engine{
		logger:      logger,
		clock:       clk,
		manager:     manager,
		coordinator: coordinator,
		scanner:     scan,
		risk:        riskEngine,
		portfolio:   store,
		handlers:    Handlers(),
		deps:        deps,
		limits:      globalLimits,
		retry:       retry,
	}
}

// ExecuteDueStrategies runs one pass over every strategy due at now
// (§4.1 algorithm steps 1-5).
func (e *Engine) ExecuteDueStrategies(ctx context.Context, now time.Time) []domain.StrategyExecutionResult {
	start := e.clock.Now()
	defer func() { e.metrics.observePassDuration(e.clock.Now().Sub(start).Seconds()) }()

	dueIDs := e.manager.DueSnapshot(now)
	if len(dueIDs) == 0 {
		return nil
	}

	snapshot := make([]domain.ActiveStrategy, 0, len(dueIDs))
	for _, id := range dueIDs {
		if s, ok := e.manager.Get(id); ok {
			snapshot = append(snapshot, s)
		}
	}

	available := e.availableUSDByUser(snapshot)
	approved := e.coordinator.Approve(snapshot, available)

	opportunities, err := e.scanner.Scan(ctx, now)
	if err != nil {
		e.logger.Warn("opportunity scan failed for this pass", zap.Error(err))
	}

	var results []domain.StrategyExecutionResult
	for _, approvedStrat := range approved {
		current, ok := e.manager.Get(approvedStrat.ID)
		if !ok || current.Status != domain.StatusActive {
			continue // paused externally since the snapshot was taken
		}

		result := e.executeOne(ctx, current, opportunities, now)
		results = append(results, result)
	}

	return results
}

func (e *Engine) availableUSDByUser(snapshot []domain.ActiveStrategy) map[string]float64 {
	seen := make(map[string]bool)
	out := make(map[string]float64)
	for _, s := range snapshot {
		if seen[s.UserID] {
			continue
		}
		seen[s.UserID] = true
		summary := portfolio.Summarize(e.portfolio.Get(s.UserID))
		if summary.TotalValueUSD > 0 {
			out[s.UserID] = summary.TotalValueUSD
		}
	}
	return out
}

func (e *Engine) executeOne(ctx context.Context, strat domain.ActiveStrategy, opportunities []domain.Opportunity, now time.Time) domain.StrategyExecutionResult {
	ledger := e.manager.Ledger(strat.UserID, now)
	portfolioView := risk.PortfolioView{
		ValueUSD:                portfolio.Summarize(e.portfolio.Get(strat.UserID)).TotalValueUSD,
		OtherActiveAllocatedUSD: e.manager.TotalAllocatedForUser(strat.UserID, strat.ID),
		ActiveStrategyCount:     e.manager.ActiveCountForUser(strat.UserID),
	}

	decision := e.risk.CheckPreExecution(strat, strat.AllocatedCapital, e.limits, ledger, portfolioView)
	if !decision.Approved {
		result := newResult(strat, domain.Opportunity{}, domain.ActionNoOp, 0, now)
		result.Success = false
		result.ErrorMessage = string(decision.Reason)
		e.reschedule(strat, now)
		return result
	}

	opp, found := selectOpportunity(strat, opportunities, now)
	if !found {
		result := newResult(strat, domain.Opportunity{}, domain.ActionNoOp, 0, now)
		result.Success = true
		result.ErrorMessage = "no_opportunity"
		e.reschedule(strat, now)
		return result
	}

	handler, ok := e.handlers[strat.Config.Type]
	if !ok {
		result := newResult(strat, opp, domain.ActionNoOp, 0, now)
		result.Success = false
		result.ErrorMessage = "no handler registered for strategy type"
		e.reschedule(strat, now)
		return result
	}

	result, execErr := e.withRetry(ctx, func() (domain.StrategyExecutionResult, error) {
		return handler.Handle(ctx, e.deps, strat, opp, now)
	})

	e.commitResult(strat, result, execErr, now)
	e.reschedule(strat, now)
	return result
}

// ExecuteSynthetic dispatches action's strategy_type handler against a
// synthetic opportunity and one-off strategy shell, for the price-alert
// trigger engine's "call C8 with a synthetic Opportunity" path (§4.6) —
// it bypasses the due-strategy snapshot/coordinator entirely since an
// alert-triggered action is never part of a user's recurring schedule.
func (e *Engine) ExecuteSynthetic(ctx context.Context, userID string, action domain.AlertAction, amountUSD float64, now time.Time) (domain.StrategyExecutionResult, error) {
	handler, ok := e.handlers[action.StrategyType]
	if !ok {
		return domain.StrategyExecutionResult{}, domain.NewError(domain.ErrValidation, "Engine.ExecuteSynthetic", errNoHandlerForStrategyType)
	}

	shell := domain.ActiveStrategy{
		ID:               "alert-trigger",
		UserID:           userID,
		Status:           domain.StatusActive,
		AllocatedCapital: amountUSD,
		Config: domain.StrategyConfig{
			Type:             action.StrategyType,
			TargetChains:     []domain.ChainId{action.Chain},
			TargetProtocols:  []domain.Protocol{action.Protocol},
			MaxAllocationUSD: amountUSD,
			RiskLevel:        5,
			ExecutionIntervalMinutes: 1,
		},
	}
	opp := domain.Opportunity{
		ID:           "alert-synthetic",
		Chain:        action.Chain,
		Protocol:     action.Protocol,
		DiscoveredAt: now,
		ExpiresAt:    now.Add(time.Hour),
	}

	return e.withRetry(ctx, func() (domain.StrategyExecutionResult, error) {
		return handler.Handle(ctx, e.deps, shell, opp, now)
	})
}

// withRetry applies bounded exponential backoff (base 2, initial
// InitialDelayMs, up to MaxRetries) over retriable error categories
// only; non-retriable categories short-circuit immediately (§4.1 retry
// semantics).
func (e *Engine) withRetry(ctx context.Context, fn func() (domain.StrategyExecutionResult, error)) (domain.StrategyExecutionResult, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(e.retry.InitialDelayMs) * time.Millisecond
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0 // bounded by MaxRetries instead of wall-clock

	var (
		result domain.StrategyExecutionResult
		err    error
	)
	for attempt := 0; ; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if !domain.KindOf(err).Retriable() || attempt >= e.retry.MaxRetries {
			return result, err
		}

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			return result, err
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-e.clock.After(delay):
		}
	}
}

func (e *Engine) commitResult(strat domain.ActiveStrategy, result domain.StrategyExecutionResult, execErr error, now time.Time) {
	e.metrics.recordExecution(result.Success)

	lossUSD := 0.0
	if !result.Success {
		lossUSD = result.AmountUSD - result.ActualReturnUSD
		if lossUSD < 0 {
			lossUSD = 0
		}
	}
	e.manager.RecordExecution(strat.UserID, now, result.AmountUSD, result.Success, lossUSD)

	current, ok := e.manager.Get(strat.ID)
	if !ok {
		return
	}
	current.AppendHistory(result)
	current.Performance.TotalExecutions++
	current.Performance.TotalGasCostUSD += result.GasCostUSD
	if result.Success {
		current.Performance.SuccessfulExecutions++
		current.Performance.TotalReturnUSD += result.ActualReturnUSD
	} else {
		current.Performance.FailedExecutions++
	}

	returns := dailyReturnsPercent(current)
	stopLoss := 0.0
	if current.Config.StopLossPercentage != nil {
		stopLoss = *current.Config.StopLossPercentage
	}
	assessment := e.risk.AssessPostExecution(risk.PostExecutionInput{DailyReturnsPercent: returns, StopLossPercentage: stopLoss}, now)
	current.Risk = assessment.Metrics
	if assessment.ShouldPause {
		current.Status = domain.StatusPaused
	}
	if execErr != nil && domain.KindOf(execErr).Fatal() {
		current.Status = domain.StatusError
	}

	nowCopy := now
	current.LastExecution = &nowCopy
	e.manager.Put(current)
}

func (e *Engine) reschedule(strat domain.ActiveStrategy, now time.Time) {
	current, ok := e.manager.Get(strat.ID)
	if !ok {
		return
	}
	if current.Status != domain.StatusActive {
		return // paused/stopped/error strategies don't get a new tick
	}
	next := now.Add(time.Duration(current.Config.ExecutionIntervalMinutes) * time.Minute)
	current.NextExecution = &next
	e.manager.Put(current)
}

// dailyReturnsPercent derives a percent-return series from the
// strategy's bounded execution history, for the risk engine's
// post-execution VaR/drawdown assessment.
func dailyReturnsPercent(strat domain.ActiveStrategy) []float64 {
	out := make([]float64, 0, len(strat.ExecutionHistory))
	for _, r := range strat.ExecutionHistory {
		if r.AmountUSD <= 0 {
			continue
		}
		out = append(out, (r.ActualReturnUSD-r.GasCostUSD)/r.AmountUSD*100)
	}
	return out
}

// selectOpportunity implements §4.1 step 4c/§4.2's suitability match and
// tie-break: the opportunity with the best TieBreakScore among those
// satisfying every compatibility/threshold condition, ties broken by
// earliest DiscoveredAt then lexicographic id.
func selectOpportunity(strat domain.ActiveStrategy, opportunities []domain.Opportunity, now time.Time) (domain.Opportunity, bool) {
	var candidates []domain.Opportunity
	for _, o := range opportunities {
		if !strat.Config.Type.CompatibleWith(o.Type) {
			continue
		}
		if !containsChain(strat.Config.TargetChains, o.Chain) {
			continue
		}
		if !containsProtocol(strat.Config.TargetProtocols, o.Protocol) {
			continue
		}
		if o.ExpectedReturnPercentage < strat.Config.MinReturnThreshold {
			continue
		}
		if o.RiskScore > float64(strat.Config.RiskLevel) {
			continue
		}
		if !o.ExpiresAt.After(now) {
			continue
		}
		candidates = append(candidates, o)
	}

	if strat.Config.Type == domain.StrategyDCA || strat.Config.Type == domain.StrategyComposite {
		if len(candidates) == 0 {
			return domain.Opportunity{Chain: firstOrEmpty(strat.Config.TargetChains), Protocol: firstOrEmptyProtocol(strat.Config.TargetProtocols), DiscoveredAt: now, ExpiresAt: now.Add(time.Hour)}, true
		}
	}

	if len(candidates) == 0 {
		return domain.Opportunity{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		si, sj := candidates[i].TieBreakScore(), candidates[j].TieBreakScore()
		if math.Abs(si-sj) > 1e-9 {
			return si > sj
		}
		if !candidates[i].DiscoveredAt.Equal(candidates[j].DiscoveredAt) {
			return candidates[i].DiscoveredAt.Before(candidates[j].DiscoveredAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0], true
}

func containsChain(chains []domain.ChainId, c domain.ChainId) bool {
	for _, v := range chains {
		if v == c {
			return true
		}
	}
	return false
}

func containsProtocol(protocols []domain.Protocol, p domain.Protocol) bool {
	for _, v := range protocols {
		if v == p {
			return true
		}
	}
	return false
}

func firstOrEmpty(chains []domain.ChainId) domain.ChainId {
	if len(chains) == 0 {
		return ""
	}
	return chains[0]
}

func firstOrEmptyProtocol(protocols []domain.Protocol) domain.Protocol {
	if len(protocols) == 0 {
		return ""
	}
	return protocols[0]
}
