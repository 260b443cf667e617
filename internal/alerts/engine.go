package alerts

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/domain"
)

// priceWindow is how far back an observation is still considered "fresh"
// for the median aggregation (§4.6: "over the last-minute window").
const priceWindow = time.Minute

// PriceFeed is the external price-observation collaborator (contract
// only, per §6's "external collaborators are contracts, no transport
// ships here" framing, mirrored from chainadapter.SignerClient).
type PriceFeed interface {
	Observe(ctx context.Context, symbol string, now time.Time) ([]domain.TokenPrice, error)
}

// MarketConditions supplies the pre-condition inputs an AlertAction checks
// before firing: current volatility for a symbol, and the prevailing gas
// regime for a chain.
type MarketConditions interface {
	Volatility(ctx context.Context, symbol string) (float64, error)
	GasRegime(ctx context.Context, chain domain.ChainId) (domain.GasRegime, error)
}

// StrategyInvoker dispatches a triggered AlertAction into the strategy
// execution engine (C8), per §4.6: "call C8 with a synthetic Opportunity
// matching the action's strategy_type". Satisfied by
// (*internal/strategy.Engine).ExecuteSynthetic.
type StrategyInvoker interface {
	ExecuteSynthetic(ctx context.Context, userID string, action domain.AlertAction, amountUSD float64, now time.Time) (domain.StrategyExecutionResult, error)
}

// DailyCapitalTracker reports how much of a user's daily alert-triggered
// capital budget remains, so the "daily-capital remaining" pre-condition
// (§4.6) can be checked without the alert engine owning ledger state
// itself.
type DailyCapitalTracker interface {
	RemainingUSD(userID string, now time.Time) float64
}

// TriggerResult is one alert's outcome from a single evaluation pass.
type TriggerResult struct {
	AlertID string
	Fired   bool
	Actions []domain.StrategyExecutionResult
	Skipped []string // one reason per skipped action, in Alert.Actions order
}

// Engine implements the C10 contract: evaluate(now) against every armed
// alert, firing declared actions through C8 once their pre-conditions
// clear.
type Engine struct {
	logger  *zap.Logger
	store   *Store
	prices  PriceFeed
	market  MarketConditions
	invoker StrategyInvoker
	ledger  DailyCapitalTracker
}

// NewEngine wires the price-alert trigger engine's collaborators.
func NewEngine(logger *zap.Logger, store *Store, prices PriceFeed, market MarketConditions, invoker StrategyInvoker, ledger DailyCapitalTracker) *Engine {
	return &Engine{logger: logger, store: store, prices: prices, market: market, invoker: invoker, ledger: ledger}
}

// Evaluate runs one pass over every armed or cooling alert (§4.6's state
// machine): expire/transition as needed, evaluate the condition against
// the aggregated price, and fire actions whose pre-conditions clear.
func (e *Engine) Evaluate(ctx context.Context, now time.Time) []TriggerResult {
	var results []TriggerResult
	for _, alert := range e.store.Armed() {
		if alert.Expired(now) {
			alert.State = domain.AlertExpired
			e.store.Put(alert)
			continue
		}

		if alert.State == domain.AlertCooling {
			if !alert.CooldownElapsed(now) {
				continue
			}
			alert.State = domain.AlertArmed
			e.store.Put(alert)
		}

		current, ok := e.aggregatedPrice(ctx, alert.Symbol, now)
		if !ok {
			continue
		}
		if !alert.Condition.Evaluate(current) {
			continue
		}

		result := e.fire(ctx, alert, now)
		results = append(results, result)
	}
	return results
}

// aggregatedPrice implements §4.6's "latest TokenPrice (aggregated from
// >=1 source, preferring oldest-seen median over the last-minute
// window)": observations older than priceWindow are dropped, survivors
// are taken at their median by price, ties broken toward the
// earlier-observed entry.
func (e *Engine) aggregatedPrice(ctx context.Context, symbol string, now time.Time) (float64, bool) {
	observations, err := e.prices.Observe(ctx, symbol, now)
	if err != nil {
		e.logger.Warn("price feed observation failed", zap.String("symbol", symbol), zap.Error(err))
		return 0, false
	}

	var fresh []domain.TokenPrice
	for _, o := range observations {
		if now.Sub(o.ObservedAt) <= priceWindow {
			fresh = append(fresh, o)
		}
	}
	if len(fresh) == 0 {
		return 0, false
	}

	sort.Slice(fresh, func(i, j int) bool {
		if fresh[i].Price != fresh[j].Price {
			return fresh[i].Price < fresh[j].Price
		}
		return fresh[i].ObservedAt.Before(fresh[j].ObservedAt)
	})
	mid := (len(fresh) - 1) / 2
	return fresh[mid].Price, true
}

// fire attempts every declared action whose pre-conditions clear, then
// transitions the alert to Cooling (or Exhausted once its trigger budget
// is spent).
func (e *Engine) fire(ctx context.Context, alert domain.Alert, now time.Time) TriggerResult {
	result := TriggerResult{AlertID: alert.ID}

	for _, action := range alert.Actions {
		reason, ok := e.checkPreConditions(ctx, alert.UserID, alert.Symbol, action, now)
		if !ok {
			result.Skipped = append(result.Skipped, reason)
			continue
		}

		execResult, err := e.invoker.ExecuteSynthetic(ctx, alert.UserID, action, action.AmountUSD, now)
		if err != nil {
			e.logger.Warn("alert-triggered action failed", zap.String("alert_id", alert.ID), zap.Error(err))
		}
		result.Fired = true
		result.Actions = append(result.Actions, execResult)
	}

	alert.TriggeredCount++
	nowCopy := now
	alert.LastTriggeredAt = &nowCopy
	if alert.Exhausted() {
		alert.State = domain.AlertExhausted
	} else {
		alert.State = domain.AlertCooling
	}
	e.store.Put(alert)

	return result
}

func (e *Engine) checkPreConditions(ctx context.Context, userID, symbol string, action domain.AlertAction, now time.Time) (string, bool) {
	if action.MaxVolatility > 0 {
		vol, err := e.market.Volatility(ctx, symbol)
		if err == nil && vol > action.MaxVolatility {
			return "volatility exceeds cap", false
		}
	}
	if action.MaxGasRegime != "" {
		regime, err := e.market.GasRegime(ctx, action.Chain)
		if err == nil && regime == domain.GasRegimeExtreme && action.MaxGasRegime != domain.GasRegimeExtreme {
			return "gas regime is extreme", false
		}
	}
	if action.DailyCapitalCapUSD > 0 && e.ledger != nil {
		if e.ledger.RemainingUSD(userID, now) < action.AmountUSD {
			return "daily capital budget exhausted", false
		}
	}
	return "", true
}
