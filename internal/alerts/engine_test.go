package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/domain"
)

type fakePriceFeed struct {
	observations map[string][]domain.TokenPrice
}

func (f *fakePriceFeed) Observe(ctx context.Context, symbol string, now time.Time) ([]domain.TokenPrice, error) {
	return f.observations[symbol], nil
}

type fakeMarketConditions struct {
	volatility    float64
	volatilityBy  map[string]float64
	lastVolSymbol string
	regime        domain.GasRegime
}

func (f *fakeMarketConditions) Volatility(ctx context.Context, symbol string) (float64, error) {
	f.lastVolSymbol = symbol
	if v, ok := f.volatilityBy[symbol]; ok {
		return v, nil
	}
	return f.volatility, nil
}

func (f *fakeMarketConditions) GasRegime(ctx context.Context, chain domain.ChainId) (domain.GasRegime, error) {
	return f.regime, nil
}

type fakeInvoker struct {
	calls   int
	results []domain.StrategyExecutionResult
}

func (f *fakeInvoker) ExecuteSynthetic(ctx context.Context, userID string, action domain.AlertAction, amountUSD float64, now time.Time) (domain.StrategyExecutionResult, error) {
	f.calls++
	result := domain.StrategyExecutionResult{Success: true, AmountUSD: amountUSD}
	f.results = append(f.results, result)
	return result, nil
}

type fakeLedger struct {
	remaining float64
}

func (f *fakeLedger) RemainingUSD(userID string, now time.Time) float64 {
	return f.remaining
}

func newTestEngine(store *Store, feed PriceFeed, market MarketConditions, invoker StrategyInvoker, ledger DailyCapitalTracker) *Engine {
	return NewEngine(zap.NewNop(), store, feed, market, invoker, ledger)
}

func TestEvaluateFiresWhenConditionSatisfiedAndInvokesStrategy(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore()
	store.Create(domain.Alert{
		ID:     "a1",
		UserID: "u1",
		Symbol: "ETH",
		Condition: domain.AlertCondition{
			Kind:  domain.ConditionAbove,
			Price: 3000,
		},
		Actions: []domain.AlertAction{
			{StrategyType: domain.StrategyDCA, Chain: domain.ChainEthereum, Protocol: "uniswap", AmountUSD: 50},
		},
		Cooldown: time.Hour,
	})

	feed := &fakePriceFeed{observations: map[string][]domain.TokenPrice{
		"ETH": {{Symbol: "ETH", Price: 3100, ObservedAt: now.Add(-10 * time.Second)}},
	}}
	invoker := &fakeInvoker{}
	engine := newTestEngine(store, feed, &fakeMarketConditions{regime: domain.GasRegimeNormal}, invoker, nil)

	results := engine.Evaluate(context.Background(), now)

	require.Len(t, results, 1)
	assert.True(t, results[0].Fired)
	assert.Equal(t, 1, invoker.calls)

	got, ok := store.Get("a1")
	require.True(t, ok)
	assert.Equal(t, domain.AlertCooling, got.State)
	assert.Equal(t, 1, got.TriggeredCount)
	require.NotNil(t, got.LastTriggeredAt)
	assert.Equal(t, now, *got.LastTriggeredAt)
}

func TestEvaluateSkipsWhenConditionNotSatisfied(t *testing.T) {
	now := time.Now()
	store := NewStore()
	store.Create(domain.Alert{
		ID:     "a1",
		Symbol: "ETH",
		Condition: domain.AlertCondition{
			Kind:  domain.ConditionAbove,
			Price: 5000,
		},
	})

	feed := &fakePriceFeed{observations: map[string][]domain.TokenPrice{
		"ETH": {{Symbol: "ETH", Price: 3100, ObservedAt: now}},
	}}
	invoker := &fakeInvoker{}
	engine := newTestEngine(store, feed, &fakeMarketConditions{}, invoker, nil)

	results := engine.Evaluate(context.Background(), now)

	assert.Empty(t, results)
	assert.Equal(t, 0, invoker.calls)
}

func TestEvaluateIgnoresStalePriceObservationsOutsideWindow(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore()
	store.Create(domain.Alert{
		ID:     "a1",
		Symbol: "ETH",
		Condition: domain.AlertCondition{
			Kind:  domain.ConditionAbove,
			Price: 3000,
		},
	})

	feed := &fakePriceFeed{observations: map[string][]domain.TokenPrice{
		"ETH": {{Symbol: "ETH", Price: 9000, ObservedAt: now.Add(-10 * time.Minute)}},
	}}
	invoker := &fakeInvoker{}
	engine := newTestEngine(store, feed, &fakeMarketConditions{}, invoker, nil)

	results := engine.Evaluate(context.Background(), now)

	assert.Empty(t, results)
	assert.Equal(t, 0, invoker.calls)
}

func TestEvaluateExpiresAlertPastExpiry(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	store := NewStore()
	store.Create(domain.Alert{ID: "a1", Symbol: "ETH", ExpiresAt: &past})

	engine := newTestEngine(store, &fakePriceFeed{}, &fakeMarketConditions{}, &fakeInvoker{}, nil)
	engine.Evaluate(context.Background(), now)

	got, ok := store.Get("a1")
	require.True(t, ok)
	assert.Equal(t, domain.AlertExpired, got.State)
}

func TestEvaluateRespectsCooldownBeforeRearming(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	lastTriggered := now.Add(-30 * time.Second)
	store := NewStore()
	store.Create(domain.Alert{
		ID:              "a1",
		Symbol:          "ETH",
		State:           domain.AlertCooling,
		Cooldown:        time.Minute,
		LastTriggeredAt: &lastTriggered,
		Condition:       domain.AlertCondition{Kind: domain.ConditionAbove, Price: 100},
	})

	feed := &fakePriceFeed{observations: map[string][]domain.TokenPrice{
		"ETH": {{Symbol: "ETH", Price: 200, ObservedAt: now}},
	}}
	invoker := &fakeInvoker{}
	engine := newTestEngine(store, feed, &fakeMarketConditions{}, invoker, nil)

	engine.Evaluate(context.Background(), now)

	assert.Equal(t, 0, invoker.calls)
	got, _ := store.Get("a1")
	assert.Equal(t, domain.AlertCooling, got.State)
}

func TestEvaluateTransitionsToExhaustedWhenTriggerBudgetSpent(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore()
	store.Create(domain.Alert{
		ID:          "a1",
		Symbol:      "ETH",
		Condition:   domain.AlertCondition{Kind: domain.ConditionAbove, Price: 100},
		MaxTriggers: 1,
	})

	feed := &fakePriceFeed{observations: map[string][]domain.TokenPrice{
		"ETH": {{Symbol: "ETH", Price: 200, ObservedAt: now}},
	}}
	engine := newTestEngine(store, feed, &fakeMarketConditions{}, &fakeInvoker{}, nil)

	engine.Evaluate(context.Background(), now)

	got, _ := store.Get("a1")
	assert.Equal(t, domain.AlertExhausted, got.State)
}

func TestEvaluateSkipsActionWhenGasRegimeExtreme(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore()
	store.Create(domain.Alert{
		ID:        "a1",
		Symbol:    "ETH",
		Condition: domain.AlertCondition{Kind: domain.ConditionAbove, Price: 100},
		Actions: []domain.AlertAction{
			{StrategyType: domain.StrategyDCA, Chain: domain.ChainEthereum, AmountUSD: 50, MaxGasRegime: domain.GasRegimeNormal},
		},
	})

	feed := &fakePriceFeed{observations: map[string][]domain.TokenPrice{
		"ETH": {{Symbol: "ETH", Price: 200, ObservedAt: now}},
	}}
	invoker := &fakeInvoker{}
	engine := newTestEngine(store, feed, &fakeMarketConditions{regime: domain.GasRegimeExtreme}, invoker, nil)

	results := engine.Evaluate(context.Background(), now)

	require.Len(t, results, 1)
	assert.False(t, results[0].Fired)
	assert.Equal(t, []string{"gas regime is extreme"}, results[0].Skipped)
	assert.Equal(t, 0, invoker.calls)
}

func TestEvaluateSkipsActionWhenDailyCapitalBudgetExhausted(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore()
	store.Create(domain.Alert{
		ID:        "a1",
		UserID:    "u1",
		Symbol:    "ETH",
		Condition: domain.AlertCondition{Kind: domain.ConditionAbove, Price: 100},
		Actions: []domain.AlertAction{
			{StrategyType: domain.StrategyDCA, Chain: domain.ChainEthereum, AmountUSD: 500, DailyCapitalCapUSD: 1000},
		},
	})

	feed := &fakePriceFeed{observations: map[string][]domain.TokenPrice{
		"ETH": {{Symbol: "ETH", Price: 200, ObservedAt: now}},
	}}
	invoker := &fakeInvoker{}
	ledger := &fakeLedger{remaining: 100}
	engine := newTestEngine(store, feed, &fakeMarketConditions{}, invoker, ledger)

	results := engine.Evaluate(context.Background(), now)

	require.Len(t, results, 1)
	assert.False(t, results[0].Fired)
	assert.Equal(t, 0, invoker.calls)
}

func TestEvaluateChecksVolatilityAgainstAlertSymbolNotActionChain(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore()
	store.Create(domain.Alert{
		ID:        "a1",
		UserID:    "u1",
		Symbol:    "ETH",
		Condition: domain.AlertCondition{Kind: domain.ConditionAbove, Price: 100},
		Actions: []domain.AlertAction{
			{StrategyType: domain.StrategyDCA, Chain: domain.ChainEthereum, AmountUSD: 50, MaxVolatility: 0.1},
		},
	})

	feed := &fakePriceFeed{observations: map[string][]domain.TokenPrice{
		"ETH": {{Symbol: "ETH", Price: 200, ObservedAt: now}},
	}}
	invoker := &fakeInvoker{}
	// The chain identifier ("ethereum") would report high volatility; the
	// traded symbol ("ETH") reports low volatility. If the engine mistakenly
	// keyed the lookup by chain, this action would be skipped.
	market := &fakeMarketConditions{volatilityBy: map[string]float64{
		"ETH":      0.05,
		"ethereum": 0.9,
	}}
	engine := newTestEngine(store, feed, market, invoker, nil)

	results := engine.Evaluate(context.Background(), now)

	require.Len(t, results, 1)
	assert.True(t, results[0].Fired)
	assert.Equal(t, 1, invoker.calls)
	assert.Equal(t, "ETH", market.lastVolSymbol)
}

func TestAggregatedPriceTakesMedianPreferringOlderOnTies(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	engine := newTestEngine(NewStore(), nil, nil, nil, nil)

	fresh := []domain.TokenPrice{
		{Price: 100, ObservedAt: now.Add(-5 * time.Second)},
		{Price: 100, ObservedAt: now.Add(-50 * time.Second)},
		{Price: 105, ObservedAt: now.Add(-2 * time.Second)},
	}
	engine.prices = &fakePriceFeed{observations: map[string][]domain.TokenPrice{"ETH": fresh}}

	price, ok := engine.aggregatedPrice(context.Background(), "ETH", now)
	require.True(t, ok)
	assert.Equal(t, 100.0, price)
}
