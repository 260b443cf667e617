package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/domain"
)

func noopLogger() *zap.Logger { return zap.NewNop() }

type fakeSource struct {
	name string
	opps []domain.Opportunity
	err  error
}

func (f fakeSource) Name() string { return f.name }
func (f fakeSource) Discover(ctx context.Context, now time.Time) ([]domain.Opportunity, error) {
	return f.opps, f.err
}

func mkOpportunity(id string, ret, risk, liquidity float64, now time.Time) domain.Opportunity {
	return domain.Opportunity{
		ID:                       id,
		Type:                     domain.OpportunityYieldFarming,
		YieldFarming:             &domain.YieldFarmingPayload{APY: ret, Pool: "pool"},
		Chain:                    domain.ChainEthereum,
		Protocol:                 domain.ProtocolAave,
		ExpectedReturnPercentage: ret,
		RiskScore:                risk,
		LiquidityScore:           liquidity,
		DiscoveredAt:             now,
		ExpiresAt:                now.Add(time.Hour),
	}
}

func TestScanAppliesQualityFilter(t *testing.T) {
	now := time.Now()
	good := mkOpportunity("good", 12, 3, 80, now)
	tooRisky := mkOpportunity("risky", 12, 9, 80, now)
	tooLowAPY := mkOpportunity("low-apy", 1, 3, 80, now)
	illiquid := mkOpportunity("illiquid", 12, 3, 5, now)

	src := fakeSource{name: "test", opps: []domain.Opportunity{good, tooRisky, tooLowAPY, illiquid}}
	filter := QualityFilter{MaxRiskScore: 5, MinAPYThreshold: 5, MinLiquidityScore: 20}
	s := NewScanner(noopLogger(), []Source{src}, filter, nil)

	got, err := s.Scan(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "good", got[0].ID)
}

func TestScanDropsExpiredOpportunities(t *testing.T) {
	now := time.Now()
	expired := mkOpportunity("expired", 12, 3, 80, now)
	expired.ExpiresAt = now.Add(-time.Minute)

	src := fakeSource{name: "test", opps: []domain.Opportunity{expired}}
	s := NewScanner(noopLogger(), []Source{src}, QualityFilter{MaxRiskScore: 10, MinLiquidityScore: 0}, nil)

	got, err := s.Scan(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScanSortsByTieBreakScoreDescending(t *testing.T) {
	now := time.Now()
	low := mkOpportunity("low", 5, 1, 80, now)
	high := mkOpportunity("high", 20, 1, 80, now)

	src := fakeSource{name: "test", opps: []domain.Opportunity{low, high}}
	s := NewScanner(noopLogger(), []Source{src}, QualityFilter{MaxRiskScore: 10, MinLiquidityScore: 0}, nil)

	got, err := s.Scan(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].ID)
	assert.Equal(t, "low", got[1].ID)
}

func TestForStrategyTypeFiltersByCompatibility(t *testing.T) {
	now := time.Now()
	yf := mkOpportunity("yf", 12, 3, 80, now)
	arb := yf
	arb.ID = "arb"
	arb.Type = domain.OpportunityArbitrage
	arb.YieldFarming = nil
	arb.Arbitrage = &domain.ArbitragePayload{ProfitPercent: 1, Pair: "ETH/USDC"}

	matched := ForStrategyType([]domain.Opportunity{yf, arb}, domain.StrategyYieldFarming)
	require.Len(t, matched, 1)
	assert.Equal(t, "yf", matched[0].ID)
}

func TestSourceFailureDoesNotAbortScan(t *testing.T) {
	now := time.Now()
	good := mkOpportunity("good", 12, 3, 80, now)
	failing := fakeSource{name: "broken", err: assertError("boom")}
	working := fakeSource{name: "ok", opps: []domain.Opportunity{good}}

	s := NewScanner(noopLogger(), []Source{failing, working}, QualityFilter{MaxRiskScore: 10, MinLiquidityScore: 0}, nil)
	got, err := s.Scan(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

type assertError string

func (e assertError) Error() string { return string(e) }
