package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/strategy-engine/internal/domain"
)

func TestStoreGetCreatesEmptyPortfolioOnFirstAccess(t *testing.T) {
	s := NewStore()
	p := s.Get("user-1")
	assert.Equal(t, "user-1", p.UserID)
	assert.Empty(t, p.Positions)
}

func TestStoreUpsertAndRemovePosition(t *testing.T) {
	s := NewStore()
	pos := domain.Position{ID: "pos-1", Chain: domain.ChainEthereum, Protocol: domain.ProtocolAave, ValueUSD: 100}
	s.UpsertPosition("user-1", pos)

	got := s.Get("user-1")
	require.Len(t, got.Positions, 1)
	assert.Equal(t, 100.0, got.Positions["pos-1"].ValueUSD)

	s.RemovePosition("user-1", "pos-1")
	got = s.Get("user-1")
	assert.Empty(t, got.Positions)
}

func TestStoreSnapshotAndRestoreRoundTrip(t *testing.T) {
	s := NewStore()
	s.UpsertPosition("user-1", domain.Position{ID: "pos-1", Chain: domain.ChainEthereum, ValueUSD: 50})

	snap := s.Snapshot()
	restored := NewStore()
	restored.Restore(snap)

	got := restored.Get("user-1")
	assert.Equal(t, 50.0, got.Positions["pos-1"].ValueUSD)
}

func TestSummarizeComputesDistributionAndTopPositions(t *testing.T) {
	p := domain.UserPortfolio{
		UserID: "user-1",
		Positions: map[string]domain.Position{
			"a": {ID: "a", Chain: domain.ChainEthereum, Protocol: domain.ProtocolAave, ValueUSD: 700, InitialInvestment: 650, RiskScore: 2},
			"b": {ID: "b", Chain: domain.ChainArbitrum, Protocol: domain.ProtocolUniswapV3, ValueUSD: 300, InitialInvestment: 320, RiskScore: 8},
		},
	}

	summary := Summarize(p)
	assert.Equal(t, 1000.0, summary.TotalValueUSD)
	assert.InDelta(t, 70.0, summary.ChainDistribution[domain.ChainEthereum], 0.001)
	assert.InDelta(t, 30.0, summary.ChainDistribution[domain.ChainArbitrum], 0.001)
	assert.Equal(t, domain.ChainEthereum, summary.Concentration.LargestChain)
	assert.InDelta(t, 70.0, summary.Concentration.LargestChainShare, 0.001)
	require.Len(t, summary.TopPositions, 2)
	assert.Equal(t, "a", summary.TopPositions[0].ID)
	assert.InDelta(t, 30.0, summary.TotalPnLUSD, 0.001) // (700-650) + (300-320)
}

func TestSummarizeHandlesEmptyPortfolio(t *testing.T) {
	summary := Summarize(domain.UserPortfolio{UserID: "empty"})
	assert.Equal(t, 0.0, summary.TotalValueUSD)
	assert.Empty(t, summary.TopPositions)
}
