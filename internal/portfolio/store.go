// Package portfolio implements the portfolio store (§3, C6): the
// exclusive owner of UserPortfolio aggregates — positions, PnL, target
// allocation, auto-compound settings — and the summary/analytics reads
// built over them. Grounded on
// internal/wallet/multichain/multichain_manager.go's GetPortfolioSummary:
// same shape (total value, chain/category distribution, top positions,
// concentration flags), generalized from per-token unified balances
// to per-chain/per-protocol/per-risk-bucket Position distributions.
package portfolio

import (
	"sort"
	"sync"
	"time"

	"github.com/flowforge/strategy-engine/internal/domain"
)

// Store exclusively owns UserPortfolio aggregates (§3: "AdvancedPortfolioManager
// exclusively owns portfolios and auto-compound settings"). Every other
// component references a portfolio only by UserID.
type Store struct {
	mu         sync.RWMutex
	portfolios map[string]domain.UserPortfolio
}

// NewStore builds an empty in-process Store; Persistence (C11) restores
// its contents from a snapshot at startup.
func NewStore() *Store {
	return &Store{portfolios: make(map[string]domain.UserPortfolio)}
}

// Get returns the user's portfolio, creating an empty one on first access
// so callers never have to special-case a brand-new user.
func (s *Store) Get(userID string) domain.UserPortfolio {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[userID]
	if !ok {
		p = domain.UserPortfolio{
			UserID:           userID,
			Positions:        make(map[string]domain.Position),
			TargetAllocation: make(map[string]float64),
			RiskTolerance:    domain.ToleranceModerate,
			UpdatedAt:        time.Now(),
		}
		s.portfolios[userID] = p
	}
	return p
}

// Put replaces the user's portfolio wholesale — the only write path, so
// every mutation (position upsert, rebalance apply, auto-compound) goes
// through a read-modify-write of the full aggregate.
func (s *Store) Put(p domain.UserPortfolio) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = time.Now()
	s.portfolios[p.UserID] = p
}

// UpsertPosition writes a single position into the user's portfolio.
func (s *Store) UpsertPosition(userID string, pos domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[userID]
	if !ok {
		p = domain.UserPortfolio{UserID: userID, Positions: make(map[string]domain.Position), TargetAllocation: make(map[string]float64)}
	}
	if p.Positions == nil {
		p.Positions = make(map[string]domain.Position)
	}
	p.Positions[pos.ID] = pos
	p.UpdatedAt = time.Now()
	s.portfolios[userID] = p
}

// RemovePosition deletes a position (e.g. fully withdrawn / closed).
func (s *Store) RemovePosition(userID, positionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[userID]
	if !ok {
		return
	}
	delete(p.Positions, positionID)
	p.UpdatedAt = time.Now()
	s.portfolios[userID] = p
}

// Snapshot returns every tracked portfolio, for persistence (C11).
func (s *Store) Snapshot() map[string]domain.UserPortfolio {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.UserPortfolio, len(s.portfolios))
	for k, v := range s.portfolios {
		out[k] = v
	}
	return out
}

// Restore replaces the store's contents wholesale, used by C11 on
// startup to resume from a persisted snapshot.
func (s *Store) Restore(portfolios map[string]domain.UserPortfolio) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios = portfolios
}

// Summary is the read-side aggregate over a UserPortfolio: total value,
// per-chain and per-protocol distribution, top positions by value, and a
// concentration snapshot. Mirrors the teacher's PortfolioSummary shape.
type Summary struct {
	UserID             string
	TotalValueUSD      float64
	TotalPnLUSD        float64
	ChainDistribution  map[domain.ChainId]float64
	CategoryAllocation map[string]float64 // category key (chain|protocol|risk-bucket) -> percentage
	TopPositions       []domain.Position
	Concentration      Concentration
	LastUpdated        time.Time
}

// Concentration flags over-concentration in a single chain or protocol —
// grounded on the teacher's RiskMetrics.ConcentrationRisk, but expressed
// as the actual largest-share percentage rather than a decimal score, so
// the risk engine and rebalancer can threshold it directly.
type Concentration struct {
	LargestChainShare    float64
	LargestChain         domain.ChainId
	LargestProtocolShare float64
	LargestProtocol      domain.Protocol
}

const topPositionsLimit = 10

// Summarize computes a Summary over the given portfolio (§4.5 step 1
// reuses CategoryAllocation as "current allocation by category").
func Summarize(p domain.UserPortfolio) Summary {
	total := p.TotalValueUSD()

	chainTotals := make(map[domain.ChainId]float64)
	protocolTotals := make(map[domain.Protocol]float64)
	categoryTotals := make(map[string]float64)

	positions := make([]domain.Position, 0, len(p.Positions))
	for _, pos := range p.Positions {
		positions = append(positions, pos)
		chainTotals[pos.Chain] += pos.ValueUSD
		protocolTotals[pos.Protocol] += pos.ValueUSD
		categoryTotals[categoryKey(pos)] += pos.ValueUSD
	}

	chainDist := make(map[domain.ChainId]float64, len(chainTotals))
	var (
		largestChain      domain.ChainId
		largestChainShare float64
	)
	for chain, value := range chainTotals {
		share := percentOf(value, total)
		chainDist[chain] = share
		if share > largestChainShare {
			largestChainShare = share
			largestChain = chain
		}
	}

	var (
		largestProtocol      domain.Protocol
		largestProtocolShare float64
	)
	for protocol, value := range protocolTotals {
		share := percentOf(value, total)
		if share > largestProtocolShare {
			largestProtocolShare = share
			largestProtocol = protocol
		}
	}

	categoryAlloc := make(map[string]float64, len(categoryTotals))
	for k, v := range categoryTotals {
		categoryAlloc[k] = percentOf(v, total)
	}

	sort.Slice(positions, func(i, j int) bool { return positions[i].ValueUSD > positions[j].ValueUSD })
	if len(positions) > topPositionsLimit {
		positions = positions[:topPositionsLimit]
	}

	pnl := 0.0
	for _, pos := range p.Positions {
		pnl += pos.PnL()
	}

	return Summary{
		UserID:             p.UserID,
		TotalValueUSD:      total,
		TotalPnLUSD:        pnl,
		ChainDistribution:  chainDist,
		CategoryAllocation: categoryAlloc,
		TopPositions:       positions,
		Concentration: Concentration{
			LargestChainShare:    largestChainShare,
			LargestChain:         largestChain,
			LargestProtocolShare: largestProtocolShare,
			LargestProtocol:      largestProtocol,
		},
		LastUpdated: time.Now(),
	}
}

// categoryKey buckets a position by chain, protocol category, and
// risk-level tercile — the same three axes §4.5's "current allocation by
// category (chain and protocol and risk-bucket)" names.
func categoryKey(pos domain.Position) string {
	return string(pos.Chain) + "|" + string(pos.Protocol.Category()) + "|" + riskBucket(pos.RiskScore)
}

func riskBucket(riskScore int) string {
	switch {
	case riskScore <= 3:
		return "low"
	case riskScore <= 7:
		return "medium"
	default:
		return "high"
	}
}

func percentOf(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole * 100
}
