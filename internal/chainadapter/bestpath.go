package chainadapter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowforge/strategy-engine/internal/domain"
)

// TransactionContext describes a transfer the coordinator wants routed to
// the cheapest viable chain (§4.7 best-path chain selection).
type TransactionContext struct {
	Type      domain.TransactionType
	AmountUSD float64
	Urgency   FeePriority
}

// RouteOption is one candidate chain with its estimated total cost.
type RouteOption struct {
	Chain      domain.ChainId
	FeeUSD     float64
	BridgeUSD  float64
	TotalUSD   float64
}

// RoutePlan is the result of best-path selection: the cheapest viable
// chain plus alternatives sorted ascending by total cost.
type RoutePlan struct {
	Best         RouteOption
	Alternatives []RouteOption
}

// bridgeCostCache caches bridge-cost quotes keyed by (from,to) with a 5
// minute TTL, per §4.7.
type bridgeCostCache struct {
	mu      sync.Mutex
	entries map[[2]domain.ChainId]bridgeCostEntry
	ttl     time.Duration
	clock   func() time.Time
}

type bridgeCostEntry struct {
	usd       float64
	expiresAt time.Time
}

func newBridgeCostCache(clock func() time.Time) *bridgeCostCache {
	return &bridgeCostCache{entries: make(map[[2]domain.ChainId]bridgeCostEntry), ttl: 5 * time.Minute, clock: clock}
}

func (c *bridgeCostCache) get(from, to domain.ChainId) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[[2]domain.ChainId{from, to}]
	if !ok || c.clock().After(e.expiresAt) {
		return 0, false
	}
	return e.usd, true
}

func (c *bridgeCostCache) set(from, to domain.ChainId, usd float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[[2]domain.ChainId{from, to}] = bridgeCostEntry{usd: usd, expiresAt: c.clock().Add(c.ttl)}
}

// FeeQuoter estimates a chain's native fee for a transaction context in
// USD; implemented by each Adapter family wired into the Router.
type FeeQuoter interface {
	QuoteFeeUSD(ctx context.Context, chain domain.ChainId, txCtx TransactionContext) (float64, error)
}

// BridgeQuoter estimates the USD cost to bridge funds between two chains.
type BridgeQuoter interface {
	QuoteBridgeUSD(ctx context.Context, from, to domain.ChainId, amountUSD float64) (float64, error)
}

// Router performs best-path chain selection across a fixed candidate set.
type Router struct {
	candidates []domain.ChainId
	fees       FeeQuoter
	bridges    BridgeQuoter
	cache      *bridgeCostCache
}

// NewRouter builds a Router over candidates, using now as the cache's
// clock source (tests may inject a fixed function).
func NewRouter(candidates []domain.ChainId, fees FeeQuoter, bridges BridgeQuoter, now func() time.Time) *Router {
	if now == nil {
		now = time.Now
	}
	return &Router{candidates: candidates, fees: fees, bridges: bridges, cache: newBridgeCostCache(now)}
}

// Plan enumerates candidate chains that support txCtx.Type, estimates fee
// plus bridge cost (from the source chain) multiplied by the type's
// complexity factor, and returns the minimum-total option with
// alternatives sorted ascending (§4.7).
func (r *Router) Plan(ctx context.Context, from domain.ChainId, txCtx TransactionContext) (RoutePlan, error) {
	factor := txCtx.Type.ComplexityFactor()
	var options []RouteOption

	for _, chain := range r.candidates {
		if !chain.SupportsTransactionType(txCtx.Type) {
			continue
		}
		feeUSD, err := r.fees.QuoteFeeUSD(ctx, chain, txCtx)
		if err != nil {
			continue
		}
		var bridgeUSD float64
		if chain != from {
			if cached, ok := r.cache.get(from, chain); ok {
				bridgeUSD = cached
			} else {
				quoted, err := r.bridges.QuoteBridgeUSD(ctx, from, chain, txCtx.AmountUSD)
				if err != nil {
					continue
				}
				r.cache.set(from, chain, quoted)
				bridgeUSD = quoted
			}
		}
		total := (feeUSD + bridgeUSD) * factor
		options = append(options, RouteOption{Chain: chain, FeeUSD: feeUSD, BridgeUSD: bridgeUSD, TotalUSD: total})
	}

	if len(options) == 0 {
		return RoutePlan{}, fmt.Errorf("no candidate chain supports transaction type %s", txCtx.Type)
	}
	sort.Slice(options, func(i, j int) bool { return options[i].TotalUSD < options[j].TotalUSD })
	return RoutePlan{Best: options[0], Alternatives: options[1:]}, nil
}
