// Package scanner implements the opportunity scanner (§4.3): it pulls
// from registered sources, applies quality filters, and caches results by
// id with a TTL derived from each opportunity's own expiry. Cache-by-id
// with a JSON-over-Redis TTL entry is grounded directly on
// internal/defi/arbitrage_detector.go's handleOpportunity, generalized
// from arbitrage-only to every OpportunityType.
package scanner

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/pkg/redis"
)

// Source is an opportunity source the scanner pulls from each pass —
// the scanner's only consumed collaborator besides the cache.
type Source interface {
	Name() string
	Discover(ctx context.Context, now time.Time) ([]domain.Opportunity, error)
}

// QualityFilter holds the thresholds a discovered opportunity must clear
// (§4.3): risk_score <= max_allowed, expected_return_percentage >=
// min_apy_threshold, liquidity_score >= min_liquidity.
type QualityFilter struct {
	MaxRiskScore      float64
	MinAPYThreshold   float64
	MinLiquidityScore float64
}

func (f QualityFilter) passes(o domain.Opportunity) bool {
	return o.RiskScore <= f.MaxRiskScore &&
		o.ExpectedReturnPercentage >= f.MinAPYThreshold &&
		o.LiquidityScore >= f.MinLiquidityScore
}

type cacheEntry struct {
	Opportunity domain.Opportunity `json:"opportunity"`
	LastSeen    time.Time          `json:"last_seen"`
}

// Scanner implements the §4.3 contract: scan(now) -> []Opportunity.
type Scanner struct {
	logger  *zap.Logger
	sources []Source
	filter  QualityFilter
	cache   redis.Client

	mu      sync.Mutex
	local   map[string]cacheEntry // in-process mirror so a cache outage degrades, not crashes
	metrics *Metrics
}

// WithMetrics attaches a Metrics collector. Optional — every Metrics
// method is a no-op on a nil receiver, so the scanner runs unmetered if
// this is never called.
func (s *Scanner) WithMetrics(m *Metrics) *Scanner {
	s.metrics = m
	return s
}

// NewScanner builds a Scanner over the given sources, filter and cache.
func NewScanner(logger *zap.Logger, sources []Source, filter QualityFilter, cache redis.Client) *Scanner {
	return &Scanner{
		logger:  logger,
		sources: sources,
		filter:  filter,
		cache:   cache,
		local:   make(map[string]cacheEntry),
	}
}

const cacheKeyPrefix = "strategy-engine:opportunity:"

// Scan pulls from every registered source, drops anything that fails the
// quality filter or has already expired, and caches survivors keyed by
// id — a repeat id refreshes last_seen and prolongs its effective
// lifetime up to its own expires_at (§4.3).
func (s *Scanner) Scan(ctx context.Context, now time.Time) ([]domain.Opportunity, error) {
	start := time.Now()
	defer func() { s.metrics.observeScanDuration(time.Since(start).Seconds()) }()

	var all []domain.Opportunity
	for _, src := range s.sources {
		found, err := src.Discover(ctx, now)
		if err != nil {
			s.logger.Warn("opportunity source failed", zap.String("source", src.Name()), zap.Error(err))
			continue
		}
		all = append(all, found...)
	}

	var kept []domain.Opportunity
	dropped := 0
	for _, o := range all {
		if err := o.Validate(); err != nil {
			s.logger.Debug("dropping invalid opportunity", zap.String("id", o.ID), zap.Error(err))
			dropped++
			continue
		}
		if o.Expired(now) {
			dropped++
			continue
		}
		if !s.filter.passes(o) {
			dropped++
			continue
		}
		s.touch(ctx, o, now)
		kept = append(kept, o)
	}
	s.metrics.recordKept(len(kept))
	s.metrics.recordDropped(dropped)

	sort.Slice(kept, func(i, j int) bool { return kept[i].TieBreakScore() > kept[j].TieBreakScore() })
	return kept, nil
}

func (s *Scanner) touch(ctx context.Context, o domain.Opportunity, now time.Time) {
	entry := cacheEntry{Opportunity: o, LastSeen: now}
	ttl := o.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return
	}

	s.mu.Lock()
	s.local[o.ID] = entry
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("failed to marshal opportunity cache entry", zap.Error(err))
		return
	}
	key := cacheKeyPrefix + o.ID
	if err := s.cache.Set(ctx, key, string(payload), ttl); err != nil {
		s.logger.Warn("failed to cache opportunity", zap.String("id", o.ID), zap.Error(err))
	}
}

// LastSeen returns the most recent time id was observed in a Scan pass,
// and whether it is still tracked (not yet expired/evicted).
func (s *Scanner) LastSeen(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.local[id]
	return e.LastSeen, ok
}

// ForStrategyType filters opportunities to those compatible with t,
// applying §4.3's strategy-type x opportunity-type compatibility table.
func ForStrategyType(opportunities []domain.Opportunity, t domain.StrategyType) []domain.Opportunity {
	var matched []domain.Opportunity
	for _, o := range opportunities {
		if t.CompatibleWith(o.Type) {
			matched = append(matched, o)
		}
	}
	return matched
}
