package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/pkg/redis"
)

// snapshotKey is the single opaque key every Snapshot is stored under —
// the persisted state format is one blob, not a per-aggregate schema
// (§6: "a persistence collaborator is an opaque snapshot sink").
const snapshotKey = "strategy-engine:snapshot"

// Clock abstracts wall-clock time for the periodic save loop, matching
// internal/clock.Clock's injectable-time shape.
type Clock interface {
	Now() time.Time
}

// Store periodically captures the engine's aggregate state into a Snapshot
// and pushes it through an opaque key/value sink (pkg/redis.Client),
// restoring it at startup (§6: "forward-compatible, schema_version-gated
// restore"). Lifecycle mirrors internal/wallet/multichain.MultichainManager's
// Start/Stop-with-ticker shape.
type Store struct {
	logger     *zap.Logger
	sink       redis.Client
	clock      Clock
	interval   time.Duration
	strategies StrategyStore
	portfolios PortfolioStore
	alerts     AlertStore

	mu       sync.Mutex
	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
}

// NewStore wires the persistence layer's collaborators.
func NewStore(logger *zap.Logger, sink redis.Client, clock Clock, interval time.Duration, strategies StrategyStore, portfolios PortfolioStore, alerts AlertStore) *Store {
	return &Store{
		logger:     logger,
		sink:       sink,
		clock:      clock,
		interval:   interval,
		strategies: strategies,
		portfolios: portfolios,
		alerts:     alerts,
	}
}

// Save captures and persists the current state immediately.
func (s *Store) Save(ctx context.Context) error {
	snap := Capture(s.strategies, s.portfolios, s.alerts, s.clock.Now())
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persistence: marshal snapshot: %w", err)
	}
	if err := s.sink.Set(ctx, snapshotKey, string(payload), 0); err != nil {
		return fmt.Errorf("persistence: write snapshot: %w", err)
	}
	return nil
}

// Load restores the most recently persisted state, if any. A missing key
// (fresh deployment, nothing saved yet) is not an error.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.sink.Get(ctx, snapshotKey)
	if err != nil {
		exists, existsErr := s.sink.Exists(ctx, snapshotKey)
		if existsErr == nil && !exists {
			return nil
		}
		return fmt.Errorf("persistence: read snapshot: %w", err)
	}
	if raw == "" {
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return fmt.Errorf("persistence: unmarshal snapshot: %w", err)
	}
	if snap.SchemaVersion > schemaVersion {
		return fmt.Errorf("persistence: snapshot schema_version %d is newer than this binary supports (%d)", snap.SchemaVersion, schemaVersion)
	}

	Apply(snap, s.strategies, s.portfolios, s.alerts)
	s.logger.Info("restored persisted snapshot",
		zap.Time("saved_at", snap.SavedAt),
		zap.Int("strategies", len(snap.Strategies)),
		zap.Int("portfolios", len(snap.Portfolios)),
		zap.Int("alerts", len(snap.Alerts)))
	return nil
}

// Start begins the periodic save loop. Safe to call once; a second call is
// a no-op.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.ticker = time.NewTicker(s.interval)
	go s.saveLoop(ctx)
}

// Stop halts the periodic save loop and flushes a final snapshot.
func (s *Store) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.ticker.Stop()
	close(s.stopChan)
	s.mu.Unlock()

	if err := s.Save(ctx); err != nil {
		s.logger.Warn("final snapshot save failed", zap.Error(err))
	}
}

func (s *Store) saveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-s.ticker.C:
			if err := s.Save(ctx); err != nil {
				s.logger.Warn("periodic snapshot save failed", zap.Error(err))
			}
		}
	}
}
