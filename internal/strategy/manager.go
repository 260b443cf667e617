// Package strategy implements the strategy execution engine (C8), the
// coordinator (C9), and the per-StrategyType handlers (§4.2). Manager is
// the exclusive owner of ActiveStrategy aggregates and the daily
// execution ledger (§3: "AutomatedStrategyManager exclusively owns
// active strategies, user preferences, last-scan/last-exec timestamps").
// Grounded structurally on internal/defi/trading_bot.go's TradingBot:
// same status-gated ticker-loop shape, generalized from one bot/one
// strategy to many concurrently scheduled ActiveStrategy aggregates
// dispatched by StrategyType.
package strategy

import (
	"sync"
	"time"

	"github.com/flowforge/strategy-engine/internal/domain"
)

// Manager exclusively owns ActiveStrategy aggregates and per-(user,day)
// execution ledgers, keyed by id (§3 ownership rule).
type Manager struct {
	mu         sync.RWMutex
	strategies map[string]domain.ActiveStrategy
	byUser     map[string]map[string]struct{} // userID -> set of strategy ids
	ledgers    map[string]domain.DailyExecutionLedger // "userID|day" -> ledger
}

// NewManager builds an empty Manager; C11 restores its contents at
// startup from a persisted snapshot.
func NewManager() *Manager {
	return &Manager{
		strategies: make(map[string]domain.ActiveStrategy),
		byUser:     make(map[string]map[string]struct{}),
		ledgers:    make(map[string]domain.DailyExecutionLedger),
	}
}

// Create registers a new strategy under config.Validate()'s guarantees;
// callers validate before calling Create.
func (m *Manager) Create(s domain.ActiveStrategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[s.ID] = s
	if m.byUser[s.UserID] == nil {
		m.byUser[s.UserID] = make(map[string]struct{})
	}
	m.byUser[s.UserID][s.ID] = struct{}{}
}

// Get returns the strategy by id.
func (m *Manager) Get(id string) (domain.ActiveStrategy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.strategies[id]
	return s, ok
}

// Put replaces a strategy wholesale — the only mutation path, so every
// status/performance/history update is a read-modify-write of the full
// aggregate.
func (m *Manager) Put(s domain.ActiveStrategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = time.Now()
	m.strategies[s.ID] = s
	if m.byUser[s.UserID] == nil {
		m.byUser[s.UserID] = make(map[string]struct{})
	}
	m.byUser[s.UserID][s.ID] = struct{}{}
}

// ForUser returns every strategy owned by userID.
func (m *Manager) ForUser(userID string) []domain.ActiveStrategy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byUser[userID]
	out := make([]domain.ActiveStrategy, 0, len(ids))
	for id := range ids {
		out = append(out, m.strategies[id])
	}
	return out
}

// ActiveCountForUser counts userID's Active strategies, for the risk
// engine's concurrency check (§4.4 step 6).
func (m *Manager) ActiveCountForUser(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for id := range m.byUser[userID] {
		if m.strategies[id].Status == domain.StatusActive {
			count++
		}
	}
	return count
}

// TotalAllocatedForUser sums allocated_capital of userID's Active
// strategies, excluding the given strategy id (for the exposure check,
// which adds the proposed capital for the strategy under evaluation
// separately — §4.4 step 4).
func (m *Manager) TotalAllocatedForUser(userID, excludeID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0.0
	for id := range m.byUser[userID] {
		if id == excludeID {
			continue
		}
		s := m.strategies[id]
		if s.Status == domain.StatusActive {
			total += s.AllocatedCapital
		}
	}
	return total
}

// DueSnapshot returns the ids of every strategy eligible for execution
// at now (§4.1 step 1): status=Active, allocated_capital>0, due.
// Eligibility is fixed at snapshot time — the pass never re-checks it,
// avoiding TOCTOU within the pass.
func (m *Manager) DueSnapshot(now time.Time) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, s := range m.strategies {
		if s.Due(now) {
			ids = append(ids, id)
		}
	}
	return ids
}

func ledgerKey(userID, day string) string { return userID + "|" + day }

// dayOf formats t as the ledger's UTC calendar day.
func dayOf(t time.Time) string { return t.UTC().Format("2006-01-02") }

// Ledger returns the (user, day) execution ledger, zero-valued if none
// has been recorded yet for that day (§3: reset at day rollover by
// simply never having been written for the new day's key).
func (m *Manager) Ledger(userID string, now time.Time) domain.DailyExecutionLedger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := ledgerKey(userID, dayOf(now))
	l, ok := m.ledgers[key]
	if !ok {
		return domain.DailyExecutionLedger{UserID: userID, Day: dayOf(now)}
	}
	return l
}

// RecordExecution increments the (user, day) ledger — the only ledger
// write path, invoked once per committed execution (§3 invariant:
// "incremented only on execution commit").
func (m *Manager) RecordExecution(userID string, now time.Time, amountUSD float64, success bool, lossUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ledgerKey(userID, dayOf(now))
	l, ok := m.ledgers[key]
	if !ok {
		l = domain.DailyExecutionLedger{UserID: userID, Day: dayOf(now)}
	}
	l.RecordExecution(amountUSD, success, lossUSD)
	m.ledgers[key] = l
}

// Snapshot returns every strategy and ledger, for persistence (C11).
func (m *Manager) Snapshot() (map[string]domain.ActiveStrategy, map[string]domain.DailyExecutionLedger) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	strategies := make(map[string]domain.ActiveStrategy, len(m.strategies))
	for k, v := range m.strategies {
		strategies[k] = v
	}
	ledgers := make(map[string]domain.DailyExecutionLedger, len(m.ledgers))
	for k, v := range m.ledgers {
		ledgers[k] = v
	}
	return strategies, ledgers
}

// Restore replaces the Manager's contents wholesale from a persisted
// snapshot (C11).
func (m *Manager) Restore(strategies map[string]domain.ActiveStrategy, ledgers map[string]domain.DailyExecutionLedger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies = strategies
	m.ledgers = ledgers
	m.byUser = make(map[string]map[string]struct{})
	for id, s := range strategies {
		if m.byUser[s.UserID] == nil {
			m.byUser[s.UserID] = make(map[string]struct{})
		}
		m.byUser[s.UserID][id] = struct{}{}
	}
}
