package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/strategy-engine/internal/domain"
)

func baseActiveStrategy(id, userID string, capital float64, due time.Time) domain.ActiveStrategy {
	return domain.ActiveStrategy{
		ID:               id,
		UserID:           userID,
		Status:           domain.StatusActive,
		AllocatedCapital: capital,
		NextExecution:    &due,
		Config:           domain.StrategyConfig{Type: domain.StrategyYieldFarming, RiskLevel: 5, MaxAllocationUSD: capital, ExecutionIntervalMinutes: 60},
		CreatedAt:        due.Add(-time.Hour),
	}
}

func TestManagerDueSnapshotOnlyIncludesEligibleStrategies(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.Create(baseActiveStrategy("due", "user-1", 100, now.Add(-time.Minute)))
	m.Create(baseActiveStrategy("not-due", "user-1", 100, now.Add(time.Hour)))

	paused := baseActiveStrategy("paused", "user-1", 100, now.Add(-time.Minute))
	paused.Status = domain.StatusPaused
	m.Create(paused)

	due := m.DueSnapshot(now)
	assert.Equal(t, []string{"due"}, due)
}

func TestManagerRecordExecutionAccumulatesLedger(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.RecordExecution("user-1", now, 100, true, 0)
	m.RecordExecution("user-1", now, 50, false, 20)

	ledger := m.Ledger("user-1", now)
	assert.Equal(t, 2, ledger.Executions)
	assert.Equal(t, 1, ledger.Successes)
	assert.Equal(t, 1, ledger.Failures)
	assert.Equal(t, 20.0, ledger.LossUSD)
}

func TestManagerSnapshotRestoreRoundTrip(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.Create(baseActiveStrategy("s1", "user-1", 100, now))
	m.RecordExecution("user-1", now, 10, true, 0)

	strategies, ledgers := m.Snapshot()

	restored := NewManager()
	restored.Restore(strategies, ledgers)

	got, ok := restored.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, 1, restored.ActiveCountForUser("user-1"))
}

func TestManagerTotalAllocatedForUserExcludesGivenStrategy(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.Create(baseActiveStrategy("a", "user-1", 100, now))
	m.Create(baseActiveStrategy("b", "user-1", 200, now))

	total := m.TotalAllocatedForUser("user-1", "a")
	assert.Equal(t, 200.0, total)
}
