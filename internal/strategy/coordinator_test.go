package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/strategy-engine/internal/domain"
)

func TestCoordinatorApproveOrdersByAllocatedCapitalDescending(t *testing.T) {
	c := NewCoordinator()
	now := time.Now()
	small := baseActiveStrategy("small", "user-1", 100, now)
	big := baseActiveStrategy("big", "user-1", 500, now)

	approved := c.Approve([]domain.ActiveStrategy{small, big}, nil)
	assert.Equal(t, []string{"big", "small"}, []string{approved[0].ID, approved[1].ID})
}

func TestCoordinatorDropsConflictingStrategyOverAvailableCapital(t *testing.T) {
	c := NewCoordinator()
	now := time.Now()
	a := baseActiveStrategy("a", "user-1", 700, now)
	b := baseActiveStrategy("b", "user-1", 500, now)

	approved := c.Approve([]domain.ActiveStrategy{a, b}, map[string]float64{"user-1": 1000})
	require.Len(t, approved, 1)
	assert.Equal(t, "a", approved[0].ID)
}

func TestCoordinatorKeepsBothWhenWithinAvailableCapital(t *testing.T) {
	c := NewCoordinator()
	now := time.Now()
	a := baseActiveStrategy("a", "user-1", 400, now)
	b := baseActiveStrategy("b", "user-1", 500, now)

	approved := c.Approve([]domain.ActiveStrategy{a, b}, map[string]float64{"user-1": 1000})
	assert.Len(t, approved, 2)
}
