package strategy

import (
	"sort"

	"github.com/flowforge/strategy-engine/internal/domain"
)

// Coordinator (C9) approves and re-orders a pass's due-strategy
// snapshot, dropping strategies that would conflict for shared capital
// (§4.1 step 2: "coordinator may drop strategies that conflict for
// shared capital"). Two strategies conflict when they belong to the
// same user and their combined allocated_capital would exceed the
// user's available portfolio value for this pass; the coordinator keeps
// the higher-priority (highest allocated_capital, then earliest
// CreatedAt) strategy and drops the rest.
type Coordinator struct{}

// NewCoordinator builds a Coordinator. It holds no state of its own —
// every decision is a pure function of the snapshot it is given.
func NewCoordinator() *Coordinator { return &Coordinator{} }

// Approve orders the snapshot (by allocated_capital desc, then
// CreatedAt asc for a stable tie-break) and drops any strategy whose
// user's already-approved total would exceed availableUSD — the user's
// portfolio value for this pass. Users absent from the map are not limited.
func (c *Coordinator) Approve(snapshot []domain.ActiveStrategy, availableUSDByUser map[string]float64) []domain.ActiveStrategy {
	ordered := make([]domain.ActiveStrategy, len(snapshot))
	copy(ordered, snapshot)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].AllocatedCapital != ordered[j].AllocatedCapital {
			return ordered[i].AllocatedCapital > ordered[j].AllocatedCapital
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	committed := make(map[string]float64)
	approved := make([]domain.ActiveStrategy, 0, len(ordered))
	for _, s := range ordered {
		available, tracked := availableUSDByUser[s.UserID]
		if !tracked {
			approved = append(approved, s)
			continue
		}
		if committed[s.UserID]+s.AllocatedCapital > available {
			continue // conflicts with higher-priority strategies for the same user's capital
		}
		committed[s.UserID] += s.AllocatedCapital
		approved = append(approved, s)
	}
	return approved
}
