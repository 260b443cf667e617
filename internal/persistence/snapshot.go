// Package persistence implements the versioned state snapshot and restore
// path (§6): the whole engine's durable surface is ActiveStrategy,
// DailyExecutionLedger, UserPortfolio, and Alert aggregates, each already
// owned exclusively by its component's Snapshot()/Restore() pair. This
// package only serializes that union into one forward-compatible blob and
// pushes it through an opaque key/value sink — it owns no aggregate state
// itself.
package persistence

import (
	"time"

	"github.com/flowforge/strategy-engine/internal/domain"
)

// schemaVersion is bumped whenever the Snapshot shape changes in a way that
// requires restore-time handling (§6: "forward-compatible, schema_version-
// gated restore").
const schemaVersion = 1

// Snapshot is the complete persisted state format (§6): every aggregate the
// engine owns, as of SavedAt.
type Snapshot struct {
	SchemaVersion int                                       `json:"schema_version"`
	SavedAt       time.Time                                  `json:"saved_at"`
	Strategies    map[string]domain.ActiveStrategy            `json:"strategies"`
	Ledgers       map[string]domain.DailyExecutionLedger      `json:"ledger"`
	Portfolios    map[string]domain.UserPortfolio             `json:"portfolios"`
	Alerts        map[string]domain.Alert                     `json:"alerts"`
}

// StrategyStore is the subset of *internal/strategy.Manager this package
// depends on.
type StrategyStore interface {
	Snapshot() (map[string]domain.ActiveStrategy, map[string]domain.DailyExecutionLedger)
	Restore(strategies map[string]domain.ActiveStrategy, ledgers map[string]domain.DailyExecutionLedger)
}

// PortfolioStore is the subset of *internal/portfolio.Store this package
// depends on.
type PortfolioStore interface {
	Snapshot() map[string]domain.UserPortfolio
	Restore(portfolios map[string]domain.UserPortfolio)
}

// AlertStore is the subset of *internal/alerts.Store this package depends
// on.
type AlertStore interface {
	Snapshot() map[string]domain.Alert
	Restore(alerts map[string]domain.Alert)
}

// Capture assembles a Snapshot from the three owning stores' current
// in-memory state.
func Capture(strategies StrategyStore, portfolios PortfolioStore, alerts AlertStore, now time.Time) Snapshot {
	strategySnap, ledgerSnap := strategies.Snapshot()
	return Snapshot{
		SchemaVersion: schemaVersion,
		SavedAt:       now,
		Strategies:    strategySnap,
		Ledgers:       ledgerSnap,
		Portfolios:    portfolios.Snapshot(),
		Alerts:        alerts.Snapshot(),
	}
}

// Apply restores a Snapshot's contents into the three owning stores,
// replacing their current in-memory state wholesale. Unknown or missing
// fields from an older SchemaVersion restore as their zero value — schema
// evolution is additive, so old snapshots keep loading.
func Apply(snap Snapshot, strategies StrategyStore, portfolios PortfolioStore, alerts AlertStore) {
	strategies.Restore(snap.Strategies, snap.Ledgers)
	portfolios.Restore(snap.Portfolios)
	alerts.Restore(snap.Alerts)
}
