// Package protocoladapter maps a (ChainId, Protocol) pair to the concrete
// collaborator that knows how to build a transaction against that
// protocol's contracts. Generalized from the teacher's per-protocol
// clients (Aave, Uniswap-family DEX routers via the aggregator clients),
// each of which hard-coded one protocol against one chain; here the same
// "contract address + ABI-backed call" shape is kept but indexed so the
// strategy-type handlers (§4.2) can look up a protocol by name instead of
// importing a protocol-specific client directly.
package protocoladapter

import (
	"context"
	"fmt"

	"github.com/flowforge/strategy-engine/internal/chainadapter"
	"github.com/flowforge/strategy-engine/internal/domain"
)

// ActionSpec is the protocol-neutral description of a single on-chain
// action a strategy handler wants to perform: supply, withdraw, swap,
// stake, claim.
type ActionSpec struct {
	Action     string // "supply", "withdraw", "borrow", "repay", "swap", "stake", "unstake", "claim"
	TokenIn    string
	TokenOut   string
	AmountUSD  float64
	MinOutUSD  float64 // slippage floor for swaps
	ExtraData  map[string]string
}

// ProtocolAdapter knows how to translate an ActionSpec against one
// protocol on one chain into a chainadapter.TxSpec ready for
// BuildUnsigned. Implementations wrap the protocol's contract addresses
// and ABI, mirroring the teacher's AaveClient/DEX-router clients.
type ProtocolAdapter interface {
	Protocol() domain.Protocol
	ChainID() domain.ChainId
	BuildTx(ctx context.Context, from string, spec ActionSpec) (chainadapter.TxSpec, error)
	// QuoteUSD estimates the USD value of an action's output (e.g. swap
	// out-amount, lend APY-adjusted position), used by the opportunity
	// scanner and risk engine without executing anything.
	QuoteUSD(ctx context.Context, spec ActionSpec) (float64, error)
}

type registryKey struct {
	chain    domain.ChainId
	protocol domain.Protocol
}

// Registry is the (ChainId, Protocol) -> ProtocolAdapter lookup table
// strategy handlers consume.
type Registry struct {
	adapters map[registryKey]ProtocolAdapter
}

// NewRegistry builds an empty registry; adapters are registered at
// startup wiring time.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[registryKey]ProtocolAdapter)}
}

// Register adds an adapter, overwriting any existing entry for the same
// (chain, protocol) pair.
func (r *Registry) Register(a ProtocolAdapter) {
	r.adapters[registryKey{chain: a.ChainID(), protocol: a.Protocol()}] = a
}

// Lookup returns the adapter for (chain, protocol), or an error if none
// is registered — callers treat this as a Validation-kind error, since an
// opportunity naming an unsupported (chain, protocol) pair should never
// have been surfaced by the scanner (§4.3 compatibility table).
func (r *Registry) Lookup(chain domain.ChainId, protocol domain.Protocol) (ProtocolAdapter, error) {
	a, ok := r.adapters[registryKey{chain: chain, protocol: protocol}]
	if !ok {
		return nil, fmt.Errorf("no protocol adapter registered for %s on %s", protocol, chain)
	}
	return a, nil
}

// Supports reports whether (chain, protocol) has a registered adapter,
// for the scanner's and risk engine's compatibility filtering.
func (r *Registry) Supports(chain domain.ChainId, protocol domain.Protocol) bool {
	_, ok := r.adapters[registryKey{chain: chain, protocol: protocol}]
	return ok
}
