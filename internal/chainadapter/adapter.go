// Package chainadapter defines the uniform interface the strategy engine
// core uses to talk to any chain family (Bitcoin UTXO, EVM, Solana), plus
// the chain-independent collaborators it is built on (RPC consensus,
// threshold signing, best-path chain selection). Concrete variants live in
// the evm, bitcoin and solana subpackages; grounded on the node-manager and
// nonce-manager patterns of the EVM client this engine's RPC layer is
// adapted from.
package chainadapter

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge/strategy-engine/internal/domain"
)

// ChainCursor is the chain-specific position a new transaction must build
// from: an EVM pending-tag nonce, a Solana recent blockhash, or nil for
// Bitcoin (whose adapter consults its UTXO set directly).
type ChainCursor struct {
	EVMNonce        *uint64
	SolanaBlockhash string
}

// FeeEstimate is the normalized output of estimate_fee. For EIP-1559
// chains both legacy and 1559 fields are populated and Authoritative
// names which one the caller must use.
type FeeEstimate struct {
	PerUnitPrice        float64
	Units               uint64
	TotalNative         float64
	EstimatedConfirmIn  time.Duration
	LegacyGasPrice      float64
	MaxFeePerGas        float64
	MaxPriorityFee      float64
	Authoritative       string // "legacy" or "1559"
}

// TxSpec is the chain-agnostic description of a transaction to build.
type TxSpec struct {
	From       string
	To         string
	AmountWei  string // decimal string, base units, to avoid float precision loss
	Data       []byte
	Cursor     ChainCursor
	Fee        FeeEstimate
	ChainID    domain.ChainId
}

// UnsignedTx is a deterministically-serialized transaction awaiting a
// signature from the threshold-signature collaborator.
type UnsignedTx struct {
	ChainID    domain.ChainId
	Serialized []byte
	PreimageHash []byte // canonical pre-image hash per §4.7 (EIP-155/1559, BIP-143/341, Solana message hash)
}

// SignedTx wraps an UnsignedTx plus the signature bytes returned by the
// threshold-signature collaborator, ready to broadcast.
type SignedTx struct {
	Unsigned  UnsignedTx
	Signature []byte
	Raw       []byte
}

// TxId is the opaque identifier broadcast returns; re-broadcasting an
// identical SignedTx within a short window must return the same TxId.
type TxId string

// Adapter is the uniform capability set every chain-family variant
// implements (§4.7). The core strategy engine never branches on chain
// family directly — it only calls through this interface.
type Adapter interface {
	ChainID() domain.ChainId

	// DeriveAddress is deterministic over the derivation path and MUST be
	// stable across restarts.
	DeriveAddress(ctx context.Context, key domain.SignatureKey) (string, error)

	// ReadBalance may be served from a cache with TTL <= 60s.
	ReadBalance(ctx context.Context, address string) (float64, error)

	ReadCursor(ctx context.Context, address string) (ChainCursor, error)

	EstimateFee(ctx context.Context, spec TxSpec, priority FeePriority) (FeeEstimate, error)

	BuildUnsigned(ctx context.Context, spec TxSpec) (UnsignedTx, error)

	Sign(ctx context.Context, tx UnsignedTx, key domain.SignatureKey) (SignedTx, error)

	// Broadcast is idempotent: re-broadcasting identical SignedTx bytes
	// within a short window returns the same TxId rather than erroring.
	Broadcast(ctx context.Context, tx SignedTx) (TxId, error)
}

// FeePriority is the caller's urgency hint to EstimateFee.
type FeePriority string

const (
	FeePriorityLow      FeePriority = "low"
	FeePriorityStandard FeePriority = "standard"
	FeePriorityHigh     FeePriority = "high"
)

// SignerClient is the threshold-signature collaborator contract (§6.1):
// deterministic key derivation, signature backend holds the key. This
// engine only ever consumes this interface — no production implementation
// ships here, per the spec's "contracts only, no transport" framing for
// external collaborators.
type SignerClient interface {
	Sign(ctx context.Context, payloadHash []byte, key domain.SignatureKey) ([]byte, error)
	PublicKey(ctx context.Context, key domain.SignatureKey) ([]byte, error)
}

// PathLocks serializes signing requests per derivation path, so at most one
// signing request is outstanding per path at a time (§5 "shared resources":
// avoids nonce races on EVM chains). The adapter layer is required to
// enforce this around every Sign call.
type PathLocks struct {
	locks sync.Map // derivation path -> *sync.Mutex
}

func (p *PathLocks) Lock(path string) func() {
	v, _ := p.locks.LoadOrStore(path, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
