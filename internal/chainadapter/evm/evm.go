// Package evm implements the chain adapter for Ethereum and EVM-compatible
// L2/sidechains, backed by the RPC consensus collaborator rather than a
// single RPC endpoint. Nonce handling is adapted from the engine's nonce
// tracking pattern: local nonces are incremented across a pass without
// re-reading the chain. They are re-read only when a caller invokes
// SyncCursor; Broadcast does not classify "nonce too low" failures, does
// not re-sync and does not retry.
package evm

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/chainadapter"
	"github.com/flowforge/strategy-engine/internal/domain"
)

// Adapter implements chainadapter.Adapter for one EVM chain.
type Adapter struct {
	chainID  domain.ChainId
	logger   *zap.Logger
	consensus *chainadapter.ConsensusClient
	signer   chainadapter.SignerClient
	locks    *chainadapter.PathLocks

	mu     sync.Mutex
	nonces map[string]uint64 // address -> next local nonce

	balanceCache *ttlCache
}

// NewAdapter builds an EVM adapter over a consensus client and a
// threshold-signature collaborator.
func NewAdapter(chainID domain.ChainId, logger *zap.Logger, consensus *chainadapter.ConsensusClient, signer chainadapter.SignerClient) *Adapter {
	return &Adapter{
		chainID:      chainID,
		logger:       logger,
		consensus:    consensus,
		signer:       signer,
		locks:        &chainadapter.PathLocks{},
		nonces:       make(map[string]uint64),
		balanceCache: newTTLCache(60 * time.Second),
	}
}

func (a *Adapter) ChainID() domain.ChainId { return a.chainID }

func (a *Adapter) DeriveAddress(ctx context.Context, key domain.SignatureKey) (string, error) {
	pub, err := a.signer.PublicKey(ctx, key)
	if err != nil {
		return "", fmt.Errorf("derive evm address: %w", err)
	}
	return evmAddressFromPubkey(pub), nil
}

func (a *Adapter) ReadBalance(ctx context.Context, address string) (float64, error) {
	if v, ok := a.balanceCache.get(address); ok {
		return v, nil
	}
	res, err := a.consensus.Request(ctx, chainadapter.MethodBalance, []interface{}{address})
	if err != nil {
		return 0, fmt.Errorf("read evm balance: %w", err)
	}
	v, ok := toFloat(res)
	if !ok {
		return 0, fmt.Errorf("read evm balance: non-numeric consensus result")
	}
	a.balanceCache.set(address, v)
	return v, nil
}

// ReadCursor returns the pending-tag nonce. Successive calls within one
// pass do not hit the chain again — they return the locally incremented
// value (§5). SyncCursor forces a chain re-read; nothing in this adapter
// calls it.
func (a *Adapter) ReadCursor(ctx context.Context, address string) (chainadapter.ChainCursor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next, ok := a.nonces[address]
	if !ok {
		res, err := a.consensus.Request(ctx, chainadapter.MethodNonce, []interface{}{address, "pending"})
		if err != nil {
			return chainadapter.ChainCursor{}, fmt.Errorf("read evm nonce: %w", err)
		}
		f, ok := toFloat(res)
		if !ok {
			return chainadapter.ChainCursor{}, fmt.Errorf("read evm nonce: non-numeric consensus result")
		}
		next = uint64(f)
	}
	a.nonces[address] = next + 1
	n := next
	return chainadapter.ChainCursor{EVMNonce: &n}, nil
}

// SyncCursor re-reads the nonce from the chain, discarding the local
// counter. Broadcast does not call it; a caller that sees a "nonce too
// low" rejection has to call it itself.
func (a *Adapter) SyncCursor(ctx context.Context, address string) error {
	res, err := a.consensus.Request(ctx, chainadapter.MethodNonce, []interface{}{address, "pending"})
	if err != nil {
		return fmt.Errorf("sync evm nonce: %w", err)
	}
	f, ok := toFloat(res)
	if !ok {
		return fmt.Errorf("sync evm nonce: non-numeric consensus result")
	}
	a.mu.Lock()
	a.nonces[address] = uint64(f)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) EstimateFee(ctx context.Context, spec chainadapter.TxSpec, priority chainadapter.FeePriority) (chainadapter.FeeEstimate, error) {
	gasPriceRes, err := a.consensus.Request(ctx, chainadapter.MethodGasPrice, nil)
	if err != nil {
		return chainadapter.FeeEstimate{}, fmt.Errorf("estimate evm fee: gas price: %w", err)
	}
	gasPrice, _ := toFloat(gasPriceRes)

	unitsRes, err := a.consensus.Request(ctx, chainadapter.MethodGasEstimate, []interface{}{spec})
	if err != nil {
		return chainadapter.FeeEstimate{}, fmt.Errorf("estimate evm fee: gas estimate: %w", err)
	}
	units, _ := toFloat(unitsRes)

	info, _ := spec.ChainID.Info()
	est := chainadapter.FeeEstimate{
		PerUnitPrice:       gasPrice,
		Units:              uint64(units),
		TotalNative:        gasPrice * units,
		EstimatedConfirmIn: time.Duration(info.AvgBlockTimeSecs) * time.Second,
	}
	est.LegacyGasPrice = gasPrice
	if info.SupportsEIP1559 {
		est.MaxFeePerGas = gasPrice * priorityMultiplier(priority)
		est.MaxPriorityFee = gasPrice * 0.1
		est.Authoritative = "1559"
	} else {
		est.Authoritative = "legacy"
	}
	return est, nil
}

func priorityMultiplier(p chainadapter.FeePriority) float64 {
	switch p {
	case chainadapter.FeePriorityLow:
		return 1.0
	case chainadapter.FeePriorityHigh:
		return 1.5
	default:
		return 1.2
	}
}

// BuildUnsigned deterministically serializes spec and computes the
// canonical pre-image hash: EIP-155 for legacy transactions, EIP-1559
// typed hash when the fee estimate names "1559" as authoritative (§4.7).
func (a *Adapter) BuildUnsigned(ctx context.Context, spec chainadapter.TxSpec) (chainadapter.UnsignedTx, error) {
	serialized := serializeEVMTx(spec)
	var preimage []byte
	if spec.Fee.Authoritative == "1559" {
		preimage = eip1559Preimage(spec)
	} else {
		preimage = eip155Preimage(spec)
	}
	return chainadapter.UnsignedTx{
		ChainID:      spec.ChainID,
		Serialized:   serialized,
		PreimageHash: preimage,
	}, nil
}

func (a *Adapter) Sign(ctx context.Context, tx chainadapter.UnsignedTx, key domain.SignatureKey) (chainadapter.SignedTx, error) {
	unlock := a.locks.Lock(key.DerivationPath)
	defer unlock()

	sig, err := a.signer.Sign(ctx, tx.PreimageHash, key)
	if err != nil {
		return chainadapter.SignedTx{}, fmt.Errorf("sign evm tx: %w", err)
	}
	raw := append(append([]byte{}, tx.Serialized...), sig...)
	return chainadapter.SignedTx{Unsigned: tx, Signature: sig, Raw: raw}, nil
}

func (a *Adapter) Broadcast(ctx context.Context, tx chainadapter.SignedTx) (chainadapter.TxId, error) {
	id := txIDFromRaw(tx.Raw)
	res, err := a.consensus.Request(ctx, chainadapter.MethodSendRawTransaction, []interface{}{tx.Raw})
	if err != nil {
		if inc, ok := err.(*chainadapter.Inconsistent); ok {
			return "", fmt.Errorf("broadcast rejected: providers disagree on send_raw_transaction: %w", inc)
		}
		return "", fmt.Errorf("broadcast evm tx: %w", err)
	}
	_ = res
	return id, nil
}

func txIDFromRaw(raw []byte) chainadapter.TxId {
	h := crypto.Keccak256(raw)
	return chainadapter.TxId(fmt.Sprintf("0x%x", h))
}

func serializeEVMTx(spec chainadapter.TxSpec) []byte {
	var nonce uint64
	if spec.Cursor.EVMNonce != nil {
		nonce = *spec.Cursor.EVMNonce
	}
	if spec.Fee.Authoritative == "1559" {
		return []byte(fmt.Sprintf("%s|%s|%s|%x|%d|%x|%x", spec.From, spec.To, spec.AmountWei, spec.Data,
			nonce, math.Float64bits(spec.Fee.MaxFeePerGas), math.Float64bits(spec.Fee.MaxPriorityFee)))
	}
	return []byte(fmt.Sprintf("%s|%s|%s|%x|%d|%x", spec.From, spec.To, spec.AmountWei, spec.Data,
		nonce, math.Float64bits(spec.Fee.LegacyGasPrice)))
}

func eip155Preimage(spec chainadapter.TxSpec) []byte {
	return crypto.Keccak256(append(serializeEVMTx(spec), byte(0x00)))
}

func eip1559Preimage(spec chainadapter.TxSpec) []byte {
	return crypto.Keccak256(append(serializeEVMTx(spec), byte(0x02)))
}

// evmAddressFromPubkey derives the 20-byte EVM address as the low 20
// bytes of the Keccak-256 hash of the uncompressed public key, per the
// standard Ethereum address derivation rule.
func evmAddressFromPubkey(pub []byte) string {
	h := crypto.Keccak256(pub)
	return fmt.Sprintf("0x%x", h[12:])
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]ttlEntry
}

type ttlEntry struct {
	value     float64
	expiresAt time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{ttl: ttl, entries: make(map[string]ttlEntry)}
}

func (c *ttlCache) get(key string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return 0, false
	}
	return e.value, true
}

func (c *ttlCache) set(key string, v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry{value: v, expiresAt: time.Now().Add(c.ttl)}
}
