// Package bitcoin implements the chain adapter for Bitcoin's UTXO model.
// It has no nonce/blockhash cursor; ReadCursor instead refreshes the
// address's UTXO set. Address derivation, transaction building and
// signature pre-images are built on this module's Bitcoin primitives
// (address, script, sec, transaction).
package bitcoin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/chainadapter"
	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/pkg/bitcoin/address"
	"github.com/flowforge/strategy-engine/pkg/bitcoin/script"
	"github.com/flowforge/strategy-engine/pkg/bitcoin/sec"
	"github.com/flowforge/strategy-engine/pkg/bitcoin/transaction"
)

// UTXOSource is the Bitcoin RPC collaborator contract (§6.3): network
// read, UTXO set, broadcast. Consumed as an interface — no production
// transport ships in this package.
type UTXOSource interface {
	ListUnspent(ctx context.Context, addr string) ([]*transaction.UTXO, error)
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)
	EstimateFeePerByte(ctx context.Context, priority chainadapter.FeePriority) (uint64, error)
}

// Adapter implements chainadapter.Adapter over the Bitcoin UTXO model.
type Adapter struct {
	logger  *zap.Logger
	testnet bool
	source  UTXOSource
	signer  chainadapter.SignerClient
	locks   *chainadapter.PathLocks

	mu        sync.Mutex
	utxoCache map[string]utxoCacheEntry
}

type utxoCacheEntry struct {
	utxos     []*transaction.UTXO
	expiresAt time.Time
}

// pendingBuild is the unsigned-tx context BuildUnsigned stashes so Sign
// can assemble the final scriptSig. It is round-tripped through
// UnsignedTx.Serialized, which callers must treat as this adapter's
// internal representation, not wire bytes, until Sign/Broadcast run.
type pendingBuild struct {
	tx      *transaction.Transaction
	utxo    *transaction.UTXO
	address string
}

var pendingMu sync.Mutex
var pendingByHash = map[string]pendingBuild{}

// NewAdapter builds a Bitcoin adapter. testnet selects address/version
// byte formatting.
func NewAdapter(logger *zap.Logger, testnet bool, source UTXOSource, signer chainadapter.SignerClient) *Adapter {
	return &Adapter{
		logger:    logger,
		testnet:   testnet,
		source:    source,
		signer:    signer,
		locks:     &chainadapter.PathLocks{},
		utxoCache: make(map[string]utxoCacheEntry),
	}
}

func (a *Adapter) ChainID() domain.ChainId { return domain.ChainBitcoin }

func (a *Adapter) DeriveAddress(ctx context.Context, key domain.SignatureKey) (string, error) {
	pub, err := a.signer.PublicKey(ctx, key)
	if err != nil {
		return "", fmt.Errorf("derive bitcoin address: %w", err)
	}
	point, err := sec.DecodePublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("derive bitcoin address: decode pubkey: %w", err)
	}
	return address.PublicKeyToP2PKHAddress(point, a.testnet), nil
}

func (a *Adapter) ReadBalance(ctx context.Context, addr string) (float64, error) {
	utxos, err := a.unspentCached(ctx, addr)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, u := range utxos {
		total += u.Amount
	}
	return float64(total) / 1e8, nil
}

// ReadCursor has no nonce/blockhash analogue for Bitcoin; it refreshes
// and returns the UTXO-backed cursor as a no-op ChainCursor, matching
// §4.7's "Bitcoin n/a (UTXO list)".
func (a *Adapter) ReadCursor(ctx context.Context, addr string) (chainadapter.ChainCursor, error) {
	if _, err := a.unspentCached(ctx, addr); err != nil {
		return chainadapter.ChainCursor{}, err
	}
	return chainadapter.ChainCursor{}, nil
}

func (a *Adapter) unspentCached(ctx context.Context, addr string) ([]*transaction.UTXO, error) {
	a.mu.Lock()
	if e, ok := a.utxoCache[addr]; ok && time.Now().Before(e.expiresAt) {
		a.mu.Unlock()
		return e.utxos, nil
	}
	a.mu.Unlock()

	utxos, err := a.source.ListUnspent(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("list unspent: %w", err)
	}
	a.mu.Lock()
	a.utxoCache[addr] = utxoCacheEntry{utxos: utxos, expiresAt: time.Now().Add(60 * time.Second)}
	a.mu.Unlock()
	return utxos, nil
}

func (a *Adapter) EstimateFee(ctx context.Context, spec chainadapter.TxSpec, priority chainadapter.FeePriority) (chainadapter.FeeEstimate, error) {
	perByte, err := a.source.EstimateFeePerByte(ctx, priority)
	if err != nil {
		return chainadapter.FeeEstimate{}, fmt.Errorf("estimate bitcoin fee: %w", err)
	}
	const estimatedSize = 225 // typical 1-in-2-out P2PKH
	return chainadapter.FeeEstimate{
		PerUnitPrice:       float64(perByte),
		Units:              estimatedSize,
		TotalNative:        float64(perByte*estimatedSize) / 1e8,
		EstimatedConfirmIn: 10 * time.Minute,
		Authoritative:      "legacy",
	}, nil
}

// BuildUnsigned builds a single-input P2PKH transaction spending the
// first cached UTXO and computes the legacy signature pre-image for that
// input (§4.7: BIP-143 applies to SegWit inputs; this adapter targets
// P2PKH, so it uses the pre-SegWit sighash algorithm).
func (a *Adapter) BuildUnsigned(ctx context.Context, spec chainadapter.TxSpec) (chainadapter.UnsignedTx, error) {
	utxos, err := a.unspentCached(ctx, spec.From)
	if err != nil {
		return chainadapter.UnsignedTx{}, err
	}
	if len(utxos) == 0 {
		return chainadapter.UnsignedTx{}, fmt.Errorf("build unsigned bitcoin tx: no spendable utxos for %s", spec.From)
	}
	utxo := utxos[0]

	amount, err := parseSatoshis(spec.AmountWei)
	if err != nil {
		return chainadapter.UnsignedTx{}, fmt.Errorf("build unsigned bitcoin tx: %w", err)
	}
	feePerByte, err := a.source.EstimateFeePerByte(ctx, chainadapter.FeePriorityStandard)
	if err != nil {
		return chainadapter.UnsignedTx{}, fmt.Errorf("build unsigned bitcoin tx: fee: %w", err)
	}

	builder := transaction.NewTransactionBuilder()
	builder.AddInput(utxo.TxHash, utxo.OutputIndex, utxo)
	if err := builder.AddOutput(spec.To, amount); err != nil {
		return chainadapter.UnsignedTx{}, fmt.Errorf("build unsigned bitcoin tx: %w", err)
	}
	fee := builder.CalculateFee(feePerByte)
	builder.SetFee(fee)
	if change := utxo.Amount - amount - fee; change > 0 {
		if err := builder.AddOutput(utxo.Address, change); err != nil {
			return chainadapter.UnsignedTx{}, fmt.Errorf("build unsigned bitcoin tx: change output: %w", err)
		}
	}

	tx, err := builder.Build()
	if err != nil {
		return chainadapter.UnsignedTx{}, fmt.Errorf("build unsigned bitcoin tx: %w", err)
	}

	preimage, err := tx.SignatureHash(0, utxo.ScriptPubKey, transaction.SighashAll)
	if err != nil {
		return chainadapter.UnsignedTx{}, fmt.Errorf("build unsigned bitcoin tx: signature hash: %w", err)
	}

	key := fmt.Sprintf("%x", preimage)
	pendingMu.Lock()
	pendingByHash[key] = pendingBuild{tx: tx, utxo: utxo, address: spec.From}
	pendingMu.Unlock()

	return chainadapter.UnsignedTx{
		ChainID:      domain.ChainBitcoin,
		Serialized:   tx.Serialize(),
		PreimageHash: preimage,
	}, nil
}

func (a *Adapter) Sign(ctx context.Context, tx chainadapter.UnsignedTx, key domain.SignatureKey) (chainadapter.SignedTx, error) {
	unlock := a.locks.Lock(key.DerivationPath)
	defer unlock()

	sig, err := a.signer.Sign(ctx, tx.PreimageHash, key)
	if err != nil {
		return chainadapter.SignedTx{}, fmt.Errorf("sign bitcoin tx: %w", err)
	}
	pub, err := a.signer.PublicKey(ctx, key)
	if err != nil {
		return chainadapter.SignedTx{}, fmt.Errorf("sign bitcoin tx: %w", err)
	}
	point, err := sec.DecodePublicKey(pub)
	if err != nil {
		return chainadapter.SignedTx{}, fmt.Errorf("sign bitcoin tx: decode pubkey: %w", err)
	}

	pendingMu.Lock()
	pending, ok := pendingByHash[fmt.Sprintf("%x", tx.PreimageHash)]
	delete(pendingByHash, fmt.Sprintf("%x", tx.PreimageHash))
	pendingMu.Unlock()
	if !ok {
		return chainadapter.SignedTx{}, fmt.Errorf("sign bitcoin tx: no matching unsigned build for this pre-image")
	}

	scriptSig := script.CreateP2PKHScriptSig(append(append([]byte{}, sig...), byte(transaction.SighashAll)), point)
	pending.tx.TxIns[0].ScriptSig = scriptSig

	return chainadapter.SignedTx{Unsigned: tx, Signature: sig, Raw: pending.tx.Serialize()}, nil
}

func (a *Adapter) Broadcast(ctx context.Context, tx chainadapter.SignedTx) (chainadapter.TxId, error) {
	txid, err := a.source.SendRawTransaction(ctx, tx.Raw)
	if err != nil {
		return "", fmt.Errorf("broadcast bitcoin tx: %w", err)
	}
	return chainadapter.TxId(txid), nil
}

func parseSatoshis(amount string) (uint64, error) {
	var sats uint64
	if _, err := fmt.Sscanf(amount, "%d", &sats); err != nil {
		return 0, fmt.Errorf("parse satoshi amount %q: %w", amount, err)
	}
	return sats, nil
}
