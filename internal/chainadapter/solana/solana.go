// Package solana implements the chain adapter for Solana, backed by
// gagliardetto/solana-go's RPC client and wire types. Solana has no
// nonce: ReadCursor returns the recent blockhash a transaction must be
// built against, refreshed each call since blockhashes expire quickly.
package solana

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/chainadapter"
	"github.com/flowforge/strategy-engine/internal/domain"
)

// Adapter implements chainadapter.Adapter over a Solana RPC client.
type Adapter struct {
	logger *zap.Logger
	client *rpc.Client
	signer chainadapter.SignerClient
	locks  *chainadapter.PathLocks
}

// NewAdapter builds a Solana adapter against the given JSON-RPC endpoint.
func NewAdapter(logger *zap.Logger, endpoint string, signer chainadapter.SignerClient) *Adapter {
	return &Adapter{
		logger: logger,
		client: rpc.New(endpoint),
		signer: signer,
		locks:  &chainadapter.PathLocks{},
	}
}

func (a *Adapter) ChainID() domain.ChainId { return domain.ChainSolana }

func (a *Adapter) DeriveAddress(ctx context.Context, key domain.SignatureKey) (string, error) {
	pub, err := a.signer.PublicKey(ctx, key)
	if err != nil {
		return "", fmt.Errorf("derive solana address: %w", err)
	}
	if len(pub) != sdk.PublicKeyLength {
		return "", fmt.Errorf("derive solana address: expected %d-byte ed25519 public key, got %d", sdk.PublicKeyLength, len(pub))
	}
	return sdk.PublicKeyFromBytes(pub).String(), nil
}

func (a *Adapter) ReadBalance(ctx context.Context, address string) (float64, error) {
	pub, err := sdk.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("read solana balance: %w", err)
	}
	res, err := a.client.GetBalance(ctx, pub, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("read solana balance: %w", err)
	}
	return float64(res.Value) / float64(sdk.LAMPORTS_PER_SOL), nil
}

// ReadCursor returns the current recent blockhash, which a built
// transaction must reference; there is no nonce to increment.
func (a *Adapter) ReadCursor(ctx context.Context, address string) (chainadapter.ChainCursor, error) {
	res, err := a.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return chainadapter.ChainCursor{}, fmt.Errorf("read solana blockhash: %w", err)
	}
	return chainadapter.ChainCursor{SolanaBlockhash: res.Value.Blockhash.String()}, nil
}

func (a *Adapter) EstimateFee(ctx context.Context, spec chainadapter.TxSpec, priority chainadapter.FeePriority) (chainadapter.FeeEstimate, error) {
	fees, err := a.client.GetFeeForMessage(ctx, spec.Cursor.SolanaBlockhash, rpc.CommitmentConfirmed)
	var lamportsPerSig uint64 = 5000 // Solana's stable base fee, used when the RPC has no message to quote yet
	if err == nil && fees != nil && fees.Value != nil {
		lamportsPerSig = *fees.Value
	}
	return chainadapter.FeeEstimate{
		PerUnitPrice:       float64(lamportsPerSig),
		Units:              1,
		TotalNative:        float64(lamportsPerSig) / float64(sdk.LAMPORTS_PER_SOL),
		EstimatedConfirmIn: 400 * time.Millisecond,
		Authoritative:      "legacy",
	}, nil
}

// BuildUnsigned builds a single system-transfer transaction and returns
// its message bytes as the canonical pre-image to sign (§4.7: "Solana
// message hash").
func (a *Adapter) BuildUnsigned(ctx context.Context, spec chainadapter.TxSpec) (chainadapter.UnsignedTx, error) {
	from, err := sdk.PublicKeyFromBase58(spec.From)
	if err != nil {
		return chainadapter.UnsignedTx{}, fmt.Errorf("build unsigned solana tx: from: %w", err)
	}
	to, err := sdk.PublicKeyFromBase58(spec.To)
	if err != nil {
		return chainadapter.UnsignedTx{}, fmt.Errorf("build unsigned solana tx: to: %w", err)
	}
	lamports, err := parseLamports(spec.AmountWei)
	if err != nil {
		return chainadapter.UnsignedTx{}, fmt.Errorf("build unsigned solana tx: %w", err)
	}
	blockhash, err := sdk.HashFromBase58(spec.Cursor.SolanaBlockhash)
	if err != nil {
		return chainadapter.UnsignedTx{}, fmt.Errorf("build unsigned solana tx: blockhash: %w", err)
	}

	ix := sdk.NewInstruction(
		sdk.SystemProgramID,
		sdk.AccountMetaSlice{
			{PublicKey: from, IsSigner: true, IsWritable: true},
			{PublicKey: to, IsSigner: false, IsWritable: true},
		},
		transferInstructionData(lamports),
	)

	tx, err := sdk.NewTransaction([]sdk.Instruction{ix}, blockhash, sdk.TransactionPayer(from))
	if err != nil {
		return chainadapter.UnsignedTx{}, fmt.Errorf("build unsigned solana tx: %w", err)
	}
	msgBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return chainadapter.UnsignedTx{}, fmt.Errorf("build unsigned solana tx: marshal message: %w", err)
	}

	serialized, err := tx.MarshalBinary()
	if err != nil {
		return chainadapter.UnsignedTx{}, fmt.Errorf("build unsigned solana tx: marshal tx: %w", err)
	}

	return chainadapter.UnsignedTx{
		ChainID:      domain.ChainSolana,
		Serialized:   serialized,
		PreimageHash: msgBytes,
	}, nil
}

func (a *Adapter) Sign(ctx context.Context, unsigned chainadapter.UnsignedTx, key domain.SignatureKey) (chainadapter.SignedTx, error) {
	unlock := a.locks.Lock(key.DerivationPath)
	defer unlock()

	sig, err := a.signer.Sign(ctx, unsigned.PreimageHash, key)
	if err != nil {
		return chainadapter.SignedTx{}, fmt.Errorf("sign solana tx: %w", err)
	}

	var tx sdk.Transaction
	if err := tx.UnmarshalWithDecoder(sdk.NewBinDecoder(unsigned.Serialized)); err != nil {
		return chainadapter.SignedTx{}, fmt.Errorf("sign solana tx: unmarshal: %w", err)
	}
	var signature sdk.Signature
	copy(signature[:], sig)
	if len(tx.Signatures) == 0 {
		tx.Signatures = append(tx.Signatures, signature)
	} else {
		tx.Signatures[0] = signature
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return chainadapter.SignedTx{}, fmt.Errorf("sign solana tx: marshal: %w", err)
	}
	return chainadapter.SignedTx{Unsigned: unsigned, Signature: sig, Raw: raw}, nil
}

func (a *Adapter) Broadcast(ctx context.Context, tx chainadapter.SignedTx) (chainadapter.TxId, error) {
	var decoded sdk.Transaction
	if err := decoded.UnmarshalWithDecoder(sdk.NewBinDecoder(tx.Raw)); err != nil {
		return "", fmt.Errorf("broadcast solana tx: decode: %w", err)
	}
	sig, err := a.client.SendTransactionWithOpts(ctx, &decoded, rpc.TransactionOpts{SkipPreflight: false})
	if err != nil {
		return "", fmt.Errorf("broadcast solana tx: %w", err)
	}
	return chainadapter.TxId(sig.String()), nil
}

func parseLamports(amount string) (uint64, error) {
	var lamports uint64
	if _, err := fmt.Sscanf(amount, "%d", &lamports); err != nil {
		return 0, fmt.Errorf("parse lamports %q: %w", amount, err)
	}
	return lamports, nil
}

// transferInstructionData encodes a System Program Transfer instruction:
// a 4-byte little-endian discriminant (2) followed by an 8-byte
// little-endian lamport amount.
func transferInstructionData(lamports uint64) []byte {
	buf := make([]byte, 12)
	buf[0] = 2
	for i := 0; i < 8; i++ {
		buf[4+i] = byte(lamports >> (8 * i))
	}
	return buf
}
