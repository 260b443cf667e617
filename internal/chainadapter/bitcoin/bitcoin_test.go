package bitcoin

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"
	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/pkg/bitcoin/address"
	"github.com/flowforge/strategy-engine/pkg/bitcoin/sec"
)

// mnemonicSigner derives one deterministic secp256k1 keypair from a
// BIP-39 mnemonic's seed, standing in for the threshold-signature
// SignerClient in tests — a fixed, reproducible test vector instead of a
// random key, so a derivation regression is caught deterministically.
type mnemonicSigner struct {
	pub []byte
}

func newMnemonicSigner(t *testing.T, mnemonic string) *mnemonicSigner {
	t.Helper()
	require.True(t, bip39.IsMnemonicValid(mnemonic))
	seed := bip39.NewSeed(mnemonic, "")

	priv := new(big.Int).SetBytes(seed[:32])
	pub, err := sec.PublicKeyFromPrivateKey(priv, true)
	require.NoError(t, err)
	return &mnemonicSigner{pub: pub}
}

func (s *mnemonicSigner) PublicKey(ctx context.Context, key domain.SignatureKey) ([]byte, error) {
	return s.pub, nil
}
func (s *mnemonicSigner) Sign(ctx context.Context, digest []byte, key domain.SignatureKey) ([]byte, error) {
	return nil, nil
}

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestDeriveAddressFromMnemonicSeedProducesValidMainnetAddress(t *testing.T) {
	signer := newMnemonicSigner(t, testMnemonic)
	adapter := NewAdapter(zap.NewNop(), false, nil, signer)

	addr, err := adapter.DeriveAddress(context.Background(), domain.SignatureKey{KeyName: "k"})
	require.NoError(t, err)

	require.True(t, address.IsValid(addr))
	require.True(t, address.GetAddressNetwork(addr) == "mainnet" || address.GetAddressNetwork(addr) == "")
}

func TestDeriveAddressIsDeterministicAcrossCalls(t *testing.T) {
	signer := newMnemonicSigner(t, testMnemonic)
	adapter := NewAdapter(zap.NewNop(), false, nil, signer)

	first, err := adapter.DeriveAddress(context.Background(), domain.SignatureKey{KeyName: "k"})
	require.NoError(t, err)
	second, err := adapter.DeriveAddress(context.Background(), domain.SignatureKey{KeyName: "k"})
	require.NoError(t, err)

	require.Equal(t, first, second)
}
