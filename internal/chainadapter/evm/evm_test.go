package evm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/strategy-engine/internal/chainadapter"
	"github.com/flowforge/strategy-engine/internal/domain"
)

func baseSpec() chainadapter.TxSpec {
	return chainadapter.TxSpec{
		From:      "0xfrom",
		To:        "0xto",
		AmountWei: "1000000000000000000",
		Data:      []byte{0xde, 0xad},
		ChainID:   domain.ChainEthereum,
	}
}

func withNonce(spec chainadapter.TxSpec, n uint64) chainadapter.TxSpec {
	spec.Cursor.EVMNonce = &n
	return spec
}

func TestEIP155PreimageDiffersByNonce(t *testing.T) {
	spec := baseSpec()

	first := eip155Preimage(withNonce(spec, 0))
	second := eip155Preimage(withNonce(spec, 1))

	assert.NotEqual(t, first, second, "two transactions differing only by nonce must not share a pre-image")
}

func TestEIP1559PreimageDiffersByNonce(t *testing.T) {
	spec := baseSpec()
	spec.Fee.Authoritative = "1559"
	spec.Fee.MaxFeePerGas = 50
	spec.Fee.MaxPriorityFee = 2

	first := eip1559Preimage(withNonce(spec, 0))
	second := eip1559Preimage(withNonce(spec, 1))

	assert.NotEqual(t, first, second)
}

func TestEIP1559PreimageDiffersByFee(t *testing.T) {
	spec := baseSpec()
	spec.Fee.Authoritative = "1559"
	spec.Cursor.EVMNonce = new(uint64)

	low := spec
	low.Fee.MaxFeePerGas = 30
	low.Fee.MaxPriorityFee = 1

	high := spec
	high.Fee.MaxFeePerGas = 90
	high.Fee.MaxPriorityFee = 5

	assert.NotEqual(t, eip1559Preimage(low), eip1559Preimage(high))
}

func TestLegacyPreimageDiffersByGasPrice(t *testing.T) {
	spec := baseSpec()
	spec.Cursor.EVMNonce = new(uint64)

	cheap := spec
	cheap.Fee.LegacyGasPrice = 10

	pricey := spec
	pricey.Fee.LegacyGasPrice = 200

	assert.NotEqual(t, eip155Preimage(cheap), eip155Preimage(pricey))
}

func TestBuildUnsignedRoutesToEIP1559WhenAuthoritative(t *testing.T) {
	spec := baseSpec()
	spec.Fee.Authoritative = "1559"
	spec.Fee.MaxFeePerGas = 40
	spec.Fee.MaxPriorityFee = 2
	n := uint64(7)
	spec.Cursor.EVMNonce = &n

	adapter := &Adapter{chainID: domain.ChainEthereum}
	unsigned, err := adapter.BuildUnsigned(nil, spec)
	require.NoError(t, err)

	assert.Equal(t, eip1559Preimage(spec), unsigned.PreimageHash)
	assert.NotEqual(t, eip155Preimage(spec), unsigned.PreimageHash)
}

func TestEvmAddressFromPubkeyIsDeterministic(t *testing.T) {
	pub := []byte("a fake 64-byte uncompressed public key padded out to something")
	first := evmAddressFromPubkey(pub)
	second := evmAddressFromPubkey(pub)
	assert.Equal(t, first, second)
}
