package solana

import (
	"context"
	"testing"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/strategy-engine/internal/chainadapter"
)

func testSpec(t *testing.T, blockhash string, lamports string) chainadapter.TxSpec {
	t.Helper()
	from := sdk.NewWallet().PublicKey()
	to := sdk.NewWallet().PublicKey()
	return chainadapter.TxSpec{
		From:      from.String(),
		To:        to.String(),
		AmountWei: lamports,
		Cursor:    chainadapter.ChainCursor{SolanaBlockhash: blockhash},
	}
}

func distinctBlockhashes() (string, string) {
	return sdk.NewWallet().PublicKey().String(), sdk.NewWallet().PublicKey().String()
}

func TestBuildUnsignedPreimageDiffersByBlockhash(t *testing.T) {
	bh1, bh2 := distinctBlockhashes()
	adapter := &Adapter{}

	spec1 := testSpec(t, bh1, "1000")
	spec1.To = spec1.To // keep the same recipient/amount across both specs
	spec2 := spec1
	spec2.Cursor.SolanaBlockhash = bh2

	unsigned1, err := adapter.BuildUnsigned(context.Background(), spec1)
	require.NoError(t, err)
	unsigned2, err := adapter.BuildUnsigned(context.Background(), spec2)
	require.NoError(t, err)

	assert.NotEqual(t, unsigned1.PreimageHash, unsigned2.PreimageHash, "transactions built against different blockhashes must not share a pre-image")
	assert.NotEqual(t, unsigned1.Serialized, unsigned2.Serialized)
}

func TestBuildUnsignedPreimageDiffersByAmount(t *testing.T) {
	bh, _ := distinctBlockhashes()
	adapter := &Adapter{}

	spec1 := testSpec(t, bh, "1000")
	spec2 := spec1
	spec2.AmountWei = "2000"

	unsigned1, err := adapter.BuildUnsigned(context.Background(), spec1)
	require.NoError(t, err)
	unsigned2, err := adapter.BuildUnsigned(context.Background(), spec2)
	require.NoError(t, err)

	assert.NotEqual(t, unsigned1.PreimageHash, unsigned2.PreimageHash)
}

func TestBuildUnsignedPreimageIsDeterministic(t *testing.T) {
	bh, _ := distinctBlockhashes()
	adapter := &Adapter{}
	spec := testSpec(t, bh, "1000")

	first, err := adapter.BuildUnsigned(context.Background(), spec)
	require.NoError(t, err)
	second, err := adapter.BuildUnsigned(context.Background(), spec)
	require.NoError(t, err)

	assert.Equal(t, first.PreimageHash, second.PreimageHash)
}
