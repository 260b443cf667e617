package protocoladapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/domain"
)

type fakePriceQuoter struct {
	prices map[string]float64
}

func (f *fakePriceQuoter) PriceUSD(ctx context.Context, tokenSymbol string) (float64, error) {
	return f.prices[tokenSymbol], nil
}

const testAsset = "0x1111111111111111111111111111111111111111"
const testFrom = "0x2222222222222222222222222222222222222222"

func TestLendingAdapterBuildTxEncodesSupplyViaPoolABI(t *testing.T) {
	a := NewLendingAdapter(zap.NewNop(), domain.ProtocolAave, domain.ChainEthereum, ContractSet{Pool: "0xpool"}, &fakePriceQuoter{})
	spec := ActionSpec{Action: "supply", TokenIn: testAsset, AmountUSD: 100}

	tx, err := a.BuildTx(context.Background(), testFrom, spec)
	require.NoError(t, err)
	assert.Equal(t, "0xpool", tx.To)

	method, err := poolABI.MethodById(tx.Data[:4])
	require.NoError(t, err)
	assert.Equal(t, "supply", method.Name)

	args, err := method.Inputs.Unpack(tx.Data[4:])
	require.NoError(t, err)
	require.Len(t, args, 4)
}

func TestLendingAdapterBuildTxRejectsUnresolvableToken(t *testing.T) {
	a := NewLendingAdapter(zap.NewNop(), domain.ProtocolAave, domain.ChainEthereum, ContractSet{Pool: "0xpool"}, &fakePriceQuoter{})
	spec := ActionSpec{Action: "supply", TokenIn: "USDC", AmountUSD: 100}

	_, err := a.BuildTx(context.Background(), testFrom, spec)
	assert.Error(t, err)
}

func TestLendingAdapterBuildTxResolvesTokenFromExtraData(t *testing.T) {
	a := NewLendingAdapter(zap.NewNop(), domain.ProtocolAave, domain.ChainEthereum, ContractSet{Pool: "0xpool"}, &fakePriceQuoter{})
	spec := ActionSpec{
		Action:    "withdraw",
		TokenIn:   "USDC",
		AmountUSD: 50,
		ExtraData: map[string]string{"tokenInAddress": testAsset},
	}

	tx, err := a.BuildTx(context.Background(), testFrom, spec)
	require.NoError(t, err)
	assert.NotEmpty(t, tx.Data)
}

func TestLendingAdapterBuildTxDiffersByAction(t *testing.T) {
	a := NewLendingAdapter(zap.NewNop(), domain.ProtocolAave, domain.ChainEthereum, ContractSet{Pool: "0xpool"}, &fakePriceQuoter{})
	supply := ActionSpec{Action: "supply", TokenIn: testAsset, AmountUSD: 100}
	borrow := ActionSpec{Action: "borrow", TokenIn: testAsset, AmountUSD: 100}

	supplyTx, err := a.BuildTx(context.Background(), testFrom, supply)
	require.NoError(t, err)
	borrowTx, err := a.BuildTx(context.Background(), testFrom, borrow)
	require.NoError(t, err)

	assert.NotEqual(t, supplyTx.Data[:4], borrowTx.Data[:4], "different actions must select different method selectors")
}

func TestLendingAdapterQuoteUSDPassesThroughAmount(t *testing.T) {
	a := NewLendingAdapter(zap.NewNop(), domain.ProtocolAave, domain.ChainEthereum, ContractSet{Pool: "0xpool"}, &fakePriceQuoter{prices: map[string]float64{"USDC": 1.0}})
	amount, err := a.QuoteUSD(context.Background(), ActionSpec{TokenIn: "USDC", AmountUSD: 250})
	require.NoError(t, err)
	assert.Equal(t, 250.0, amount)
}
