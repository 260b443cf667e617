package protocoladapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/chainadapter"
	"github.com/flowforge/strategy-engine/internal/domain"
)

// poolABIJSON is the minimal Aave V3 Pool ABI fragment covering the four
// actions this adapter builds calldata for, grounded on the teacher's
// AaveClient.loadABIs pool fragment.
const poolABIJSON = `[
	{"inputs":[{"internalType":"address","name":"asset","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"address","name":"onBehalfOf","type":"address"},{"internalType":"uint16","name":"referralCode","type":"uint16"}],"name":"supply","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"address","name":"asset","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"uint256","name":"interestRateMode","type":"uint256"},{"internalType":"uint16","name":"referralCode","type":"uint16"},{"internalType":"address","name":"onBehalfOf","type":"address"}],"name":"borrow","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"address","name":"asset","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"address","name":"to","type":"address"}],"name":"withdraw","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"address","name":"asset","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"uint256","name":"rateMode","type":"uint256"},{"internalType":"address","name":"onBehalfOf","type":"address"}],"name":"repay","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

var poolABI abi.ABI

func init() {
	var err error
	poolABI, err = abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		panic(fmt.Sprintf("protocoladapter: invalid pool ABI fragment: %v", err))
	}
}

// variableRateMode is Aave V3's interestRateMode/rateMode value for
// variable-rate borrows, the only mode this adapter exposes.
const variableRateMode = 2

// usdToTokenAmount converts a USD amount into the token's smallest unit,
// assuming 18 decimals — matching the teacher's AaveClient.LendTokens
// conversion for tokens without an explicit decimals override.
func usdToTokenAmount(amountUSD float64) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(amountUSD), big.NewFloat(1e18))
	amount, _ := scaled.Int(nil)
	return amount
}

// resolveTokenAddress returns the on-chain address for a protocol action's
// token: callers pass it as a 0x-prefixed address directly, or supply it
// under ExtraData["tokenInAddress"]/["tokenOutAddress"] when TokenIn/Out
// names a human-readable symbol instead.
func resolveTokenAddress(token string, extra map[string]string, key string) (common.Address, error) {
	if common.IsHexAddress(token) {
		return common.HexToAddress(token), nil
	}
	if addr, ok := extra[key]; ok && common.IsHexAddress(addr) {
		return common.HexToAddress(addr), nil
	}
	return common.Address{}, fmt.Errorf("no on-chain address resolvable for token %q", token)
}

// ContractSet is the fixed set of on-chain addresses a lending-protocol
// adapter calls into, grounded on the teacher's AaveV3Pool/DataProvider/
// PriceOracle address constants.
type ContractSet struct {
	Pool         string
	DataProvider string
	PriceOracle  string
}

// PriceQuoter resolves a token's USD price, standing in for the price
// oracle aggregator collaborator (§6.5) at the protocol-adapter boundary.
type PriceQuoter interface {
	PriceUSD(ctx context.Context, tokenSymbol string) (float64, error)
}

// LendingAdapter implements ProtocolAdapter for Aave-shaped lending
// protocols (supply/withdraw/borrow/repay), generalized from the
// teacher's AaveClient: the fixed pool/data-provider/oracle address triad
// and ABI-encoded calls survive; per-user private key handling is gone,
// replaced by building an unsigned TxSpec for the chain adapter to sign
// through the threshold-signature collaborator.
type LendingAdapter struct {
	logger    *zap.Logger
	protocol  domain.Protocol
	chain     domain.ChainId
	contracts ContractSet
	prices    PriceQuoter
}

// NewLendingAdapter builds a lending-protocol adapter for one
// (protocol, chain) pair.
func NewLendingAdapter(logger *zap.Logger, protocol domain.Protocol, chain domain.ChainId, contracts ContractSet, prices PriceQuoter) *LendingAdapter {
	return &LendingAdapter{logger: logger, protocol: protocol, chain: chain, contracts: contracts, prices: prices}
}

func (a *LendingAdapter) Protocol() domain.Protocol { return a.protocol }
func (a *LendingAdapter) ChainID() domain.ChainId   { return a.chain }

func (a *LendingAdapter) BuildTx(ctx context.Context, from string, spec ActionSpec) (chainadapter.TxSpec, error) {
	asset, err := resolveTokenAddress(spec.TokenIn, spec.ExtraData, "tokenInAddress")
	if err != nil {
		return chainadapter.TxSpec{}, fmt.Errorf("lending adapter: %w", err)
	}
	onBehalfOf := common.HexToAddress(from)
	amount := usdToTokenAmount(spec.AmountUSD)

	var calldata []byte
	switch spec.Action {
	case "supply":
		calldata, err = poolABI.Pack("supply", asset, amount, onBehalfOf, uint16(0))
	case "withdraw":
		calldata, err = poolABI.Pack("withdraw", asset, amount, onBehalfOf)
	case "borrow":
		calldata, err = poolABI.Pack("borrow", asset, amount, big.NewInt(variableRateMode), uint16(0), onBehalfOf)
	case "repay":
		calldata, err = poolABI.Pack("repay", asset, amount, big.NewInt(variableRateMode), onBehalfOf)
	default:
		return chainadapter.TxSpec{}, fmt.Errorf("lending adapter: unsupported action %q", spec.Action)
	}
	if err != nil {
		return chainadapter.TxSpec{}, fmt.Errorf("lending adapter: encode %s calldata: %w", spec.Action, err)
	}

	return chainadapter.TxSpec{
		From:      from,
		To:        a.contracts.Pool,
		Data:      calldata,
		ChainID:   a.chain,
		AmountWei: "0",
	}, nil
}

// QuoteUSD confirms the priced token still has a live quote and returns
// the action's USD-denominated amount unchanged — spec.AmountUSD is
// already USD, the lookup only guards against a delisted/unpriced token.
func (a *LendingAdapter) QuoteUSD(ctx context.Context, spec ActionSpec) (float64, error) {
	if _, err := a.prices.PriceUSD(ctx, spec.TokenIn); err != nil {
		return 0, fmt.Errorf("lending adapter quote: %w", err)
	}
	return spec.AmountUSD, nil
}
