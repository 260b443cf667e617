package protocoladapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/flowforge/strategy-engine/internal/chainadapter"
	"github.com/flowforge/strategy-engine/internal/domain"
)

// routerABIJSON is the minimal Uniswap V2-shaped router ABI fragment this
// adapter packs swap calldata against, grounded on the teacher's
// UniswapClient.loadABIs router fragment (simplified to the V2
// path-based swap rather than V3's tuple-struct exactInputSingle, since
// every router this adapter fronts — 1inch, Jupiter, Raydium — quotes a
// simple in/out/path rather than a concentrated-liquidity position).
const routerABIJSON = `[
	{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

var routerABI abi.ABI

func init() {
	var err error
	routerABI, err = abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		panic(fmt.Sprintf("protocoladapter: invalid router ABI fragment: %v", err))
	}
}

// swapDeadline is how far out a built swap's on-chain deadline is set,
// generalized from the teacher's per-call deadline parameters.
const swapDeadline = 5 * time.Minute

// SwapQuote is a DEX aggregator's answer to "how much TokenOut for
// AmountIn TokenIn", generalized from the teacher's 1inch/Jupiter/Raydium
// client response shapes into one chain-neutral struct.
type SwapQuote struct {
	AmountOutUSD float64
	PriceImpact  float64 // fraction, e.g. 0.004 = 0.4%
	RouterAddr   string
}

// QuoteSource is the DEX aggregator collaborator contract: given a token
// pair and a USD amount, return the best available swap quote. Each
// concrete router (Uniswap, 1inch, Jupiter, Raydium) gets its own
// QuoteSource implementation outside this package; this adapter only
// knows how to turn a quote into a TxSpec.
type QuoteSource interface {
	Quote(ctx context.Context, tokenIn, tokenOut string, amountUSD float64) (SwapQuote, error)
}

// DEXAdapter implements ProtocolAdapter for swap-shaped protocols,
// generalized from the teacher's per-aggregator DEX clients
// (oneinch_client.go, jupiter.go, raydium.go): those hard-coded one HTTP
// API per router; here the HTTP concern moves behind QuoteSource and this
// adapter only builds the resulting TxSpec.
type DEXAdapter struct {
	logger   *zap.Logger
	protocol domain.Protocol
	chain    domain.ChainId
	router   string
	quotes   QuoteSource
}

// NewDEXAdapter builds a swap-protocol adapter for one (protocol, chain)
// pair routed through a fixed router contract address.
func NewDEXAdapter(logger *zap.Logger, protocol domain.Protocol, chain domain.ChainId, router string, quotes QuoteSource) *DEXAdapter {
	return &DEXAdapter{logger: logger, protocol: protocol, chain: chain, router: router, quotes: quotes}
}

func (a *DEXAdapter) Protocol() domain.Protocol { return a.protocol }
func (a *DEXAdapter) ChainID() domain.ChainId   { return a.chain }

func (a *DEXAdapter) BuildTx(ctx context.Context, from string, spec ActionSpec) (chainadapter.TxSpec, error) {
	if spec.Action != "swap" {
		return chainadapter.TxSpec{}, fmt.Errorf("dex adapter: unsupported action %q", spec.Action)
	}
	quote, err := a.quotes.Quote(ctx, spec.TokenIn, spec.TokenOut, spec.AmountUSD)
	if err != nil {
		return chainadapter.TxSpec{}, fmt.Errorf("dex adapter: quote: %w", err)
	}
	if quote.AmountOutUSD < spec.MinOutUSD {
		return chainadapter.TxSpec{}, fmt.Errorf("dex adapter: quoted output %.2f below minimum %.2f", quote.AmountOutUSD, spec.MinOutUSD)
	}
	router := quote.RouterAddr
	if router == "" {
		router = a.router
	}

	tokenIn, err := resolveTokenAddress(spec.TokenIn, spec.ExtraData, "tokenInAddress")
	if err != nil {
		return chainadapter.TxSpec{}, fmt.Errorf("dex adapter: %w", err)
	}
	tokenOut, err := resolveTokenAddress(spec.TokenOut, spec.ExtraData, "tokenOutAddress")
	if err != nil {
		return chainadapter.TxSpec{}, fmt.Errorf("dex adapter: %w", err)
	}
	recipient := common.HexToAddress(from)
	amountIn := usdToTokenAmount(spec.AmountUSD)
	amountOutMin := usdToTokenAmount(spec.MinOutUSD)
	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())

	calldata, err := routerABI.Pack("swapExactTokensForTokens", amountIn, amountOutMin, []common.Address{tokenIn, tokenOut}, recipient, deadline)
	if err != nil {
		return chainadapter.TxSpec{}, fmt.Errorf("dex adapter: encode swap calldata: %w", err)
	}

	return chainadapter.TxSpec{
		From:      from,
		To:        router,
		Data:      calldata,
		ChainID:   a.chain,
		AmountWei: "0",
	}, nil
}

func (a *DEXAdapter) QuoteUSD(ctx context.Context, spec ActionSpec) (float64, error) {
	quote, err := a.quotes.Quote(ctx, spec.TokenIn, spec.TokenOut, spec.AmountUSD)
	if err != nil {
		return 0, fmt.Errorf("dex adapter quote: %w", err)
	}
	return quote.AmountOutUSD, nil
}
