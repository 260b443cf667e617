package domain

// ChainId identifies a supported network. Each variant carries the static
// facts the chain adapter layer and fee model need; dynamic state (balances,
// nonces) never lives here.
type ChainId string

const (
	ChainBitcoin  ChainId = "bitcoin"
	ChainEthereum ChainId = "ethereum"
	ChainArbitrum ChainId = "arbitrum"
	ChainOptimism ChainId = "optimism"
	ChainPolygon  ChainId = "polygon"
	ChainBase     ChainId = "base"
	ChainAvalanche ChainId = "avalanche"
	ChainBNB      ChainId = "bnb"
	ChainSonic    ChainId = "sonic"
	ChainSolana   ChainId = "solana"
)

// ChainCategory groups chains by settlement/adapter family.
type ChainCategory string

const (
	CategoryL1        ChainCategory = "l1"
	CategoryL2        ChainCategory = "l2"
	CategorySidechain ChainCategory = "sidechain"
	CategoryUTXO      ChainCategory = "utxo"
	CategoryNonEVM    ChainCategory = "non_evm"
)

// ChainInfo is the static metadata for a ChainId.
type ChainInfo struct {
	ID                ChainId
	NumericChainID    uint64 // 0 for non-EVM chains
	NativeSymbol      string
	Category          ChainCategory
	AvgBlockTimeSecs  float64
	SupportsEIP1559   bool
}

var chainRegistry = map[ChainId]ChainInfo{
	ChainBitcoin:  {ChainBitcoin, 0, "BTC", CategoryUTXO, 600, false},
	ChainEthereum: {ChainEthereum, 1, "ETH", CategoryL1, 12, true},
	ChainArbitrum: {ChainArbitrum, 42161, "ETH", CategoryL2, 0.25, true},
	ChainOptimism: {ChainOptimism, 10, "ETH", CategoryL2, 2, true},
	ChainPolygon:  {ChainPolygon, 137, "MATIC", CategorySidechain, 2, true},
	ChainBase:     {ChainBase, 8453, "ETH", CategoryL2, 2, true},
	ChainAvalanche: {ChainAvalanche, 43114, "AVAX", CategoryL1, 2, true},
	ChainBNB:      {ChainBNB, 56, "BNB", CategoryL1, 3, false},
	ChainSonic:    {ChainSonic, 146, "S", CategoryL1, 1, true},
	ChainSolana:   {ChainSolana, 0, "SOL", CategoryNonEVM, 0.4, false},
}

// Info returns the static metadata for id, or the zero value and false if
// the chain is unregistered.
func (id ChainId) Info() (ChainInfo, bool) {
	info, ok := chainRegistry[id]
	return info, ok
}

// IsEVM reports whether id is served by the EVM chain adapter family.
func (id ChainId) IsEVM() bool {
	info, ok := id.Info()
	if !ok {
		return false
	}
	return info.Category == CategoryL1 && id != ChainBitcoin ||
		info.Category == CategoryL2 || info.Category == CategorySidechain
}

// TransactionType is the shape of a transaction for fee/complexity modeling
// (§4.7 best-path chain selection).
type TransactionType string

const (
	TxSimpleTransfer TransactionType = "simple_transfer"
	TxTokenTransfer  TransactionType = "token_transfer"
	TxDEXSwap        TransactionType = "dex_swap"
	TxLending        TransactionType = "lending"
	TxNFT            TransactionType = "nft"
	TxContractDeploy TransactionType = "contract_deploy"
	TxComplexDeFi    TransactionType = "complex_defi"
)

// ComplexityFactor is the per-type multiplier applied to base fee estimates
// in the best-path chain selection algorithm (§4.7).
func (t TransactionType) ComplexityFactor() float64 {
	switch t {
	case TxSimpleTransfer:
		return 1
	case TxTokenTransfer:
		return 2.5
	case TxDEXSwap:
		return 4
	case TxLending:
		return 3.5
	case TxNFT:
		return 2
	case TxContractDeploy:
		return 10
	case TxComplexDeFi:
		return 6
	default:
		return 1
	}
}

// SupportsTransactionType reports whether the named chain category can
// carry the given transaction type. Simple and token transfers are
// supported everywhere; lending/DEX/complex-DeFi is a named subset.
func (id ChainId) SupportsTransactionType(t TransactionType) bool {
	switch t {
	case TxSimpleTransfer, TxTokenTransfer:
		return true
	case TxDEXSwap, TxLending, TxComplexDeFi, TxNFT, TxContractDeploy:
		return id != ChainBitcoin
	default:
		return false
	}
}
