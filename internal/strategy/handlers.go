package strategy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/strategy-engine/internal/chainadapter"
	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/internal/portfolio"
	"github.com/flowforge/strategy-engine/internal/protocoladapter"
)

var (
	errImpermanentLossBreach = errors.New("estimated impermanent loss exceeds max_impermanent_loss_percentage")
	errOpportunityExpired    = errors.New("opportunity expired before execution completed")
	errNoChainAdapter        = errors.New("no chain adapter registered for opportunity's chain")
)

// Deps bundles the collaborators every strategy-type handler needs
// (§4.2): protocol adapters to build transactions, chain adapters to
// sign and broadcast them, and the portfolio store to read/update
// positions. Handlers never hold these themselves — they are supplied
// per call so the engine stays the single owner of wiring.
type Deps struct {
	Protocols *protocoladapter.Registry
	Adapters  map[domain.ChainId]chainadapter.Adapter
	Portfolio *portfolio.Store
	KeyFor    func(chain domain.ChainId, userID string) domain.SignatureKey
}

// Handler implements one StrategyType's declarative contract (§4.2):
// identical (strategy, opportunity) -> (ExecutionResult, error) signature
// regardless of what the handler actually does on-chain.
type Handler interface {
	Handle(ctx context.Context, deps *Deps, strat domain.ActiveStrategy, opp domain.Opportunity, now time.Time) (domain.StrategyExecutionResult, error)
}

// Handlers is the StrategyType -> Handler dispatch table (§4.2).
func Handlers() map[domain.StrategyType]Handler {
	return map[domain.StrategyType]Handler{
		domain.StrategyYieldFarming:    YieldFarmingHandler{},
		domain.StrategyArbitrage:       ArbitrageHandler{},
		domain.StrategyRebalancing:     RebalancingHandler{},
		domain.StrategyLiquidityMining: LiquidityMiningHandler{},
		domain.StrategyDCA:             DCAHandler{},
		domain.StrategyComposite:       CompositeHandler{},
	}
}

// newResult seeds the common fields of a StrategyExecutionResult; each
// handler fills in the action-specific fields.
func newResult(strat domain.ActiveStrategy, opp domain.Opportunity, action domain.ActionType, amountUSD float64, now time.Time) domain.StrategyExecutionResult {
	return domain.StrategyExecutionResult{
		ExecutionID:   uuid.New().String(),
		StrategyID:    strat.ID,
		UserID:        strat.UserID,
		OpportunityID: opp.ID,
		Action:        action,
		AmountUSD:     amountUSD,
		ExecutedAt:    now,
	}
}

// submitAction resolves (opp.Chain, opp.Protocol) to a ProtocolAdapter,
// builds the transaction, signs it via the chain adapter, and
// broadcasts — the same build-sign-broadcast pipeline every handler's
// on-chain action goes through.
func submitAction(ctx context.Context, deps *Deps, userID string, chain domain.ChainId, protocol domain.Protocol, spec protocoladapter.ActionSpec) (domain.ChainTxRef, error) {
	adapter, ok := deps.Adapters[chain]
	if !ok {
		return domain.ChainTxRef{}, domain.NewError(domain.ErrChainExecution, "submitAction", errNoChainAdapter)
	}
	protoAdapter, err := deps.Protocols.Lookup(chain, protocol)
	if err != nil {
		return domain.ChainTxRef{}, domain.NewError(domain.ErrValidation, "submitAction", err)
	}

	key := deps.KeyFor(chain, userID)
	from, err := adapter.DeriveAddress(ctx, key)
	if err != nil {
		return domain.ChainTxRef{}, domain.NewError(domain.ErrChainExecution, "submitAction.DeriveAddress", err)
	}

	txSpec, err := protoAdapter.BuildTx(ctx, from, spec)
	if err != nil {
		return domain.ChainTxRef{}, domain.NewError(domain.ErrValidation, "submitAction.BuildTx", err)
	}

	cursor, err := adapter.ReadCursor(ctx, from)
	if err != nil {
		return domain.ChainTxRef{}, domain.NewError(domain.ErrTransient, "submitAction.ReadCursor", err)
	}
	txSpec.Cursor = cursor

	fee, err := adapter.EstimateFee(ctx, txSpec, chainadapter.FeePriorityStandard)
	if err != nil {
		return domain.ChainTxRef{}, domain.NewError(domain.ErrTransient, "submitAction.EstimateFee", err)
	}
	txSpec.Fee = fee

	unsigned, err := adapter.BuildUnsigned(ctx, txSpec)
	if err != nil {
		return domain.ChainTxRef{}, domain.NewError(domain.ErrChainExecution, "submitAction.BuildUnsigned", err)
	}
	signed, err := adapter.Sign(ctx, unsigned, key)
	if err != nil {
		return domain.ChainTxRef{}, domain.NewError(domain.ErrChainExecution, "submitAction.Sign", err)
	}
	txID, err := adapter.Broadcast(ctx, signed)
	if err != nil {
		return domain.ChainTxRef{}, domain.NewError(domain.ErrTransient, "submitAction.Broadcast", err)
	}

	return domain.ChainTxRef{Chain: chain, TxID: string(txID)}, nil
}
