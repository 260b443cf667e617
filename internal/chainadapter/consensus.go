package chainadapter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ConsensusMethod names the RPC method a ConsensusClient call resolves,
// used to pick the per-method resolution rule on an Inconsistent result
// (§4.7).
type ConsensusMethod string

const (
	MethodGasPrice           ConsensusMethod = "gas_price"
	MethodBalance            ConsensusMethod = "balance"
	MethodNonce              ConsensusMethod = "nonce"
	MethodGasEstimate        ConsensusMethod = "gas_estimate"
	MethodSendRawTransaction ConsensusMethod = "send_raw_transaction"
)

// Provider is one upstream RPC endpoint participating in consensus reads.
// Adapted from the node/health model of the RPC node manager this engine's
// consensus client generalizes: a flat endpoint list replaces that
// manager's full load-balancer, since this collaborator's job is
// agreement across providers, not picking a single fastest one.
type Provider struct {
	ID      string
	Call    func(ctx context.Context, method string, params []interface{}) (interface{}, error)
	Healthy func() bool

	// Limiter throttles outbound calls to this provider. Nil means
	// unlimited (e.g. a local node). One token is reserved per request
	// before Call runs, so a rate-limited provider slows down rather
	// than errors when it's over budget.
	Limiter *rate.Limiter
}

// Inconsistent is returned when fewer than MinConsensus providers agree.
type Inconsistent struct {
	Method  ConsensusMethod
	Results map[string]interface{} // provider ID -> result
}

func (e *Inconsistent) Error() string {
	return fmt.Sprintf("rpc consensus: %s: %d disagreeing provider results", e.Method, len(e.Results))
}

// ConsensusClient implements the EVM RPC consensus collaborator contract
// (§6.2): request(method, params, providers, min_consensus) -> consistent
// value, error, or Inconsistent.
type ConsensusClient struct {
	logger      *zap.Logger
	providers   []Provider
	minConsensus int
	timeout     time.Duration
}

// NewConsensusClient requires at least 3 providers and a minConsensus of
// at least 2, per §4.7's "N>=3 providers, M>=2 consistent results".
func NewConsensusClient(logger *zap.Logger, providers []Provider, minConsensus int, timeout time.Duration) (*ConsensusClient, error) {
	if len(providers) < 3 {
		return nil, fmt.Errorf("consensus client requires at least 3 providers, got %d", len(providers))
	}
	if minConsensus < 2 {
		return nil, fmt.Errorf("consensus client requires min_consensus >= 2, got %d", minConsensus)
	}
	return &ConsensusClient{logger: logger, providers: providers, minConsensus: minConsensus, timeout: timeout}, nil
}

type providerResult struct {
	providerID string
	value      interface{}
	err        error
}

// Request submits method/params to every healthy provider concurrently and
// requires minConsensus consistent results. On disagreement it applies the
// method's resolution rule rather than failing outright, except for
// send_raw_transaction, which is never resolved on inconsistency (§4.7).
func (c *ConsensusClient) Request(ctx context.Context, method ConsensusMethod, params []interface{}) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan providerResult, len(c.providers))
	queried := 0
	for _, p := range c.providers {
		if p.Healthy != nil && !p.Healthy() {
			continue
		}
		queried++
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			if p.Limiter != nil {
				if err := p.Limiter.Wait(ctx); err != nil {
					results <- providerResult{providerID: p.ID, err: err}
					return
				}
			}
			v, err := p.Call(ctx, string(method), params)
			results <- providerResult{providerID: p.ID, value: v, err: err}
		}(p)
	}
	wg.Wait()
	close(results)

	if queried < len(c.providers) && queried < 3 {
		c.logger.Warn("consensus request ran with degraded provider set",
			zap.String("method", string(method)), zap.Int("queried", queried))
	}

	byID := make(map[string]interface{})
	for r := range results {
		if r.err != nil {
			c.logger.Debug("consensus provider call failed", zap.String("provider", r.providerID), zap.Error(r.err))
			continue
		}
		byID[r.providerID] = r.value
	}

	groups := groupByValue(byID)
	for _, g := range groups {
		if len(g) >= c.minConsensus {
			return byID[g[0]], nil
		}
	}

	if method == MethodSendRawTransaction {
		return nil, &Inconsistent{Method: method, Results: byID}
	}

	resolved, err := resolveInconsistent(method, byID)
	if err != nil {
		return nil, &Inconsistent{Method: method, Results: byID}
	}
	return resolved, nil
}

func groupByValue(byID map[string]interface{}) [][]string {
	seen := make(map[interface{}][]string)
	for id, v := range byID {
		key := fmt.Sprintf("%v", v)
		seen[key] = append(seen[key], id)
		_ = v
	}
	groups := make([][]string, 0, len(seen))
	for _, ids := range seen {
		groups = append(groups, ids)
	}
	sort.Slice(groups, func(i, j int) bool { return len(groups[i]) > len(groups[j]) })
	return groups
}

// resolveInconsistent applies the per-method resolution rule: median for
// gas price, most-common for balance/nonce, max for gas estimate
// (conservative). send_raw_transaction is handled by the caller before
// reaching here and never resolved.
func resolveInconsistent(method ConsensusMethod, byID map[string]interface{}) (interface{}, error) {
	if len(byID) == 0 {
		return nil, fmt.Errorf("no provider results to resolve")
	}
	values := make([]float64, 0, len(byID))
	for _, v := range byID {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("non-numeric result for method %s", method)
		}
		values = append(values, f)
	}
	sort.Float64s(values)

	switch method {
	case MethodGasPrice:
		return median(values), nil
	case MethodBalance, MethodNonce:
		return mostCommon(byID), nil
	case MethodGasEstimate:
		return values[len(values)-1], nil
	default:
		return nil, fmt.Errorf("no resolution rule for method %s", method)
	}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mostCommon(byID map[string]interface{}) interface{} {
	counts := make(map[string]int)
	rep := make(map[string]interface{})
	for _, v := range byID {
		key := fmt.Sprintf("%v", v)
		counts[key]++
		rep[key] = v
	}
	var bestKey string
	best := -1
	for k, c := range counts {
		if c > best {
			best = c
			bestKey = k
		}
	}
	return rep[bestKey]
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
