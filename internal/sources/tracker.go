package sources

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rocketwatch/internal/chain"
	"rocketwatch/internal/consensus"
)

const (
	minipoolManager  = "rocketMinipoolManager"
	minipoolABI      = "rocketMinipoolDelegate"
	validatorChunk   = 500
	validatorWorkers = 4
)

// Beacon is the CL access the beacon source needs.
type Beacon interface {
	Block(ctx context.Context, slot uint64) (*consensus.Block, error)
	HeadSlot(ctx context.Context) (uint64, error)
	Validators(ctx context.Context, stateID string, ids []string) ([]consensus.Validator, error)
	FinalityCheckpoints(ctx context.Context, stateID string) (*consensus.FinalityCheckpoints, error)
}

// Validator is a protocol validator the watcher follows.
type Validator struct {
	Index    uint64
	Pubkey   string
	Minipool common.Address
	Node     common.Address
}

// Tracker keeps the set of protocol validators. Refresh only reads the
// minipools created since the previous call.
type Tracker struct {
	contracts Contracts
	beacon    Beacon
	logger    *zap.Logger

	mu       sync.RWMutex
	scanned  uint64
	byIndex  map[uint64]Validator
	unmapped []Validator
}

func NewTracker(contracts Contracts, beacon Beacon, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		contracts: contracts,
		beacon:    beacon,
		logger:    logger.With(zap.String("component", "tracker")),
		byIndex:   make(map[uint64]Validator),
	}
}

// Lookup returns the tracked validator with a beacon index.
func (t *Tracker) Lookup(index uint64) (Validator, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.byIndex[index]
	return v, ok
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byIndex)
}

func (t *Tracker) Refresh(ctx context.Context) error {
	added, err := t.newMinipools(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	pending := append(t.unmapped, added...)
	t.unmapped = nil
	t.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	indexed, err := t.resolveIndices(ctx, pending)
	if err != nil {
		t.mu.Lock()
		t.unmapped = append(t.unmapped, pending...)
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, v := range pending {
		idx, ok := indexed[v.Pubkey]
		if !ok {
			// Not yet deposited on the beacon chain.
			t.unmapped = append(t.unmapped, v)
			continue
		}
		v.Index = idx
		t.byIndex[idx] = v
	}
	t.logger.Info("validators refreshed",
		zap.Int("tracked", len(t.byIndex)),
		zap.Int("awaiting_index", len(t.unmapped)))
	return nil
}

// newMinipools reads minipools added since the last refresh with two
// multicall rounds: addresses first, then pubkey and node per minipool.
func (t *Tracker) newMinipools(ctx context.Context) ([]Validator, error) {
	count, err := t.contracts.CallBig(ctx, minipoolManager, "getMinipoolCount", nil)
	if err != nil {
		return nil, fmt.Errorf("minipool count: %w", err)
	}
	t.mu.RLock()
	start := t.scanned
	t.mu.RUnlock()
	total := count.Uint64()
	if total <= start {
		return nil, nil
	}

	managerAddr, err := t.contracts.ResolveContract(ctx, minipoolManager)
	if err != nil {
		return nil, err
	}
	managerABI, err := t.contracts.ABI(ctx, minipoolManager)
	if err != nil {
		return nil, err
	}
	poolABI, err := t.contracts.ABI(ctx, minipoolABI)
	if err != nil {
		return nil, err
	}

	calls := make([]chain.Call, 0, total-start)
	for i := start; i < total; i++ {
		calls = append(calls, chain.Call{Target: managerAddr, ABI: managerABI, Method: "getMinipoolAt", Args: []interface{}{blockBig(i)}})
	}
	results, err := t.contracts.Multicall(ctx, calls, nil)
	if err != nil {
		return nil, fmt.Errorf("minipool addresses: %w", err)
	}
	pools := make([]common.Address, 0, len(results))
	for i, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("minipool %d: %w", start+uint64(i), r.Err)
		}
		addr, err := chain.AsAddress(r.Values[0])
		if err != nil {
			return nil, err
		}
		pools = append(pools, addr)
	}

	calls = calls[:0]
	for _, pool := range pools {
		calls = append(calls,
			chain.Call{Target: managerAddr, ABI: managerABI, Method: "getMinipoolPubkey", Args: []interface{}{pool}, AllowFailure: true},
			chain.Call{Target: pool, ABI: poolABI, Method: "getNodeAddress", AllowFailure: true},
		)
	}
	results, err = t.contracts.Multicall(ctx, calls, nil)
	if err != nil {
		return nil, fmt.Errorf("minipool details: %w", err)
	}
	out := make([]Validator, 0, len(pools))
	for i, pool := range pools {
		pk, node := results[2*i], results[2*i+1]
		if pk.Err != nil || node.Err != nil {
			t.logger.Warn("minipool details unavailable", zap.String("minipool", pool.Hex()))
			continue
		}
		raw, ok := pk.Values[0].([]byte)
		if !ok || len(raw) == 0 {
			continue
		}
		nodeAddr, err := chain.AsAddress(node.Values[0])
		if err != nil {
			continue
		}
		out = append(out, Validator{Pubkey: "0x" + common.Bytes2Hex(raw), Minipool: pool, Node: nodeAddr})
	}

	t.mu.Lock()
	t.scanned = total
	t.mu.Unlock()
	return out, nil
}

// resolveIndices asks the CL for validator indices, several chunks at a
// time.
func (t *Tracker) resolveIndices(ctx context.Context, pending []Validator) (map[string]uint64, error) {
	var mu sync.Mutex
	found := make(map[string]uint64, len(pending))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(validatorWorkers)
	for start := 0; start < len(pending); start += validatorChunk {
		end := start + validatorChunk
		if end > len(pending) {
			end = len(pending)
		}
		ids := make([]string, 0, end-start)
		for _, v := range pending[start:end] {
			ids = append(ids, v.Pubkey)
		}
		g.Go(func() error {
			vals, err := t.beacon.Validators(ctx, "head", ids)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, v := range vals {
				found[v.Validator.Pubkey] = uint64(v.Index)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("validator indices: %w", err)
	}
	return found, nil
}
