package labels

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"rocketwatch/internal/chain"
)

const (
	sourceKnown = "known"
	sourceODAO  = "odao"
	sourceENS   = "ens"
	sourceHex   = "hex"

	odaoContract     = "rocketDAONodeTrusted"
	ensRegistryName  = "ensRegistry"
	ensResolverABI   = "ensResolver"
	defaultLabelTTL  = 6 * time.Hour
	defaultCacheSize = 8192
)

// Contracts is the chain access the resolver needs.
type Contracts interface {
	ContractName(addr common.Address) (string, bool)
	ResolveContract(ctx context.Context, name string) (common.Address, error)
	CallAt(ctx context.Context, addr common.Address, abiName, method string, block *big.Int, args ...interface{}) ([]interface{}, error)
	CallBig(ctx context.Context, name, method string, block *big.Int, args ...interface{}) (*big.Int, error)
	Multicall(ctx context.Context, calls []chain.Call, block *big.Int) ([]chain.CallResult, error)
	ABIs() *chain.ABIRegistry
}

// Options configures a Resolver.
type Options struct {
	ExplorerURL       string
	BeaconExplorerURL string
	// Known pins labels for addresses outside the contract registry.
	Known     map[common.Address]string
	TTL       time.Duration
	CacheSize int
	Store     Store
	Logger    *zap.Logger
}

// Resolver maps addresses to display labels. Lookup order: known contracts,
// oracle DAO member IDs, reverse ENS, shortened hex.
type Resolver struct {
	contracts Contracts
	opts      Options
	cache     *lru.Cache
	logger    *zap.Logger
	nowFn     func() time.Time

	mu         sync.RWMutex
	members    map[common.Address]string
	membersExp time.Time
}

func NewResolver(contracts Contracts, opts Options) (*Resolver, error) {
	if opts.TTL <= 0 {
		opts.TTL = defaultLabelTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New(opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		contracts: contracts,
		opts:      opts,
		cache:     cache,
		logger:    logger.With(zap.String("component", "labels")),
		nowFn:     time.Now,
		members:   make(map[common.Address]string),
	}, nil
}

// Label returns the display label for addr. Lookups never fail; errors
// fall through to the next source.
func (r *Resolver) Label(ctx context.Context, addr common.Address) string {
	return r.entry(ctx, addr).Label
}

// Fancy returns a markdown link labelled with Label.
func (r *Resolver) Fancy(ctx context.Context, addr common.Address) string {
	return AddressLink(r.opts.ExplorerURL, r.Label(ctx, addr), addr)
}

// Validator returns a beacon explorer link for a pubkey or index.
func (r *Resolver) Validator(id string) string {
	return ValidatorLink(r.opts.BeaconExplorerURL, id)
}

// Tx returns an explorer link for a transaction.
func (r *Resolver) Tx(hash common.Hash) string {
	return TxLink(r.opts.ExplorerURL, hash)
}

// IsProtocol reports whether addr is a registered protocol contract.
func (r *Resolver) IsProtocol(addr common.Address) bool {
	_, ok := r.contracts.ContractName(addr)
	return ok
}

func (r *Resolver) entry(ctx context.Context, addr common.Address) Entry {
	now := r.nowFn()
	if v, ok := r.cache.Get(addr); ok {
		if e := v.(Entry); !e.Expired(now) {
			return e
		}
	}

	if r.opts.Store != nil {
		if e, ok, err := r.opts.Store.GetLabel(ctx, addr); err != nil {
			r.logger.Debug("label store read failed", zap.String("address", addr.Hex()), zap.Error(err))
		} else if ok && !e.Expired(now) {
			r.cache.Add(addr, e)
			return e
		}
	}

	e := r.resolve(ctx, addr)
	e.ExpiresAt = now.Add(r.opts.TTL)
	r.cache.Add(addr, e)
	// Hex fallbacks are cheap to recompute and should not shadow a later
	// ENS registration in the shared store.
	if r.opts.Store != nil && e.Source != sourceHex {
		if err := r.opts.Store.PutLabel(ctx, addr, e); err != nil {
			r.logger.Debug("label store write failed", zap.String("address", addr.Hex()), zap.Error(err))
		}
	}
	return e
}

func (r *Resolver) resolve(ctx context.Context, addr common.Address) Entry {
	if label, ok := r.opts.Known[addr]; ok {
		return Entry{Label: label, Source: sourceKnown}
	}
	if name, ok := r.contracts.ContractName(addr); ok {
		return Entry{Label: name, Source: sourceKnown}
	}
	if id, ok := r.memberID(ctx, addr); ok {
		return Entry{Label: id, Source: sourceODAO}
	}
	if name, ok := r.reverseENS(ctx, addr); ok {
		return Entry{Label: name, Source: sourceENS}
	}
	return Entry{Label: ShortHex(addr), Source: sourceHex}
}

func (r *Resolver) memberID(ctx context.Context, addr common.Address) (string, bool) {
	now := r.nowFn()
	r.mu.RLock()
	fresh := now.Before(r.membersExp)
	id, ok := r.members[addr]
	r.mu.RUnlock()
	if fresh {
		return id, ok
	}

	members, err := r.loadMembers(ctx)
	if err != nil {
		r.logger.Warn("oracle dao member refresh failed", zap.Error(err))
		return id, ok
	}
	r.mu.Lock()
	r.members = members
	r.membersExp = now.Add(r.opts.TTL)
	r.mu.Unlock()
	id, ok = members[addr]
	return id, ok
}

// loadMembers reads the oracle DAO member list in two multicall rounds.
func (r *Resolver) loadMembers(ctx context.Context) (map[common.Address]string, error) {
	count, err := r.contracts.CallBig(ctx, odaoContract, "getMemberCount", nil)
	if err != nil {
		return nil, err
	}
	target, err := r.contracts.ResolveContract(ctx, odaoContract)
	if err != nil {
		return nil, err
	}
	odaoABI, err := r.contracts.ABIs().Get(ctx, odaoContract)
	if err != nil {
		return nil, err
	}

	n := int(count.Int64())
	calls := make([]chain.Call, n)
	for i := 0; i < n; i++ {
		calls[i] = chain.Call{Target: target, ABI: odaoABI, Method: "getMemberAt", Args: []interface{}{big.NewInt(int64(i))}, AllowFailure: true}
	}
	results, err := r.contracts.Multicall(ctx, calls, nil)
	if err != nil {
		return nil, err
	}
	addrs := make([]common.Address, 0, n)
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		if a, err := chain.AsAddress(res.Values[0]); err == nil {
			addrs = append(addrs, a)
		}
	}

	calls = calls[:0]
	for _, a := range addrs {
		calls = append(calls, chain.Call{Target: target, ABI: odaoABI, Method: "getMemberID", Args: []interface{}{a}, AllowFailure: true})
	}
	results, err = r.contracts.Multicall(ctx, calls, nil)
	if err != nil {
		return nil, err
	}
	members := make(map[common.Address]string, len(addrs))
	for i, res := range results {
		if res.Err != nil {
			continue
		}
		if id, ok := res.Values[0].(string); ok && id != "" {
			members[addrs[i]] = id
		}
	}
	return members, nil
}

// reverseENS resolves the primary name of addr and checks it resolves back.
func (r *Resolver) reverseENS(ctx context.Context, addr common.Address) (string, bool) {
	registry, err := r.contracts.ResolveContract(ctx, ensRegistryName)
	if err != nil {
		return "", false
	}
	node := ReverseNode(addr)
	resolver, err := r.ensResolver(ctx, registry, node)
	if err != nil {
		return "", false
	}
	values, err := r.contracts.CallAt(ctx, resolver, ensResolverABI, "name", nil, node)
	if err != nil {
		return "", false
	}
	name, _ := values[0].(string)
	if name == "" {
		return "", false
	}

	forward := Namehash(name)
	fwdResolver, err := r.ensResolver(ctx, registry, forward)
	if err != nil {
		return "", false
	}
	values, err = r.contracts.CallAt(ctx, fwdResolver, ensResolverABI, "addr", nil, forward)
	if err != nil {
		return "", false
	}
	if resolved, err := chain.AsAddress(values[0]); err != nil || resolved != addr {
		return "", false
	}
	return strings.TrimSpace(name), true
}

func (r *Resolver) ensResolver(ctx context.Context, registry common.Address, node [32]byte) (common.Address, error) {
	values, err := r.contracts.CallAt(ctx, registry, ensRegistryName, "resolver", nil, node)
	if err != nil {
		return common.Address{}, err
	}
	resolver, err := chain.AsAddress(values[0])
	if err != nil {
		return common.Address{}, err
	}
	if resolver == (common.Address{}) {
		return common.Address{}, errNoResolver
	}
	return resolver, nil
}
