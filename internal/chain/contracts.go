package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"rocketwatch/internal/event"
)

// ErrContractNotFound is returned when the storage contract has no address
// registered under a name.
var ErrContractNotFound = errors.New("contract not registered")

// ContractCaller is the slice of Client that contract calls need.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Well known names for contracts outside the storage registry.
const (
	StorageContract   = "rocketStorage"
	MulticallContract = "multicall3"
)

// Registry resolves protocol contract names through the storage contract
// and performs typed calls against them.
type Registry struct {
	caller    ContractCaller
	abis      *ABIRegistry
	storage   common.Address
	multicall common.Address

	mu     sync.RWMutex
	byName map[string]common.Address
	byAddr map[common.Address]string
}

// NewRegistry builds a registry. static pins addresses that are not kept in
// the storage contract; storage and multicall are always pinned.
func NewRegistry(caller ContractCaller, storage, multicall common.Address, abiDir string, static map[string]common.Address) *Registry {
	r := &Registry{
		caller:    caller,
		storage:   storage,
		multicall: multicall,
		byName:    make(map[string]common.Address),
		byAddr:    make(map[common.Address]string),
	}
	r.abis = NewABIRegistry(abiDir, r.storedABI)
	r.remember(StorageContract, storage)
	r.remember(MulticallContract, multicall)
	for name, addr := range static {
		r.remember(name, addr)
	}
	return r
}

func (r *Registry) remember(name string, addr common.Address) {
	r.mu.Lock()
	r.byName[name] = addr
	r.byAddr[addr] = name
	r.mu.Unlock()
}

// ABIs exposes the underlying ABI registry.
func (r *Registry) ABIs() *ABIRegistry {
	return r.abis
}

func (r *Registry) ABI(ctx context.Context, name string) (*abi.ABI, error) {
	return r.abis.Get(ctx, name)
}

// ResolveContract returns the address registered under name, reading
// storage.getAddress(keccak("contract.address" ++ name)) on a cache miss.
func (r *Registry) ResolveContract(ctx context.Context, name string) (common.Address, error) {
	r.mu.RLock()
	addr, ok := r.byName[name]
	r.mu.RUnlock()
	if ok {
		return addr, nil
	}

	values, err := r.CallAt(ctx, r.storage, StorageContract, "getAddress", nil, storageKey("contract.address", name))
	if err != nil {
		return common.Address{}, fmt.Errorf("resolve %s: %w", name, err)
	}
	addr, err = AsAddress(values[0])
	if err != nil {
		return common.Address{}, fmt.Errorf("resolve %s: %w", name, err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrContractNotFound, name)
	}
	r.remember(name, addr)
	return addr, nil
}

// Preload resolves every name so ContractName can answer for them.
func (r *Registry) Preload(ctx context.Context, names []string) error {
	for _, name := range names {
		if _, err := r.ResolveContract(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// ContractName is the reverse of ResolveContract over resolved names.
func (r *Registry) ContractName(addr common.Address) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byAddr[addr]
	return name, ok
}

// Known returns every resolved name, sorted.
func (r *Registry) Known() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) storedABI(ctx context.Context, name string) (string, error) {
	values, err := r.CallAt(ctx, r.storage, StorageContract, "getString", nil, storageKey("contract.abi", name))
	if err != nil {
		return "", err
	}
	s, _ := values[0].(string)
	return s, nil
}

// Call invokes a view method on a named contract. A nil block means latest.
func (r *Registry) Call(ctx context.Context, name, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	addr, err := r.ResolveContract(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.CallAt(ctx, addr, name, method, block, args...)
}

// CallAt invokes method on addr using the ABI registered as abiName.
func (r *Registry) CallAt(ctx context.Context, addr common.Address, abiName, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	contractABI, err := r.abis.Get(ctx, abiName)
	if err != nil {
		return nil, err
	}
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s.%s: %w", abiName, method, err)
	}
	resp, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", abiName, method, err)
	}
	values, err := contractABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s.%s: %w", abiName, method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("call %s.%s: empty result", abiName, method)
	}
	return values, nil
}

// CallBig is Call for methods returning a single integer.
func (r *Registry) CallBig(ctx context.Context, name, method string, block *big.Int, args ...interface{}) (*big.Int, error) {
	values, err := r.Call(ctx, name, method, block, args...)
	if err != nil {
		return nil, err
	}
	return AsBigInt(values[0])
}

// DecodeFunctionInput decodes calldata sent to a known contract.
func (r *Registry) DecodeFunctionInput(ctx context.Context, to common.Address, data []byte) (*abi.Method, event.Args, error) {
	name, ok := r.ContractName(to)
	if !ok {
		return nil, nil, fmt.Errorf("decode input: unknown contract %s", to.Hex())
	}
	return r.DecodeCalldata(ctx, name, data)
}

// DecodeCalldata decodes data against the named ABI.
func (r *Registry) DecodeCalldata(ctx context.Context, abiName string, data []byte) (*abi.Method, event.Args, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("decode input: calldata too short (%d bytes)", len(data))
	}
	contractABI, err := r.abis.Get(ctx, abiName)
	if err != nil {
		return nil, nil, err
	}
	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("decode input %s: %w", abiName, err)
	}
	raw := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(raw, data[4:]); err != nil {
		return nil, nil, fmt.Errorf("decode input %s.%s: %w", abiName, method.Name, err)
	}
	// Solidity parameters carry a leading underscore; strip it.
	args := make(event.Args, len(raw))
	for k, v := range raw {
		args[strings.TrimPrefix(k, "_")] = v
	}
	return method, args, nil
}

func storageKey(prefix, name string) [32]byte {
	return [32]byte(crypto.Keccak256Hash([]byte(prefix + name)))
}
