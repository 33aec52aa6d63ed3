package sources

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"rocketwatch/internal/chain"
	"rocketwatch/internal/consensus"
	"rocketwatch/internal/event"
)

var (
	rethAddr     = common.HexToAddress("0xae78736Cd615f374D3085123A210448E74Fc6393")
	rplAddr      = common.HexToAddress("0xD33526068D116cE69F19A9ee46F0bd304F21A51f")
	depositAddr  = common.HexToAddress("0xDD3f50F8A6CafbE9b31a427582963f465E745AF8")
	managerAddr  = common.HexToAddress("0x6d010C43d4e96D74C422f2e27370AF48711B49bF")
	nodeDepAddr  = common.HexToAddress("0x2FB42FfE2d7dF8381853e96304300c6a5E846905")
	pdaoAddr     = common.HexToAddress("0x2D627A50Dc1C4EDa73E42858E8460b0eCF300b25")
	smoothieAddr = common.HexToAddress("0xd4E96eF8eee8678dBFf4d535E033Ed1a4F7605b7")
	alice        = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob          = common.HexToAddress("0x2222222222222222222222222222222222222222")
	minipoolA    = common.HexToAddress("0xAAAA000000000000000000000000000000000001")
	nodeX        = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type fakeChain struct {
	logs       []types.Log
	blocks     map[uint64]*types.Block
	timestamps map[uint64]uint64
	receipts   map[common.Hash]*types.Receipt
	sender     common.Address
	logsErr    error
	queries    []Window
}

func (f *fakeChain) FilterLogs(_ context.Context, from, to uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	f.queries = append(f.queries, Window{From: from, To: to})
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		if len(addresses) > 0 && !containsAddr(addresses, l.Address) {
			continue
		}
		if !containsHash(topic0, l.Topics[0]) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func containsAddr(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}

func (f *fakeChain) BlockByNumber(_ context.Context, number uint64) (*types.Block, error) {
	if b, ok := f.blocks[number]; ok {
		return b, nil
	}
	return types.NewBlockWithHeader(&types.Header{Number: new(big.Int).SetUint64(number)}), nil
}

func (f *fakeChain) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	if ts, ok := f.timestamps[number]; ok {
		return ts, nil
	}
	return 1_700_000_000 + number*12, nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	r, ok := f.receipts[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return r, nil
}

func (f *fakeChain) TransactionSender(context.Context, *types.Transaction, common.Hash, uint) (common.Address, error) {
	return f.sender, nil
}

type callFunc func(args []interface{}) ([]interface{}, error)

// fakeContracts answers from the bundled ABIs and call handlers keyed by
// "contract.method". Multicall handlers are keyed by method only.
type fakeContracts struct {
	abis      *chain.ABIRegistry
	addresses map[string]common.Address
	calls     map[string]callFunc
	tokens    map[common.Address]chain.TokenMeta
}

func newFakeContracts() *fakeContracts {
	return &fakeContracts{
		abis: chain.NewABIRegistry("", nil),
		addresses: map[string]common.Address{
			"rocketTokenRETH":               rethAddr,
			"rocketTokenRPL":                rplAddr,
			"rocketDepositPool":             depositAddr,
			"rocketMinipoolManager":         managerAddr,
			"rocketNodeDeposit":             nodeDepAddr,
			"rocketDAOProtocolProposal":     pdaoAddr,
			"rocketSmoothingPool":           smoothieAddr,
			"rocketDAONodeTrustedProposals": common.HexToAddress("0x5555555555555555555555555555555555555555"),
		},
		calls:  make(map[string]callFunc),
		tokens: make(map[common.Address]chain.TokenMeta),
	}
}

func (f *fakeContracts) nameOf(addr common.Address) (string, bool) {
	for name, a := range f.addresses {
		if a == addr {
			return name, true
		}
	}
	return "", false
}

func (f *fakeContracts) ResolveContract(_ context.Context, name string) (common.Address, error) {
	if a, ok := f.addresses[name]; ok {
		return a, nil
	}
	return common.Address{}, fmt.Errorf("%s: %w", name, chain.ErrContractNotFound)
}

func (f *fakeContracts) ABI(ctx context.Context, name string) (*abi.ABI, error) {
	return f.abis.Get(ctx, name)
}

func (f *fakeContracts) Call(_ context.Context, name, method string, _ *big.Int, args ...interface{}) ([]interface{}, error) {
	fn, ok := f.calls[name+"."+method]
	if !ok {
		return nil, fmt.Errorf("unexpected call %s.%s", name, method)
	}
	return fn(args)
}

func (f *fakeContracts) CallAt(ctx context.Context, _ common.Address, abiName, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	return f.Call(ctx, abiName, method, block, args...)
}

func (f *fakeContracts) CallBig(ctx context.Context, name, method string, block *big.Int, args ...interface{}) (*big.Int, error) {
	values, err := f.Call(ctx, name, method, block, args...)
	if err != nil {
		return nil, err
	}
	return chain.AsBigInt(values[0])
}

func (f *fakeContracts) Multicall(_ context.Context, calls []chain.Call, _ *big.Int) ([]chain.CallResult, error) {
	out := make([]chain.CallResult, len(calls))
	for i, c := range calls {
		fn, ok := f.calls[c.Method]
		if !ok {
			return nil, fmt.Errorf("unexpected multicall %s", c.Method)
		}
		args := append([]interface{}{c.Target}, c.Args...)
		values, err := fn(args)
		out[i] = chain.CallResult{Values: values, Err: err}
	}
	return out, nil
}

func (f *fakeContracts) DecodeFunctionInput(ctx context.Context, to common.Address, data []byte) (*abi.Method, event.Args, error) {
	name, ok := f.nameOf(to)
	if !ok {
		return nil, nil, fmt.Errorf("unknown contract %s", to.Hex())
	}
	return f.DecodeCalldata(ctx, name, data)
}

func (f *fakeContracts) DecodeCalldata(ctx context.Context, abiName string, data []byte) (*abi.Method, event.Args, error) {
	parsed, err := f.abis.Get(ctx, abiName)
	if err != nil {
		return nil, nil, err
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	raw := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(raw, data[4:]); err != nil {
		return nil, nil, err
	}
	args := make(event.Args, len(raw))
	for k, v := range raw {
		args[strings.TrimPrefix(k, "_")] = v
	}
	return method, args, nil
}

func (f *fakeContracts) TokenMeta(_ context.Context, _ *chain.TokenMetaCache, token common.Address, _ *zap.Logger) chain.TokenMeta {
	if meta, ok := f.tokens[token]; ok {
		return meta
	}
	return chain.TokenMeta{Address: token, Decimals: 18}
}

type fakeBeacon struct {
	blocks     map[uint64]*consensus.Block
	head       uint64
	finalized  uint64
	validators map[string]uint64
}

func (f *fakeBeacon) Block(_ context.Context, slot uint64) (*consensus.Block, error) {
	b, ok := f.blocks[slot]
	if !ok {
		return nil, fmt.Errorf("block %d: %w", slot, consensus.ErrBlockNotFound)
	}
	return b, nil
}

func (f *fakeBeacon) HeadSlot(context.Context) (uint64, error) { return f.head, nil }

func (f *fakeBeacon) Validators(_ context.Context, _ string, ids []string) ([]consensus.Validator, error) {
	var out []consensus.Validator
	for _, id := range ids {
		idx, ok := f.validators[id]
		if !ok {
			continue
		}
		var v consensus.Validator
		v.Index = consensus.Uint64Str(idx)
		v.Validator.Pubkey = id
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeBeacon) FinalityCheckpoints(context.Context, string) (*consensus.FinalityCheckpoints, error) {
	var cp consensus.FinalityCheckpoints
	cp.Finalized.Epoch = consensus.Uint64Str(f.finalized)
	return &cp, nil
}

type fakeRelay struct {
	payloads map[uint64][]consensus.RelayPayload
	err      error
}

func (f *fakeRelay) ExecutionBlock(_ context.Context, number uint64) ([]consensus.RelayPayload, error) {
	return f.payloads[number], f.err
}

// fakeClock uses mainnet timing from a genesis of 0.
type fakeClock struct{}

func (fakeClock) SlotAt(ts uint64) uint64   { return ts / 12 }
func (fakeClock) TimeAt(slot uint64) uint64 { return slot * 12 }
func (fakeClock) Epoch(slot uint64) uint64  { return slot / 32 }
