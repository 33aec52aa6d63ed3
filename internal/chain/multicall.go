package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const multicallBatchSize = 300

// Call is one entry of a multicall batch.
type Call struct {
	Target       common.Address
	ABI          *abi.ABI
	Method       string
	Args         []interface{}
	AllowFailure bool
}

// CallResult holds the unpacked outputs of one Call. Err is set when the
// inner call reverted or its output could not be unpacked.
type CallResult struct {
	Values []interface{}
	Err    error
}

type multicall3Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type multicall3Result struct {
	Success    bool   `json:"success"`
	ReturnData []byte `json:"returnData"`
}

// Multicall batches calls through Multicall3.aggregate3. Results keep the
// order of calls.
func (r *Registry) Multicall(ctx context.Context, calls []Call, block *big.Int) ([]CallResult, error) {
	mcABI, err := r.abis.Get(ctx, MulticallContract)
	if err != nil {
		return nil, err
	}
	results := make([]CallResult, 0, len(calls))
	for start := 0; start < len(calls); start += multicallBatchSize {
		end := start + multicallBatchSize
		if end > len(calls) {
			end = len(calls)
		}
		batch, err := r.multicallBatch(ctx, mcABI, calls[start:end], block)
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}
	return results, nil
}

func (r *Registry) multicallBatch(ctx context.Context, mcABI *abi.ABI, calls []Call, block *big.Int) ([]CallResult, error) {
	packed := make([]multicall3Call, len(calls))
	for i, call := range calls {
		data, err := call.ABI.Pack(call.Method, call.Args...)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", call.Method, err)
		}
		packed[i] = multicall3Call{Target: call.Target, AllowFailure: call.AllowFailure, CallData: data}
	}

	data, err := mcABI.Pack("aggregate3", packed)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate3: %w", err)
	}
	resp, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.multicall, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("multicall: %w", err)
	}
	values, err := mcABI.Unpack("aggregate3", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack aggregate3: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack aggregate3: empty result")
	}
	raw := *abi.ConvertType(values[0], new([]multicall3Result)).(*[]multicall3Result)
	if len(raw) != len(calls) {
		return nil, fmt.Errorf("multicall: %d results for %d calls", len(raw), len(calls))
	}

	out := make([]CallResult, len(calls))
	for i, res := range raw {
		if !res.Success {
			out[i].Err = fmt.Errorf("%s reverted", calls[i].Method)
			continue
		}
		unpacked, err := calls[i].ABI.Unpack(calls[i].Method, res.ReturnData)
		if err != nil {
			out[i].Err = fmt.Errorf("unpack %s: %w", calls[i].Method, err)
			continue
		}
		out[i].Values = unpacked
	}
	return out, nil
}
