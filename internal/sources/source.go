package sources

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"rocketwatch/internal/chain"
	"rocketwatch/internal/event"
)

// Window is the inclusive EL block range one run covers. From already
// includes the lookback.
type Window struct {
	From uint64
	To   uint64
}

// Result is what one run produced. Soft errors are reported but do not
// fail the run.
type Result struct {
	Events     []*event.Event
	SoftErrors []error
}

func (r *Result) soft(err error) {
	r.SoftErrors = append(r.SoftErrors, err)
}

// Source produces events for a block window.
type Source interface {
	Name() string
	Interval() time.Duration
	// Init prepares the source; it is called again after a failed run.
	Init(ctx context.Context) error
	Run(ctx context.Context, w Window) (Result, error)
}

// Committer is implemented by sources that keep state which may only be
// persisted once their events are safely queued.
type Committer interface {
	Commit(ctx context.Context) error
}

// Chain is the EL access the sources need.
type Chain interface {
	FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	BlockByNumber(ctx context.Context, number uint64) (*types.Block, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionSender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error)
}

// Contracts is the contract access the sources need. *chain.Registry
// implements it.
type Contracts interface {
	ResolveContract(ctx context.Context, name string) (common.Address, error)
	ABI(ctx context.Context, name string) (*abi.ABI, error)
	Call(ctx context.Context, name, method string, block *big.Int, args ...interface{}) ([]interface{}, error)
	CallAt(ctx context.Context, addr common.Address, abiName, method string, block *big.Int, args ...interface{}) ([]interface{}, error)
	CallBig(ctx context.Context, name, method string, block *big.Int, args ...interface{}) (*big.Int, error)
	Multicall(ctx context.Context, calls []chain.Call, block *big.Int) ([]chain.CallResult, error)
	DecodeFunctionInput(ctx context.Context, to common.Address, data []byte) (*abi.Method, event.Args, error)
	DecodeCalldata(ctx context.Context, abiName string, data []byte) (*abi.Method, event.Args, error)
	TokenMeta(ctx context.Context, cache *chain.TokenMetaCache, token common.Address, logger *zap.Logger) chain.TokenMeta
}

var _ Contracts = (*chain.Registry)(nil)

func blockBig(n uint64) *big.Int {
	return new(big.Int).SetUint64(n)
}
