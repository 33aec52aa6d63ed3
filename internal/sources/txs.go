package sources

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"rocketwatch/internal/event"
)

// TxFunction maps a contract function to an event name. OnlyReverted
// flips the receipt policy: the call is emitted only when it failed.
type TxFunction struct {
	Contract     string `mapstructure:"contract"`
	Function     string `mapstructure:"function"`
	Name         string `mapstructure:"name"`
	OnlyReverted bool   `mapstructure:"only_reverted"`
}

// PayloadRule decodes the action behind a DAO execute call. The payload is
// read with Getter on Contract and decoded against ABI.
type PayloadRule struct {
	Contract string `mapstructure:"contract"`
	Function string `mapstructure:"function"`
	Getter   string `mapstructure:"getter"`
	ABI      string `mapstructure:"abi"`
	Prefix   string `mapstructure:"prefix"`
}

type TxConfig struct {
	Functions []TxFunction
	Payloads  []PayloadRule
	Interval  time.Duration
}

type fnKey struct {
	contract string
	function string
}

// TxSource turns calls to protocol contracts into events.
type TxSource struct {
	cfg       TxConfig
	chain     Chain
	contracts Contracts
	logger    *zap.Logger

	targets  map[common.Address]string
	fns      map[fnKey]TxFunction
	payloads map[fnKey]PayloadRule
}

func NewTxSource(cfg TxConfig, chainClient Chain, contracts Contracts, logger *zap.Logger) *TxSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	return &TxSource{
		cfg:       cfg,
		chain:     chainClient,
		contracts: contracts,
		logger:    logger.With(zap.String("source", "transactions")),
	}
}

func (s *TxSource) Name() string            { return "transactions" }
func (s *TxSource) Interval() time.Duration { return s.cfg.Interval }

func (s *TxSource) Init(ctx context.Context) error {
	s.targets = make(map[common.Address]string)
	s.fns = make(map[fnKey]TxFunction)
	s.payloads = make(map[fnKey]PayloadRule)
	for _, fn := range s.cfg.Functions {
		addr, err := s.contracts.ResolveContract(ctx, fn.Contract)
		if err != nil {
			return fmt.Errorf("tx source: %w", err)
		}
		s.targets[addr] = fn.Contract
		s.fns[fnKey{fn.Contract, fn.Function}] = fn
	}
	for _, p := range s.cfg.Payloads {
		if _, err := s.contracts.ABI(ctx, p.ABI); err != nil {
			return fmt.Errorf("tx source payload %s: %w", p.ABI, err)
		}
		s.payloads[fnKey{p.Contract, p.Function}] = p
	}
	return nil
}

func (s *TxSource) Run(ctx context.Context, w Window) (Result, error) {
	var res Result
	for n := w.From; n <= w.To; n++ {
		block, err := s.chain.BlockByNumber(ctx, n)
		if err != nil {
			return res, fmt.Errorf("block %d: %w", n, err)
		}
		for i, tx := range block.Transactions() {
			events, err := s.fromTx(ctx, block, i, tx)
			if err != nil {
				res.soft(err)
				continue
			}
			res.Events = append(res.Events, events...)
		}
	}
	return res, nil
}

func (s *TxSource) fromTx(ctx context.Context, block *types.Block, index int, tx *types.Transaction) ([]*event.Event, error) {
	to := tx.To()
	if to == nil || len(tx.Data()) < 4 {
		return nil, nil
	}
	contract, ok := s.targets[*to]
	if !ok {
		return nil, nil
	}
	method, args, err := s.contracts.DecodeFunctionInput(ctx, *to, tx.Data())
	if err != nil {
		// Unknown selectors are calls nobody asked for.
		return nil, nil
	}
	fn, ok := s.fns[fnKey{contract, method.Name}]
	if !ok {
		return nil, nil
	}

	receipt, err := s.chain.TransactionReceipt(ctx, tx.Hash())
	if err != nil {
		return nil, fmt.Errorf("receipt %s: %w", tx.Hash().Hex(), err)
	}
	reverted := receipt.Status == types.ReceiptStatusFailed
	if reverted != fn.OnlyReverted {
		return nil, nil
	}

	sender, err := s.chain.TransactionSender(ctx, tx, block.Hash(), uint(index))
	if err != nil {
		return nil, fmt.Errorf("sender %s: %w", tx.Hash().Hex(), err)
	}
	args["from"] = sender

	e := &event.Event{
		UniqueID:    fmt.Sprintf("%s:%s", tx.Hash().Hex(), fn.Name),
		Topic:       event.TopicTransactions,
		Name:        fn.Name,
		Score:       event.Score(block.NumberU64(), uint64(index), 0),
		BlockNumber: block.NumberU64(),
		TxHash:      tx.Hash().Hex(),
		Contract:    contract,
		Address:     to.Hex(),
		Method:      method.Name,
		TxIndex:     uint64(index),
		Timestamp:   block.Time(),
		Args:        args,
	}
	out := []*event.Event{e}

	if rule, ok := s.payloads[fnKey{contract, method.Name}]; ok {
		payload, err := s.payloadEvent(ctx, rule, e)
		if err != nil {
			return out, err
		}
		out = append(out, payload)
	}
	return out, nil
}

// payloadEvent describes what an executed proposal actually did.
func (s *TxSource) payloadEvent(ctx context.Context, rule PayloadRule, parent *event.Event) (*event.Event, error) {
	id, ok := parent.Args.Big("proposalID")
	if !ok {
		return nil, fmt.Errorf("%w: %s without proposalID in tx %s", event.ErrDecodeMismatch, parent.Name, parent.TxHash)
	}
	values, err := s.contracts.Call(ctx, rule.Getter, "getPayload", blockBig(parent.BlockNumber), id)
	if err != nil {
		return nil, fmt.Errorf("payload of proposal %s: %w", id, err)
	}
	data, ok := values[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: payload of proposal %s is %T", event.ErrDecodeMismatch, id, values[0])
	}
	method, args, err := s.contracts.DecodeCalldata(ctx, rule.ABI, data)
	if err != nil {
		return nil, fmt.Errorf("%w: payload of proposal %s: %v (data=0x%x)", event.ErrDecodeMismatch, id, err, data)
	}
	args["proposalID"] = id
	args["from"] = parent.Args["from"]

	e := parent.Clone()
	e.Name = rule.Prefix + snakeCase(method.Name) + "_event"
	e.UniqueID = fmt.Sprintf("%s:%s:payload", parent.TxHash, parent.Name)
	e.Score = parent.Score + 1
	e.LogIndex = 1
	e.Method = method.Name
	e.Args = args
	return e, nil
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
