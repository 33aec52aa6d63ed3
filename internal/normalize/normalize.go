package normalize

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rocketwatch/internal/chain"
	"rocketwatch/internal/event"
)

var (
	// ErrEnrichmentMissing marks an enrichment that was skipped because an
	// upstream lookup failed. The event is still emitted.
	ErrEnrichmentMissing = errors.New("enrichment missing")
	// ErrFilteredOut marks an event dropped by a materiality filter.
	ErrFilteredOut = errors.New("filtered out")
)

// Chain is the EL access the normalizer needs.
type Chain interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Contracts is the contract access the normalizer needs.
type Contracts interface {
	ResolveContract(ctx context.Context, name string) (common.Address, error)
	Call(ctx context.Context, name, method string, block *big.Int, args ...interface{}) ([]interface{}, error)
	CallBig(ctx context.Context, name, method string, block *big.Int, args ...interface{}) (*big.Int, error)
	TokenMeta(ctx context.Context, cache *chain.TokenMetaCache, token common.Address, logger *zap.Logger) chain.TokenMeta
}

// Labeler renders addresses and validators.
type Labeler interface {
	Fancy(ctx context.Context, addr common.Address) string
	Validator(id string) string
	Tx(hash common.Hash) string
	IsProtocol(addr common.Address) bool
}

// Normalizer converts decoded arguments into display ready values and
// decides which events are material.
type Normalizer struct {
	chain      Chain
	contracts  Contracts
	labels     Labeler
	schemas    Schemas
	thresholds Thresholds
	tokens     *chain.TokenMetaCache
	logger     *zap.Logger
	nowFn      func() time.Time
}

func New(chainClient Chain, contracts Contracts, labels Labeler, schemas Schemas, thresholds Thresholds, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schemas == nil {
		schemas = DefaultSchemas()
	}
	return &Normalizer{
		chain:      chainClient,
		contracts:  contracts,
		labels:     labels,
		schemas:    schemas,
		thresholds: thresholds,
		tokens:     chain.NewTokenMetaCache(),
		logger:     logger.With(zap.String("component", "normalize")),
		nowFn:      time.Now,
	}
}

// Prepare applies the argument schema and human readable decisions. It
// runs before aggregation so that aggregated sums operate on decimals.
func (n *Normalizer) Prepare(ctx context.Context, e *event.Event) error {
	if e.Args == nil {
		e.Args = event.Args{}
	}
	schema := n.schemas[e.Name]
	for name, kind := range schema {
		if err := n.convert(ctx, e, name, kind); err != nil {
			return fmt.Errorf("%s %s: %w", e.Name, name, err)
		}
	}
	applyDecisions(e.Args)
	return nil
}

func (n *Normalizer) convert(ctx context.Context, e *event.Event, name string, kind Kind) error {
	v, ok := e.Args[name]
	if !ok {
		// Optional arguments are common across contract versions.
		return nil
	}
	switch kind {
	case Wei:
		d, err := toDecimal(v, 18)
		if err != nil {
			return err
		}
		e.Args[name] = d
	case PercentWei:
		d, err := toDecimal(v, 16)
		if err != nil {
			return err
		}
		e.Args[name] = d
	case TokenAmount:
		decimals := int32(18)
		if common.IsHexAddress(e.Address) {
			meta := n.contracts.TokenMeta(ctx, n.tokens, common.HexToAddress(e.Address), n.logger)
			decimals = int32(meta.Decimals)
		}
		d, err := toDecimal(v, decimals)
		if err != nil {
			return err
		}
		e.Args[name] = d
	case Address:
		addr, ok := e.Args.Address(name)
		if !ok {
			return fmt.Errorf("%w: %T is not an address", event.ErrDecodeMismatch, v)
		}
		e.Args[name] = addr
	case PubKey:
		switch t := v.(type) {
		case []byte:
			e.Args[name] = "0x" + common.Bytes2Hex(t)
		case string:
			if !strings.HasPrefix(t, "0x") {
				return fmt.Errorf("%w: pubkey %q", event.ErrDecodeMismatch, t)
			}
		default:
			return fmt.Errorf("%w: %T is not a pubkey", event.ErrDecodeMismatch, v)
		}
	}
	return nil
}

// toDecimal scales integers (or sums integer arrays) by 10^-exp.
func toDecimal(v interface{}, exp int32) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case *big.Int:
		return decimal.NewFromBigInt(t, -exp), nil
	case []*big.Int:
		sum := new(big.Int)
		for _, x := range t {
			sum.Add(sum, x)
		}
		return decimal.NewFromBigInt(sum, -exp), nil
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(t), -exp), nil
	case string:
		i, ok := new(big.Int).SetString(t, 10)
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %q is not an integer", event.ErrDecodeMismatch, t)
		}
		return decimal.NewFromBigInt(i, -exp), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %T is not an integer", event.ErrDecodeMismatch, v)
	}
}

var voteDirections = []string{"invalid", "abstain", "for", "against", "against-with-veto"}

// applyDecisions turns vote encodings into words.
func applyDecisions(args event.Args) {
	if supported, ok := args.Bool("supported"); ok {
		if supported {
			args["decision"] = "for"
		} else {
			args["decision"] = "against"
		}
	}
	if dir, ok := args.Big("direction"); ok {
		decision := voteDirections[0]
		if dir.IsInt64() && dir.Int64() >= 0 && dir.Int64() < int64(len(voteDirections)) {
			decision = voteDirections[dir.Int64()]
		}
		args["decision"] = decision
	}
}
