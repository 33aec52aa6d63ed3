package sources

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rocketwatch/internal/chain"
	"rocketwatch/internal/event"
	"rocketwatch/internal/offchain"
)

// Marketplace lists limit orders for a token.
type Marketplace interface {
	Orders(ctx context.Context, token string) ([]offchain.Order, error)
}

type OrdersConfig struct {
	Token    string
	Interval time.Duration
}

// OrdersSource reports new marketplace orders for the governance token.
type OrdersSource struct {
	cfg       OrdersConfig
	chain     Chain
	contracts Contracts
	market    Marketplace
	tokens    *chain.TokenMetaCache
	logger    *zap.Logger

	token common.Address
}

func NewOrdersSource(cfg OrdersConfig, chainClient Chain, contracts Contracts, market Marketplace, logger *zap.Logger) *OrdersSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Token == "" {
		cfg.Token = "rocketTokenRPL"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &OrdersSource{
		cfg:       cfg,
		chain:     chainClient,
		contracts: contracts,
		market:    market,
		tokens:    chain.NewTokenMetaCache(),
		logger:    logger.With(zap.String("source", "orders")),
	}
}

func (s *OrdersSource) Name() string            { return "orders" }
func (s *OrdersSource) Interval() time.Duration { return s.cfg.Interval }

func (s *OrdersSource) Init(ctx context.Context) error {
	addr, err := s.contracts.ResolveContract(ctx, s.cfg.Token)
	if err != nil {
		return fmt.Errorf("orders source: %w", err)
	}
	s.token = addr
	return nil
}

func (s *OrdersSource) Run(ctx context.Context, w Window) (Result, error) {
	var res Result
	since, until, err := windowTimes(ctx, s.chain, w)
	if err != nil {
		return res, err
	}
	orders, err := s.market.Orders(ctx, s.token.Hex())
	if err != nil {
		return res, err
	}
	for _, o := range orders {
		created := o.CreationDate.Unix()
		if created <= since || created > until || !strings.EqualFold(o.Status, "open") {
			continue
		}
		e, err := s.orderEvent(ctx, o, w.To)
		if err != nil {
			res.soft(err)
			continue
		}
		res.Events = append(res.Events, e)
	}
	return res, nil
}

func (s *OrdersSource) orderEvent(ctx context.Context, o offchain.Order, block uint64) (*event.Event, error) {
	if !common.IsHexAddress(o.SellToken) || !common.IsHexAddress(o.BuyToken) {
		return nil, fmt.Errorf("%w: order %s has invalid tokens", event.ErrDecodeMismatch, o.UID)
	}
	sellToken := common.HexToAddress(o.SellToken)
	buyToken := common.HexToAddress(o.BuyToken)
	sell := s.contracts.TokenMeta(ctx, s.tokens, sellToken, s.logger)
	buy := s.contracts.TokenMeta(ctx, s.tokens, buyToken, s.logger)

	sellAmount, err := baseUnits(o.SellAmount, sell.Decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: order %s sell amount: %v", event.ErrDecodeMismatch, o.UID, err)
	}
	buyAmount, err := baseUnits(o.BuyAmount, buy.Decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: order %s buy amount: %v", event.ErrDecodeMismatch, o.UID, err)
	}
	return &event.Event{
		UniqueID:    "otc_order:" + o.UID,
		Topic:       event.TopicOrders,
		Name:        "otc_order_event",
		Score:       event.BlockScore(block),
		BlockNumber: block,
		Timestamp:   uint64(o.CreationDate.Unix()),
		Args: event.Args{
			"owner":       common.HexToAddress(o.Owner),
			"sell_token":  sellToken,
			"buy_token":   buyToken,
			"sell_amount": sellAmount,
			"buy_amount":  buyAmount,
			"sell_symbol": sell.Symbol,
			"buy_symbol":  buy.Symbol,
			"valid_to":    uint64(o.ValidTo),
		},
	}, nil
}

func baseUnits(amount string, decimals uint8) (decimal.Decimal, error) {
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("not an integer: %q", amount)
	}
	return decimal.NewFromBigInt(v, -int32(decimals)), nil
}
