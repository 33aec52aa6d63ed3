package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"rocketwatch/internal/circuitbreaker"
	"rocketwatch/internal/metrics"
)

// ErrChainUnavailable is returned when every configured endpoint failed.
var ErrChainUnavailable = errors.New("chain unavailable")

// Options configures endpoint fallback.
type Options struct {
	FailureThreshold int
	RecoveryInterval time.Duration
	CallTimeout      time.Duration
	CacheSize        int
	Logger           *zap.Logger
}

type endpoint struct {
	url       string
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	breaker   *circuitbreaker.Breaker
}

// Client wraps go-ethereum RPC over an ordered list of endpoints. The first
// healthy endpoint serves each call; every endpoint but the last sits behind
// a circuit breaker.
type Client struct {
	endpoints []*endpoint
	timeout   time.Duration
	tsCache   *lru.Cache
	logger    *zap.Logger
}

// NewClient dials every URL. The first URL is the primary endpoint.
func NewClient(ctx context.Context, urls []string, opts Options) (*Client, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no rpc endpoints configured")
	}
	rpcClients := make([]*rpc.Client, 0, len(urls))
	for _, url := range urls {
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			for _, c := range rpcClients {
				c.Close()
			}
			return nil, fmt.Errorf("dial %s: %w", redact(url), err)
		}
		rpcClients = append(rpcClients, rpcClient)
	}
	return newClient(urls, rpcClients, opts)
}

func newClient(urls []string, rpcClients []*rpc.Client, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 4096
	}
	cache, err := lru.New(opts.CacheSize)
	if err != nil {
		return nil, err
	}

	c := &Client{timeout: opts.CallTimeout, tsCache: cache, logger: logger}
	for i, rpcClient := range rpcClients {
		ep := &endpoint{
			url:       redact(urls[i]),
			rpcClient: rpcClient,
			ethClient: ethclient.NewClient(rpcClient),
		}
		if i < len(rpcClients)-1 {
			ep.breaker = circuitbreaker.New(circuitbreaker.Config{
				Name:             ep.url,
				FailureThreshold: opts.FailureThreshold,
				RecoveryInterval: opts.RecoveryInterval,
				OnStateChange: func(name string, from, to circuitbreaker.State) {
					metrics.BreakerTransitions.WithLabelValues(name, to.String()).Inc()
					logger.Warn("rpc endpoint breaker state changed",
						zap.String("endpoint", name),
						zap.String("from", from.String()),
						zap.String("to", to.String()))
				},
			})
		}
		c.endpoints = append(c.endpoints, ep)
	}
	return c, nil
}

// Close closes every underlying RPC client.
func (c *Client) Close() {
	for _, ep := range c.endpoints {
		if ep.rpcClient != nil {
			ep.rpcClient.Close()
		}
	}
}

// do runs fn against the first endpoint that accepts it. Errors the node
// itself answered with (reverts, not found) are returned as is; transport
// failures demote the endpoint and move on to the next one.
func (c *Client) do(ctx context.Context, method string, fn func(context.Context, *ethclient.Client) error) error {
	var lastErr error
	for _, ep := range c.endpoints {
		if ep.breaker != nil {
			if err := ep.breaker.Allow(); err != nil {
				continue
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(callCtx, ep.ethClient)
		cancel()

		if err == nil || answeredByNode(err) {
			if ep.breaker != nil {
				ep.breaker.RecordSuccess()
			}
			metrics.RPCCallsTotal.WithLabelValues(ep.url, "ok").Inc()
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		metrics.RPCCallsTotal.WithLabelValues(ep.url, "error").Inc()
		if ep.breaker != nil {
			ep.breaker.RecordFailure()
		}
		c.logger.Warn("rpc call failed",
			zap.String("endpoint", ep.url),
			zap.String("method", method),
			zap.Error(err))
		lastErr = err
	}
	if lastErr == nil {
		lastErr = circuitbreaker.ErrOpen
	}
	return fmt.Errorf("%w: %s: %v", ErrChainUnavailable, method, lastErr)
}

func answeredByNode(err error) bool {
	if errors.Is(err, ethereum.NotFound) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return true
	}
	var dataErr rpc.DataError
	return errors.As(err, &dataErr)
}

// ChainID returns the chain ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.do(ctx, "eth_chainId", func(ctx context.Context, ec *ethclient.Client) error {
		var err error
		id, err = ec.ChainID(ctx)
		return err
	})
	return id, err
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := c.do(ctx, "eth_blockNumber", func(ctx context.Context, ec *ethclient.Client) error {
		var err error
		number, err = ec.BlockNumber(ctx)
		return err
	})
	return number, err
}

// BlockByNumber returns the block with full transactions.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	var block *types.Block
	err := c.do(ctx, "eth_getBlockByNumber", func(ctx context.Context, ec *ethclient.Client) error {
		var err error
		block, err = ec.BlockByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	if err == nil {
		c.tsCache.Add(number, block.Time())
	}
	return block, err
}

// HeaderByNumber returns the block header by number.
func (c *Client) HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	var header *types.Header
	err := c.do(ctx, "eth_getBlockByNumber", func(ctx context.Context, ec *ethclient.Client) error {
		var err error
		header, err = ec.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	return header, err
}

// BlockTimestamp returns the block timestamp, using an LRU cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if ts, ok := c.tsCache.Get(number); ok {
		return ts.(uint64), nil
	}
	header, err := c.HeaderByNumber(ctx, number)
	if err != nil {
		return 0, err
	}
	c.tsCache.Add(number, header.Time)
	return header.Time, nil
}

// TransactionReceipt returns the receipt of a mined transaction.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.do(ctx, "eth_getTransactionReceipt", func(ctx context.Context, ec *ethclient.Client) error {
		var err error
		receipt, err = ec.TransactionReceipt(ctx, hash)
		return err
	})
	return receipt, err
}

// TransactionSender returns the sender of a transaction included in block.
func (c *Client) TransactionSender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error) {
	var sender common.Address
	err := c.do(ctx, "eth_getTransactionByBlockHashAndIndex", func(ctx context.Context, ec *ethclient.Client) error {
		var err error
		sender, err = ec.TransactionSender(ctx, tx, block, index)
		return err
	})
	return sender, err
}

// FilterLogs returns logs in the given range for addresses and topic0
// filters. An empty address list matches every emitter.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	var logs []types.Log
	err := c.do(ctx, "eth_getLogs", func(ctx context.Context, ec *ethclient.Client) error {
		var err error
		logs, err = ec.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// CallContract performs an eth_call. A nil block number means latest.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.do(ctx, "eth_call", func(ctx context.Context, ec *ethclient.Client) error {
		var err error
		out, err = ec.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

func redact(url string) string {
	// API keys usually live in the path.
	const keep = 32
	if len(url) <= keep {
		return url
	}
	return url[:keep] + "..."
}
