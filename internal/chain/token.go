package chain

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const erc20ABIName = "erc20"

// TokenMeta describes an ERC20 token.
type TokenMeta struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// TokenMeta loads decimals and symbol of an ERC20 token. Tokens that do not
// answer decimals() are treated as 18 decimals and are not cached.
func (r *Registry) TokenMeta(ctx context.Context, cache *TokenMetaCache, token common.Address, logger *zap.Logger) TokenMeta {
	if cache != nil {
		if meta, ok := cache.Get(token); ok {
			return meta
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	meta := TokenMeta{Address: token, Decimals: 18}
	values, err := r.CallAt(ctx, token, erc20ABIName, "decimals", nil)
	if err != nil {
		logger.Debug("decimals call failed", zap.String("token", token.Hex()), zap.Error(err))
		return meta
	}
	if decimals, err := AsUint8(values[0]); err == nil {
		meta.Decimals = decimals
	}
	if values, err := r.CallAt(ctx, token, erc20ABIName, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if cache != nil {
		cache.Set(token, meta)
	}
	return meta
}
