package dex

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"spreadScope/internal/model"
)

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// FetchTokenMeta loads decimals (required) and symbol (best effort) via ERC20 calls.
func FetchTokenMeta(ctx context.Context, caller ContractCaller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if logger == nil {
		logger = zap.NewNop()
	}

	stringABI, err := erc20StringABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}

	values, err := callMethod(ctx, caller, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("decimals: unsupported type %T", values[0])
	}
	meta.Decimals = decimals

	if values, err := callMethod(ctx, caller, token, stringABI, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
		return meta, nil
	}

	bytes32ABI, err := erc20Bytes32ABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}
	if values, err := callMethod(ctx, caller, token, bytes32ABI, "symbol", nil); err == nil {
		if raw, ok := values[0].([32]byte); ok {
			meta.Symbol = string(bytes.TrimRight(raw[:], "\x00"))
		}
	} else {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

// Resolve returns cached metadata or fetches and caches it.
func (c *TokenMetaCache) Resolve(ctx context.Context, caller ContractCaller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	if meta, ok := c.Get(token); ok {
		return meta, nil
	}
	meta, err := FetchTokenMeta(ctx, caller, token, logger)
	if err != nil {
		return meta, err
	}
	c.Set(token, meta)
	return meta, nil
}
