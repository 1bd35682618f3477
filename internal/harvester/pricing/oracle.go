package pricing

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"web3-swaps/internal/harvester/registry"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ContractCaller 只读合约调用，由 pkg/evm_client 实现
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

const (
	defaultDecimals = int32(18)
	unknownSymbol   = "UNK"

	// sqrtPriceX96 平方后跨度可达 60 位十进制，除法保留 60 位
	ratioPrecision = 60
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

const v3PoolABIJSON = `[
	{"inputs":[],"name":"slot0","outputs":[{"name":"sqrtPriceX96","type":"uint160"},{"name":"tick","type":"int24"},{"name":"observationIndex","type":"uint16"},{"name":"observationCardinality","type":"uint16"},{"name":"observationCardinalityNext","type":"uint16"},{"name":"feeProtocol","type":"uint8"},{"name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var (
	erc20ABI  = mustParseABI(erc20ABIJSON)
	v3PoolABI = mustParseABI(v3PoolABIJSON)

	q192 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 192), 0)
	one  = decimal.NewFromInt(1)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// SqrtRatio (sqrtPriceX96/2^96)^2，即 token0 的 token1 原始单位计价
func SqrtRatio(sqrtPriceX96 *big.Int) decimal.Decimal {
	x := decimal.NewFromBigInt(sqrtPriceX96, 0)
	return x.Mul(x).DivRound(q192, ratioPrecision)
}

// AdjustedRatio 按两侧 decimals 归一后的人类可读价格：token0 以 token1 计价
func AdjustedRatio(sqrtPriceX96 *big.Int, dec0, dec1 int32) decimal.Decimal {
	return SqrtRatio(sqrtPriceX96).Mul(decimal.New(1, dec0-dec1))
}

// Assets 定价配置：参考资产、稳定币集合、参考/稳定基准池
type Assets struct {
	Reference        common.Address
	Stables          []common.Address
	ReferenceUSDPool common.Address
}

// Oracle 按 token+block 解析美元价，全部步骤读穿缓存
type Oracle struct {
	caller     ContractCaller
	caches     *Caches
	reg        *registry.Registry
	index      *registry.RoutingIndex
	reference  common.Address
	stables    map[common.Address]bool
	refUSDPool common.Address
	tl         *zap.Logger
}

func NewOracle(caller ContractCaller, caches *Caches, reg *registry.Registry, index *registry.RoutingIndex, assets Assets, tl *zap.Logger) *Oracle {
	stables := make(map[common.Address]bool, len(assets.Stables))
	for _, s := range assets.Stables {
		stables[s] = true
	}
	return &Oracle{
		caller:     caller,
		caches:     caches,
		reg:        reg,
		index:      index,
		reference:  assets.Reference,
		stables:    stables,
		refUSDPool: assets.ReferenceUSDPool,
		tl:         tl,
	}
}

// PriceUSD token 在 block 的美元现货价，无法定价时 ok=false（不回退为 0）
func (o *Oracle) PriceUSD(ctx context.Context, token common.Address, block uint64) (float64, bool) {
	if o.stables[token] {
		return 1.0, true
	}

	refUSD, err := o.ReferenceUSD(ctx, block)
	if err != nil {
		o.tl.Warn("reference price unavailable", zap.Uint64("block", block), zap.Error(err))
		return 0, false
	}

	if token == o.reference {
		return refUSD.InexactFloat64(), true
	}

	tokenRef, ok := o.tokenInReference(ctx, token, block)
	if !ok {
		return 0, false
	}
	return tokenRef.Mul(refUSD).InexactFloat64(), true
}

// ReferenceUSD 参考资产在 block 的稳定币计价，每区块缓存一次
func (o *Oracle) ReferenceUSD(ctx context.Context, block uint64) (decimal.Decimal, error) {
	if cached, found := o.caches.Price(refPriceKey(block)); found && cached != nil {
		return *cached, nil
	}

	t0, t1, err := o.poolTokens(ctx, o.refUSDPool)
	if err != nil {
		return decimal.Zero, err
	}

	sqrtPriceX96, err := o.slot0(ctx, o.refUSDPool, block)
	if err != nil {
		return decimal.Zero, err
	}
	if sqrtPriceX96.Sign() == 0 {
		return decimal.Zero, fmt.Errorf("pool %s uninitialized at block %d", o.refUSDPool.Hex(), block)
	}

	ratio := AdjustedRatio(sqrtPriceX96, o.TokenDecimals(ctx, t0), o.TokenDecimals(ctx, t1))

	var price decimal.Decimal
	switch o.reference {
	case t0:
		price = ratio
	case t1:
		price = one.DivRound(ratio, ratioPrecision)
	default:
		return decimal.Zero, fmt.Errorf("reference asset not in pool %s", o.refUSDPool.Hex())
	}

	o.caches.SetPrice(refPriceKey(block), &price)
	return price, nil
}

// tokenInReference 沿路由索引找第一个能报价的候选池，负结果也缓存
func (o *Oracle) tokenInReference(ctx context.Context, token common.Address, block uint64) (decimal.Decimal, bool) {
	if token == o.reference {
		return one, true
	}

	key := tokenPriceKey(token, block)
	if cached, found := o.caches.Price(key); found {
		if cached == nil {
			return decimal.Zero, false
		}
		return *cached, true
	}

	for _, pool := range o.index.Candidates(token) {
		meta, ok := o.reg.Meta(pool)
		if !ok {
			continue
		}
		if !(meta.Token0 == token && meta.Token1 == o.reference) &&
			!(meta.Token1 == token && meta.Token0 == o.reference) {
			continue
		}

		sqrtPriceX96, err := o.slot0(ctx, pool, block)
		if err != nil {
			o.tl.Debug("candidate pool quote failed",
				zap.String("pool", pool.Hex()), zap.String("token", token.Hex()),
				zap.Uint64("block", block), zap.Error(err))
			continue
		}
		if sqrtPriceX96.Sign() == 0 {
			continue
		}

		ratio := AdjustedRatio(sqrtPriceX96,
			o.TokenDecimals(ctx, meta.Token0), o.TokenDecimals(ctx, meta.Token1))

		var price decimal.Decimal
		if token == meta.Token0 {
			price = ratio
		} else {
			price = one.DivRound(ratio, ratioPrecision)
		}

		o.caches.SetPrice(key, &price)
		return price, true
	}

	o.caches.SetPrice(key, nil)
	return decimal.Zero, false
}

// TokenDecimals 查询失败时退化为 18 并缓存
func (o *Oracle) TokenDecimals(ctx context.Context, token common.Address) int32 {
	if d, found := o.caches.Decimals(token); found {
		return d
	}

	d := defaultDecimals
	out, err := o.call(ctx, token, erc20ABI, "decimals", nil)
	if err == nil && len(out) == 1 {
		if v, ok := out[0].(uint8); ok {
			d = int32(v)
		}
	} else {
		o.tl.Warn("decimals lookup failed, defaulting to 18", zap.String("token", token.Hex()), zap.Error(err))
	}

	o.caches.SetDecimals(token, d)
	return d
}

// TokenSymbol 查询失败时退化为 UNK 并缓存
func (o *Oracle) TokenSymbol(ctx context.Context, token common.Address) string {
	if sym, found := o.caches.Symbol(token); found {
		return sym
	}

	sym := unknownSymbol
	out, err := o.call(ctx, token, erc20ABI, "symbol", nil)
	if err == nil && len(out) == 1 {
		if v, ok := out[0].(string); ok && v != "" {
			sym = v
		}
	} else {
		o.tl.Warn("symbol lookup failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	o.caches.SetSymbol(token, sym)
	return sym
}

func (o *Oracle) poolTokens(ctx context.Context, pool common.Address) (common.Address, common.Address, error) {
	if tokens, found := o.caches.PoolTokens(pool); found {
		return tokens[0], tokens[1], nil
	}
	if meta, ok := o.reg.Meta(pool); ok {
		o.caches.SetPoolTokens(pool, [2]common.Address{meta.Token0, meta.Token1})
		return meta.Token0, meta.Token1, nil
	}

	// 基准池可能不在采集的元数据里，退回链上查询
	out0, err := o.call(ctx, pool, v3PoolABI, "token0", nil)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token0 of %s: %w", pool.Hex(), err)
	}
	out1, err := o.call(ctx, pool, v3PoolABI, "token1", nil)
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token1 of %s: %w", pool.Hex(), err)
	}
	t0, ok0 := out0[0].(common.Address)
	t1, ok1 := out1[0].(common.Address)
	if !ok0 || !ok1 {
		return common.Address{}, common.Address{}, fmt.Errorf("unexpected token output for pool %s", pool.Hex())
	}

	o.caches.SetPoolTokens(pool, [2]common.Address{t0, t1})
	return t0, t1, nil
}

func (o *Oracle) slot0(ctx context.Context, pool common.Address, block uint64) (*big.Int, error) {
	out, err := o.call(ctx, pool, v3PoolABI, "slot0", new(big.Int).SetUint64(block))
	if err != nil {
		return nil, fmt.Errorf("slot0 of %s at %d: %w", pool.Hex(), block, err)
	}
	sqrtPriceX96, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected slot0 output for pool %s", pool.Hex())
	}
	return sqrtPriceX96, nil
}

func (o *Oracle) call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, block *big.Int) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, err
	}
	raw, err := o.caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, block)
	if err != nil {
		return nil, err
	}
	return parsed.Unpack(method, raw)
}
