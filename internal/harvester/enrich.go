package harvester

import (
	"context"
	"math/big"

	"web3-swaps/internal/harvester/model"
	"web3-swaps/internal/harvester/pricing"
	"web3-swaps/internal/harvester/registry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TimestampSource 区块时间戳访问器，由 pkg/evm_client 实现
type TimestampSource interface {
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Enricher 把原始 Swap 事件补全为带估值的记录
// 估值失败只导致 AmountUSD 为 nil，事件本身照常写出
type Enricher struct {
	oracle    *pricing.Oracle
	reg       *registry.Registry
	caches    *pricing.Caches
	clock     TimestampSource
	reference common.Address
	tl        *zap.Logger
}

func NewEnricher(oracle *pricing.Oracle, reg *registry.Registry, caches *pricing.Caches, clock TimestampSource, reference common.Address, tl *zap.Logger) *Enricher {
	return &Enricher{
		oracle:    oracle,
		reg:       reg,
		caches:    caches,
		clock:     clock,
		reference: reference,
		tl:        tl,
	}
}

func (e *Enricher) blockTime(ctx context.Context, block uint64) uint64 {
	if ts, found := e.caches.BlockTimestamp(block); found {
		return ts
	}
	ts, err := e.clock.BlockTimestamp(ctx, block)
	if err != nil {
		e.tl.Warn("block timestamp lookup failed", zap.Uint64("block", block), zap.Error(err))
		return 0
	}
	e.caches.SetBlockTimestamp(block, ts)
	return ts
}

// Enrich 永不失败：缺元数据、缺报价都退化成默认值或 nil
func (e *Enricher) Enrich(ctx context.Context, ev model.SwapEvent) model.EnrichedSwap {
	out := model.EnrichedSwap{
		SwapEvent:      ev,
		Token0Symbol:   "UNK",
		Token1Symbol:   "UNK",
		Token0Decimals: 18,
		Token1Decimals: 18,
	}
	out.Timestamp = e.blockTime(ctx, ev.BlockNumber)

	pool := common.HexToAddress(ev.Address)
	meta, ok := e.reg.Meta(pool)
	if !ok {
		e.tl.Warn("swap from unknown pool", zap.String("pool", ev.Address),
			zap.Uint64("block", ev.BlockNumber))
		return out
	}

	dec0 := e.oracle.TokenDecimals(ctx, meta.Token0)
	dec1 := e.oracle.TokenDecimals(ctx, meta.Token1)
	out.Token0Symbol = e.oracle.TokenSymbol(ctx, meta.Token0)
	out.Token1Symbol = e.oracle.TokenSymbol(ctx, meta.Token1)
	out.Token0Decimals = dec0
	out.Token1Decimals = dec1

	if ev.Args.Amount0 == nil {
		return out
	}

	price0, priced := e.oracle.PriceUSD(ctx, meta.Token0, ev.BlockNumber)
	if !priced && meta.Token1 == e.reference {
		// token0 无路由但对手方就是参考资产：直接用事件自带的 sqrtPriceX96
		price0, priced = e.priceFromEventRatio(ctx, ev, dec0, dec1)
	}
	if !priced {
		return out
	}

	amount0 := decimal.NewFromBigInt(new(big.Int).Abs(ev.Args.Amount0), -dec0)
	usd := amount0.InexactFloat64() * price0
	out.AmountUSD = &usd
	return out
}

func (e *Enricher) priceFromEventRatio(ctx context.Context, ev model.SwapEvent, dec0, dec1 int32) (float64, bool) {
	if ev.Args.SqrtPriceX96 == nil || ev.Args.SqrtPriceX96.Sign() == 0 {
		return 0, false
	}
	refUSD, err := e.oracle.ReferenceUSD(ctx, ev.BlockNumber)
	if err != nil {
		return 0, false
	}
	tokenRef := pricing.AdjustedRatio(ev.Args.SqrtPriceX96, dec0, dec1)
	return tokenRef.Mul(refUSD).InexactFloat64(), true
}
