package harvester

import (
	"bytes"
	"context"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"web3-swaps/internal/harvester/model"
	"web3-swaps/internal/harvester/pricing"
	"web3-swaps/internal/harvester/registry"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	refToken  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	stableTok = common.HexToAddress("0x0000000000000000000000000000000000000002")
	tokenA    = common.HexToAddress("0x0000000000000000000000000000000000000003")
	tokenB    = common.HexToAddress("0x0000000000000000000000000000000000000004")
	tokenC    = common.HexToAddress("0x0000000000000000000000000000000000000005")
	tokenX    = common.HexToAddress("0x0000000000000000000000000000000000000006")

	refPool = common.HexToAddress("0x0000000000000000000000000000000000000010")
	poolA   = common.HexToAddress("0x0000000000000000000000000000000000000011")
	poolB   = common.HexToAddress("0x0000000000000000000000000000000000000012")
	poolC   = common.HexToAddress("0x0000000000000000000000000000000000000013")
)

var (
	testERC20ABI = mustABI(`[
		{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
		{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
	]`)
	testPoolABI = mustABI(`[
		{"inputs":[],"name":"slot0","outputs":[{"name":"sqrtPriceX96","type":"uint160"},{"name":"tick","type":"int24"},{"name":"observationIndex","type":"uint16"},{"name":"observationCardinality","type":"uint16"},{"name":"observationCardinalityNext","type":"uint16"},{"name":"feeProtocol","type":"uint8"},{"name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"}
	]`)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// fakeChain 同时充当合约调用方与区块时钟
type fakeChain struct {
	decimals map[common.Address]uint8
	symbols  map[common.Address]string
	sqrt     map[common.Address]*big.Int

	tsCalls int
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	to := *msg.To
	switch {
	case bytes.HasPrefix(msg.Data, testERC20ABI.Methods["decimals"].ID):
		d, ok := f.decimals[to]
		if !ok {
			return nil, ethereum.NotFound
		}
		return testERC20ABI.Methods["decimals"].Outputs.Pack(d)
	case bytes.HasPrefix(msg.Data, testERC20ABI.Methods["symbol"].ID):
		sym, ok := f.symbols[to]
		if !ok {
			return nil, ethereum.NotFound
		}
		return testERC20ABI.Methods["symbol"].Outputs.Pack(sym)
	case bytes.HasPrefix(msg.Data, testPoolABI.Methods["slot0"].ID):
		sqrt := f.sqrt[to]
		if sqrt == nil {
			sqrt = big.NewInt(0)
		}
		return testPoolABI.Methods["slot0"].Outputs.Pack(
			sqrt, big.NewInt(0), uint16(0), uint16(0), uint16(0), uint8(0), true)
	}
	return nil, ethereum.NotFound
}

func (f *fakeChain) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	f.tsCalls++
	return 1_700_000_000 + number*12, nil
}

func sqrtX96(k int64) *big.Int {
	return new(big.Int).Lsh(big.NewInt(k), 96)
}

func newTestEnricher(t *testing.T) (*Enricher, *fakeChain) {
	t.Helper()

	dir := t.TempDir()
	captures := []model.PoolCreatedEvent{
		{Event: model.POOL_CREATED_EVENT_TYPE, BlockNumber: 1, Args: model.PoolCreatedArgs{
			Token0: refToken.Hex(), Token1: stableTok.Hex(), Pool: refPool.Hex()}},
		{Event: model.POOL_CREATED_EVENT_TYPE, BlockNumber: 2, Args: model.PoolCreatedArgs{
			Token0: tokenA.Hex(), Token1: refToken.Hex(), Pool: poolA.Hex()}},
		{Event: model.POOL_CREATED_EVENT_TYPE, BlockNumber: 3, Args: model.PoolCreatedArgs{
			Token0: tokenB.Hex(), Token1: tokenX.Hex(), Pool: poolB.Hex()}},
		{Event: model.POOL_CREATED_EVENT_TYPE, BlockNumber: 4, Args: model.PoolCreatedArgs{
			Token0: tokenC.Hex(), Token1: refToken.Hex(), Pool: poolC.Hex()}},
	}
	raw, err := sonic.Marshal(captures)
	if err != nil {
		t.Fatalf("marshal captures: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ethereum_v3_pools_0_100.json"), raw, 0o644); err != nil {
		t.Fatalf("write captures: %v", err)
	}

	reg, err := registry.Load(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	index := registry.BuildRoutingIndex(reg, refToken)

	chain := &fakeChain{
		decimals: map[common.Address]uint8{
			refToken: 18, stableTok: 18, tokenA: 18, tokenB: 18, tokenC: 18, tokenX: 18,
		},
		symbols: map[common.Address]string{
			refToken: "WETH", stableTok: "USDT",
			tokenA: "AAA", tokenB: "BBB", tokenC: "CCC", tokenX: "XXX",
		},
		sqrt: map[common.Address]*big.Int{
			refPool: sqrtX96(45), // 参考资产 45^2 = 2025 美元
			poolA:   sqrtX96(2),  // tokenA = 4 个参考资产
			// poolC 不给报价，走事件自带的 sqrtPriceX96
		},
	}

	caches := pricing.NewCaches()
	oracle := pricing.NewOracle(chain, caches, reg, index, pricing.Assets{
		Reference:        refToken,
		Stables:          []common.Address{stableTok},
		ReferenceUSDPool: refPool,
	}, zap.NewNop())

	return NewEnricher(oracle, reg, caches, chain, refToken, zap.NewNop()), chain
}

func swapAt(pool common.Address, block uint64, amount0 *big.Int) model.SwapEvent {
	return model.SwapEvent{
		Event:       model.SWAP_EVENT_TYPE,
		Address:     pool.Hex(),
		BlockNumber: block,
		TxHash:      "0xabc",
		LogIndex:    7,
		Args: model.SwapArgs{
			Amount0:      amount0,
			Amount1:      big.NewInt(-1),
			SqrtPriceX96: sqrtX96(2),
			Liquidity:    big.NewInt(1),
			Tick:         0,
		},
	}
}

func TestEnrichRoutableAndUnroutableSiblings(t *testing.T) {
	e, _ := newTestEnricher(t)
	ctx := context.Background()

	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	priced := e.Enrich(ctx, swapAt(poolA, 100, oneToken))
	if priced.AmountUSD == nil {
		t.Fatal("routable swap lost its valuation")
	}
	if *priced.AmountUSD != 8100.0 {
		t.Fatalf("amountUSD = %v, want 1 * 4 * 2025 = 8100", *priced.AmountUSD)
	}
	if priced.Token0Symbol != "AAA" || priced.Token1Symbol != "WETH" {
		t.Fatalf("symbols = %s/%s", priced.Token0Symbol, priced.Token1Symbol)
	}
	if priced.Timestamp != 1_700_000_000+100*12 {
		t.Fatalf("timestamp = %d", priced.Timestamp)
	}

	// 同一批里无路由的兄弟事件：字段照常补全，估值为 nil
	unpriced := e.Enrich(ctx, swapAt(poolB, 100, oneToken))
	if unpriced.AmountUSD != nil {
		t.Fatalf("unroutable swap got amountUSD = %v", *unpriced.AmountUSD)
	}
	if unpriced.Token0Symbol != "BBB" || unpriced.Token0Decimals != 18 {
		t.Fatalf("metadata missing on unpriced swap: %s/%d",
			unpriced.Token0Symbol, unpriced.Token0Decimals)
	}
}

func TestEnrichNegativeAmountUsesMagnitude(t *testing.T) {
	e, _ := newTestEnricher(t)

	neg := new(big.Int).Neg(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	out := e.Enrich(context.Background(), swapAt(poolA, 100, neg))
	if out.AmountUSD == nil || *out.AmountUSD != 8100.0 {
		t.Fatalf("amountUSD = %v, want 8100", out.AmountUSD)
	}
}

func TestEnrichUnknownPool(t *testing.T) {
	e, _ := newTestEnricher(t)

	stranger := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	out := e.Enrich(context.Background(), swapAt(stranger, 100, big.NewInt(1)))
	if out.AmountUSD != nil {
		t.Fatal("swap from unknown pool must not be valued")
	}
	if out.Token0Symbol != "UNK" || out.Token1Symbol != "UNK" {
		t.Fatalf("symbols = %s/%s, want UNK/UNK", out.Token0Symbol, out.Token1Symbol)
	}
	if out.Token0Decimals != 18 || out.Token1Decimals != 18 {
		t.Fatalf("decimals = %d/%d, want defaults", out.Token0Decimals, out.Token1Decimals)
	}
	if out.Timestamp == 0 {
		t.Fatal("timestamp should still resolve for unknown pools")
	}
}

func TestEnrichFallsBackToEventRatio(t *testing.T) {
	e, _ := newTestEnricher(t)

	// poolC 在链上无报价，但事件本身带 sqrtPriceX96：3^2 = 9 个参考资产
	ev := swapAt(poolC, 100, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	ev.Args.SqrtPriceX96 = sqrtX96(3)

	out := e.Enrich(context.Background(), ev)
	if out.AmountUSD == nil {
		t.Fatal("event-ratio fallback did not fire")
	}
	if *out.AmountUSD != 9*2025.0 {
		t.Fatalf("amountUSD = %v, want 9 * 2025 = 18225", *out.AmountUSD)
	}
}

func TestEnrichCachesBlockTimestamps(t *testing.T) {
	e, chain := newTestEnricher(t)
	ctx := context.Background()

	one := big.NewInt(1)
	e.Enrich(ctx, swapAt(poolA, 100, one))
	e.Enrich(ctx, swapAt(poolB, 100, one))
	e.Enrich(ctx, swapAt(poolA, 101, one))

	if chain.tsCalls != 2 {
		t.Fatalf("timestamp lookups = %d, want one per distinct block", chain.tsCalls)
	}
}
