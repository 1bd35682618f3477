package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	SWAP_EVENT_TYPE         = "Swap"
	POOL_CREATED_EVENT_TYPE = "PoolCreated"
)

// SwapEvent 解码后的 UniswapV3 Swap 事件
// 唯一键：(address, transactionHash, logIndex)
type SwapEvent struct {
	Event       string   `json:"event"`
	Address     string   `json:"address"`
	BlockNumber uint64   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    uint     `json:"logIndex"`
	Args        SwapArgs `json:"args"`
}

type SwapArgs struct {
	Sender       string   `json:"sender"`
	Recipient    string   `json:"recipient"`
	Amount0      *big.Int `json:"amount0"`
	Amount1      *big.Int `json:"amount1"`
	SqrtPriceX96 *big.Int `json:"sqrtPriceX96"`
	Liquidity    *big.Int `json:"liquidity"`
	Tick         int64    `json:"tick"`
}

// EnrichedSwap 原始事件外加估值字段，AmountUSD 为 nil 表示无法定价
type EnrichedSwap struct {
	SwapEvent
	Timestamp      uint64   `json:"timestamp"`
	Token0Symbol   string   `json:"token0_symbol"`
	Token1Symbol   string   `json:"token1_symbol"`
	Token0Decimals int32    `json:"token0_decimals"`
	Token1Decimals int32    `json:"token1_decimals"`
	AmountUSD      *float64 `json:"amountUSD"`
}

// PoolCreatedEvent 工厂合约的建池事件，池元数据的采集来源
type PoolCreatedEvent struct {
	Event       string          `json:"event"`
	Address     string          `json:"address"`
	BlockNumber uint64          `json:"blockNumber"`
	TxHash      string          `json:"transactionHash"`
	LogIndex    uint            `json:"logIndex"`
	Args        PoolCreatedArgs `json:"args"`
}

type PoolCreatedArgs struct {
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Fee         int64  `json:"fee"`
	TickSpacing int64  `json:"tickSpacing"`
	Pool        string `json:"pool"`
}

// Task 一个按日分片的抓取任务，启动时构建，worker 消费一次
type Task struct {
	Chain      string
	FromBlock  uint64
	ToBlock    uint64
	Pools      []common.Address
	OutputPath string
	Label      string
}
