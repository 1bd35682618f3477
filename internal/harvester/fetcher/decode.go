package fetcher

import (
	"fmt"
	"math/big"
	"strings"

	"web3-swaps/internal/harvester/model"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const eventsABIJSON = `[
	{"anonymous":false,"name":"Swap","type":"event","inputs":[
		{"indexed":true,"name":"sender","type":"address"},
		{"indexed":true,"name":"recipient","type":"address"},
		{"indexed":false,"name":"amount0","type":"int256"},
		{"indexed":false,"name":"amount1","type":"int256"},
		{"indexed":false,"name":"sqrtPriceX96","type":"uint160"},
		{"indexed":false,"name":"liquidity","type":"uint128"},
		{"indexed":false,"name":"tick","type":"int24"}]},
	{"anonymous":false,"name":"PoolCreated","type":"event","inputs":[
		{"indexed":true,"name":"token0","type":"address"},
		{"indexed":true,"name":"token1","type":"address"},
		{"indexed":true,"name":"fee","type":"uint24"},
		{"indexed":false,"name":"tickSpacing","type":"int24"},
		{"indexed":false,"name":"pool","type":"address"}]}
]`

var (
	eventsABI = func() abi.ABI {
		parsed, err := abi.JSON(strings.NewReader(eventsABIJSON))
		if err != nil {
			panic(err)
		}
		return parsed
	}()

	SwapEventID        = eventsABI.Events["Swap"].ID
	PoolCreatedEventID = eventsABI.Events["PoolCreated"].ID
)

// DecodeSwap 把原始日志解码为类型化的 Swap 事件
func DecodeSwap(lg types.Log) (model.SwapEvent, error) {
	if len(lg.Topics) != 3 || lg.Topics[0] != SwapEventID {
		return model.SwapEvent{}, fmt.Errorf("not a swap log: %d topics", len(lg.Topics))
	}

	vals, err := eventsABI.Events["Swap"].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return model.SwapEvent{}, fmt.Errorf("unpack swap data: %w", err)
	}

	return model.SwapEvent{
		Event:       model.SWAP_EVENT_TYPE,
		Address:     lg.Address.Hex(),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash.Hex(),
		LogIndex:    lg.Index,
		Args: model.SwapArgs{
			Sender:       common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
			Recipient:    common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
			Amount0:      vals[0].(*big.Int),
			Amount1:      vals[1].(*big.Int),
			SqrtPriceX96: vals[2].(*big.Int),
			Liquidity:    vals[3].(*big.Int),
			Tick:         vals[4].(*big.Int).Int64(),
		},
	}, nil
}

// DecodePoolCreated 把原始日志解码为类型化的建池事件
func DecodePoolCreated(lg types.Log) (model.PoolCreatedEvent, error) {
	if len(lg.Topics) != 4 || lg.Topics[0] != PoolCreatedEventID {
		return model.PoolCreatedEvent{}, fmt.Errorf("not a pool created log: %d topics", len(lg.Topics))
	}

	vals, err := eventsABI.Events["PoolCreated"].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return model.PoolCreatedEvent{}, fmt.Errorf("unpack pool created data: %w", err)
	}

	return model.PoolCreatedEvent{
		Event:       model.POOL_CREATED_EVENT_TYPE,
		Address:     lg.Address.Hex(),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash.Hex(),
		LogIndex:    lg.Index,
		Args: model.PoolCreatedArgs{
			Token0:      common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
			Token1:      common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
			Fee:         new(big.Int).SetBytes(lg.Topics[3].Bytes()).Int64(),
			TickSpacing: vals[0].(*big.Int).Int64(),
			Pool:        vals[1].(common.Address).Hex(),
		},
	}, nil
}
