package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"web3-swaps/internal/harvester/model"
	"web3-swaps/internal/harvester/monitor"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// LogReader 日志抓取的传输层，由 pkg/evm_client 实现
type LogReader interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// rangeTooLargeCode 节点对超限区间返回的错误码（Infura -32005）
const rangeTooLargeCode = -32005

// RangeError 某个区块区间的终态失败，带上失败区间供调用方记录或重排
type RangeError struct {
	From uint64
	To   uint64
	Err  error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("blocks %d-%d: %v", e.From, e.To, e.Err)
}

func (e *RangeError) Unwrap() error {
	return e.Err
}

func isRangeTooLarge(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && rpcErr.ErrorCode() == rangeTooLargeCode
}

type outcome int

const (
	outcomeFatal outcome = iota
	outcomeSplit
)

// classify 判定失败区间能否继续二分：只有范围超限错误且区间多于一个区块才可分
func classify(err error, from, to uint64) outcome {
	if isRangeTooLarge(err) && to > from {
		return outcomeSplit
	}
	return outcomeFatal
}

// Fetcher 自适应日志抓取器：遇到范围超限错误时对区间递归二分
// 任意二分路径的输出与一次性抓取完全一致（内容与顺序都不变）
type Fetcher struct {
	client LogReader
	chain  string
	tl     *zap.Logger
}

func New(client LogReader, chain string, tl *zap.Logger) *Fetcher {
	return &Fetcher{client: client, chain: chain, tl: tl}
}

// SwapEvents 抓取并解码 [from,to] 区间内 pools 的 Swap 事件
// 顺序：区块号升序，块内按 logIndex（节点的返回序）
func (f *Fetcher) SwapEvents(ctx context.Context, pools []common.Address, from, to uint64) ([]model.SwapEvent, error) {
	logs, err := f.fetchLogs(ctx, pools, SwapEventID, from, to)
	if err != nil {
		return nil, err
	}

	events := make([]model.SwapEvent, 0, len(logs))
	for _, lg := range logs {
		evt, err := DecodeSwap(lg)
		if err != nil {
			f.tl.Warn("skip undecodable swap log",
				zap.String("tx", lg.TxHash.Hex()), zap.Uint("logIndex", lg.Index), zap.Error(err))
			continue
		}
		events = append(events, evt)
	}
	return events, nil
}

// PoolCreatedEvents 抓取并解码工厂合约的建池事件
func (f *Fetcher) PoolCreatedEvents(ctx context.Context, factory common.Address, from, to uint64) ([]model.PoolCreatedEvent, error) {
	logs, err := f.fetchLogs(ctx, []common.Address{factory}, PoolCreatedEventID, from, to)
	if err != nil {
		return nil, err
	}

	events := make([]model.PoolCreatedEvent, 0, len(logs))
	for _, lg := range logs {
		evt, err := DecodePoolCreated(lg)
		if err != nil {
			f.tl.Warn("skip undecodable pool log",
				zap.String("tx", lg.TxHash.Hex()), zap.Uint("logIndex", lg.Index), zap.Error(err))
			continue
		}
		events = append(events, evt)
	}
	return events, nil
}

func (f *Fetcher) fetchLogs(ctx context.Context, addrs []common.Address, topic common.Hash, from, to uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addrs,
		Topics:    [][]common.Hash{{topic}},
	}

	logs, err := f.client.FilterLogs(ctx, query)
	if err == nil {
		return logs, nil
	}

	switch classify(err, from, to) {
	case outcomeSplit:
		monitor.FetcherBisections.WithLabelValues(f.chain).Inc()
		mid := from + (to-from)/2
		f.tl.Debug("range too large, bisecting",
			zap.Uint64("from", from), zap.Uint64("mid", mid), zap.Uint64("to", to))

		left, err := f.fetchLogs(ctx, addrs, topic, from, mid)
		if err != nil {
			return nil, err
		}
		right, err := f.fetchLogs(ctx, addrs, topic, mid+1, to)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil

	default:
		monitor.FetcherRPCErrors.WithLabelValues(f.chain).Inc()
		return nil, &RangeError{From: from, To: to, Err: err}
	}
}
