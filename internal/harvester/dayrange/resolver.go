package dayrange

import (
	"context"
	"time"

	"web3-swaps/internal/harvester/pricing"

	"go.uber.org/zap"
)

// BlockTimeSource 区块时间戳访问器，由 pkg/evm_client 实现
type BlockTimeSource interface {
	LatestBlock(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// DayRange 一个日历日（UTC 零点边界）对应的闭区间区块范围
type DayRange struct {
	FromBlock uint64
	ToBlock   uint64
	Label     string // YYYYMMDD
}

// Resolver 用时间戳二分把日历日边界换算成区块号
// 分区边界用固定零时区，不做夏令时调整，保证切分确定
type Resolver struct {
	client BlockTimeSource
	caches *pricing.Caches
	tl     *zap.Logger

	head   uint64
	headTS uint64
}

func NewResolver(client BlockTimeSource, caches *pricing.Caches, tl *zap.Logger) *Resolver {
	return &Resolver{client: client, caches: caches, tl: tl}
}

func (r *Resolver) blockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if ts, found := r.caches.BlockTimestamp(number); found {
		return ts, nil
	}
	ts, err := r.client.BlockTimestamp(ctx, number)
	if err != nil {
		return 0, err
	}
	r.caches.SetBlockTimestamp(number, ts)
	return ts, nil
}

// target 超过已知链头时间时，先把搜索上界刷到当前链头
func (r *Resolver) ensureHead(ctx context.Context, target uint64) error {
	if r.head != 0 && target <= r.headTS {
		return nil
	}
	head, err := r.client.LatestBlock(ctx)
	if err != nil {
		return err
	}
	headTS, err := r.blockTimestamp(ctx, head)
	if err != nil {
		return err
	}
	r.head, r.headTS = head, headTS
	return nil
}

// ResolveBlock 返回时间戳 ≥ target 的最小区块号
// 区块时间戳单调不减，经典整数二分，O(log N) 次时间戳查询
func (r *Resolver) ResolveBlock(ctx context.Context, target uint64) (uint64, error) {
	if err := r.ensureHead(ctx, target); err != nil {
		return 0, err
	}

	low, high := uint64(0), r.head
	for low < high {
		mid := low + (high-low)/2
		ts, err := r.blockTimestamp(ctx, mid)
		if err != nil {
			return 0, err
		}
		if ts < target {
			low = mid + 1
		} else {
			high = mid
		}
	}
	return low, nil
}

// SplitIntoDays 把 [start,end) 内的每个 UTC 日换算成 (from,to,label)
// 相邻分区在日边界正好衔接：无缝隙、无重叠；没有区块的日子跳过
func (r *Resolver) SplitIntoDays(ctx context.Context, start, end time.Time) ([]DayRange, error) {
	var ranges []DayRange

	for day := start.UTC(); day.Before(end); day = day.Add(24 * time.Hour) {
		nextDay := day.Add(24 * time.Hour)

		from, err := r.ResolveBlock(ctx, uint64(day.Unix()))
		if err != nil {
			return nil, err
		}
		toNext, err := r.ResolveBlock(ctx, uint64(nextDay.Unix()))
		if err != nil {
			return nil, err
		}
		if toNext == 0 {
			continue
		}
		to := toNext - 1

		if to >= from {
			ranges = append(ranges, DayRange{
				FromBlock: from,
				ToBlock:   to,
				Label:     day.Format("20060102"),
			})
		} else {
			r.tl.Warn("day has no blocks, skipping", zap.String("day", day.Format("20060102")))
		}
	}

	return ranges, nil
}
