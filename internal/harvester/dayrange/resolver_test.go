package dayrange

import (
	"context"
	"testing"
	"time"

	"web3-swaps/internal/harvester/pricing"

	"go.uber.org/zap"
)

// fakeChain 固定时间戳序列，块号即下标
type fakeChain struct {
	timestamps []uint64
	lookups    int
}

func (f *fakeChain) LatestBlock(ctx context.Context) (uint64, error) {
	return uint64(len(f.timestamps) - 1), nil
}

func (f *fakeChain) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	f.lookups++
	return f.timestamps[number], nil
}

// 12 秒一块的匀速链
func uniformChain(genesis uint64, blocks int) *fakeChain {
	ts := make([]uint64, blocks)
	for i := range ts {
		ts[i] = genesis + uint64(i)*12
	}
	return &fakeChain{timestamps: ts}
}

func mustUTC(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatal(err)
	}
	return parsed.UTC()
}

func newResolver(chain *fakeChain) *Resolver {
	return NewResolver(chain, pricing.NewCaches(), zap.NewNop())
}

func TestResolveBlockMonotonic(t *testing.T) {
	genesis := uint64(mustUTC(t, "2024-01-01").Unix())
	chain := uniformChain(genesis, 3*7200) // 三天
	r := newResolver(chain)

	var prev uint64
	for _, offset := range []uint64{0, 1, 11, 12, 86400, 86401, 172800} {
		got, err := r.ResolveBlock(context.Background(), genesis+offset)
		if err != nil {
			t.Fatal(err)
		}
		if got < prev {
			t.Errorf("ResolveBlock(%d) = %d < previous %d, not monotonic", offset, got, prev)
		}
		// 最小的时间戳 ≥ target 的块
		if ts := chain.timestamps[got]; ts < genesis+offset {
			t.Errorf("block %d ts %d < target %d", got, ts, genesis+offset)
		}
		if got > 0 {
			if ts := chain.timestamps[got-1]; ts >= genesis+offset {
				t.Errorf("block %d is not the smallest: predecessor ts %d >= target", got, ts)
			}
		}
		prev = got
	}
}

func TestSplitIntoDaysCoverage(t *testing.T) {
	genesis := uint64(mustUTC(t, "2024-01-01").Unix())
	chain := uniformChain(genesis, 4*7200)
	r := newResolver(chain)

	ranges, err := r.SplitIntoDays(context.Background(), mustUTC(t, "2024-01-01"), mustUTC(t, "2024-01-04"))
	if err != nil {
		t.Fatal(err)
	}
	if len(ranges) != 3 {
		t.Fatalf("ranges = %d, want 3", len(ranges))
	}

	if ranges[0].Label != "20240101" || ranges[2].Label != "20240103" {
		t.Errorf("labels = %s..%s", ranges[0].Label, ranges[2].Label)
	}

	// 相邻分区正好衔接：无缝隙、无重叠
	for i := 1; i < len(ranges); i++ {
		if ranges[i].FromBlock != ranges[i-1].ToBlock+1 {
			t.Errorf("gap/overlap between day %d and %d: %d..%d then %d..%d",
				i-1, i, ranges[i-1].FromBlock, ranges[i-1].ToBlock, ranges[i].FromBlock, ranges[i].ToBlock)
		}
	}

	// 覆盖恰好是时间戳在 [start,end) 内的区块
	start := uint64(mustUTC(t, "2024-01-01").Unix())
	end := uint64(mustUTC(t, "2024-01-04").Unix())
	first, last := ranges[0].FromBlock, ranges[len(ranges)-1].ToBlock
	if chain.timestamps[first] < start {
		t.Error("first block before range start")
	}
	if first > 0 && chain.timestamps[first-1] >= start {
		t.Error("block before first partition belongs in range")
	}
	if chain.timestamps[last] >= end {
		t.Error("last block at or after range end")
	}
	if chain.timestamps[last+1] < end {
		t.Error("block after last partition belongs in range")
	}
}

func TestSplitSkipsEmptyDay(t *testing.T) {
	day1 := uint64(mustUTC(t, "2024-01-01").Unix())
	day3 := uint64(mustUTC(t, "2024-01-03").Unix())

	// 第一天正常出块，然后整条链停了一天，第三天恢复
	var ts []uint64
	for i := 0; i < 7200; i++ {
		ts = append(ts, day1+uint64(i)*12)
	}
	for i := 0; i < 7200; i++ {
		ts = append(ts, day3+uint64(i)*12)
	}
	chain := &fakeChain{timestamps: ts}
	r := newResolver(chain)

	ranges, err := r.SplitIntoDays(context.Background(), mustUTC(t, "2024-01-01"), mustUTC(t, "2024-01-04"))
	if err != nil {
		t.Fatal(err)
	}
	if len(ranges) != 2 {
		t.Fatalf("ranges = %d, want 2 (empty day skipped)", len(ranges))
	}
	if ranges[0].Label != "20240101" || ranges[1].Label != "20240103" {
		t.Errorf("labels = %s, %s", ranges[0].Label, ranges[1].Label)
	}
}

func TestTimestampLookupsCached(t *testing.T) {
	genesis := uint64(mustUTC(t, "2024-01-01").Unix())
	chain := uniformChain(genesis, 7200)
	r := newResolver(chain)

	if _, err := r.ResolveBlock(context.Background(), genesis+3600); err != nil {
		t.Fatal(err)
	}
	first := chain.lookups
	if _, err := r.ResolveBlock(context.Background(), genesis+3600); err != nil {
		t.Fatal(err)
	}
	if chain.lookups != first {
		t.Errorf("second resolve issued %d extra lookups, want 0", chain.lookups-first)
	}
}
