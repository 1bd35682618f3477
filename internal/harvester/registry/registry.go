package registry

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"web3-swaps/internal/harvester/model"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// PoolMeta 池的两个代币，采集后只读
type PoolMeta struct {
	Token0 common.Address
	Token1 common.Address
}

type PoolCreation struct {
	Pool  common.Address
	Block uint64
}

// Registry 建池事件采集得到的池元数据表
type Registry struct {
	pools    map[common.Address]PoolMeta
	creation []PoolCreation // 按创建区块升序
	tl       *zap.Logger
}

// Load 读取 dir 下所有 *.json / *.jsonl 采集文件
// 兼容 JSON 数组与 JSON-lines 两种格式，坏记录跳过不致命
func Load(dir string, tl *zap.Logger) (*Registry, error) {
	r := &Registry{
		pools: make(map[common.Address]PoolMeta),
		tl:    tl,
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.json*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	for _, file := range files {
		if err := r.loadFile(file); err != nil {
			tl.Error("load pool capture file", zap.String("file", file), zap.Error(err))
		}
	}

	sort.SliceStable(r.creation, func(i, j int) bool {
		return r.creation[i].Block < r.creation[j].Block
	})

	tl.Info("pool registry loaded", zap.Int("pools", len(r.pools)), zap.Int("files", len(files)))
	return r, nil
}

func (r *Registry) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var events []model.PoolCreatedEvent
	if err := sonic.Unmarshal(raw, &events); err == nil {
		for _, evt := range events {
			r.add(evt)
		}
		return nil
	}

	// 不是数组，按行解析
	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var evt model.PoolCreatedEvent
		if err := sonic.Unmarshal([]byte(line), &evt); err != nil {
			r.tl.Warn("skip malformed pool record", zap.String("file", filepath.Base(path)), zap.Error(err))
			continue
		}
		r.add(evt)
	}
	return scanner.Err()
}

func (r *Registry) add(evt model.PoolCreatedEvent) {
	if evt.Event != model.POOL_CREATED_EVENT_TYPE || evt.Args.Pool == "" {
		return
	}
	pool := common.HexToAddress(evt.Args.Pool)
	if _, seen := r.pools[pool]; seen {
		return
	}
	r.pools[pool] = PoolMeta{
		Token0: common.HexToAddress(evt.Args.Token0),
		Token1: common.HexToAddress(evt.Args.Token1),
	}
	r.creation = append(r.creation, PoolCreation{Pool: pool, Block: evt.BlockNumber})
}

func (r *Registry) Meta(pool common.Address) (PoolMeta, bool) {
	meta, ok := r.pools[pool]
	return meta, ok
}

func (r *Registry) Len() int {
	return len(r.pools)
}

// PoolsAsOf 返回创建区块不超过 block 的所有池，按创建顺序
func (r *Registry) PoolsAsOf(block uint64) []common.Address {
	pools := make([]common.Address, 0, len(r.creation))
	for _, c := range r.creation {
		if c.Block > block {
			break
		}
		pools = append(pools, c.Pool)
	}
	return pools
}

// RoutingIndex token → 与参考资产配对的候选池，构建后只读
// 解析价格时按构建顺序取第一个能给出报价的池
type RoutingIndex struct {
	reference common.Address
	routes    map[common.Address][]common.Address
}

// BuildRoutingIndex 从池元数据推导参考资产邻接表
func BuildRoutingIndex(r *Registry, reference common.Address) *RoutingIndex {
	ix := &RoutingIndex{
		reference: reference,
		routes:    make(map[common.Address][]common.Address),
	}
	// 按创建顺序遍历，保证索引顺序确定
	for _, c := range r.creation {
		meta := r.pools[c.Pool]
		var other common.Address
		switch reference {
		case meta.Token0:
			other = meta.Token1
		case meta.Token1:
			other = meta.Token0
		default:
			continue
		}
		ix.routes[other] = append(ix.routes[other], c.Pool)
	}
	return ix
}

func (ix *RoutingIndex) Reference() common.Address {
	return ix.reference
}

// Candidates token 的候选池列表，可能为空
func (ix *RoutingIndex) Candidates(token common.Address) []common.Address {
	return ix.routes[token]
}
