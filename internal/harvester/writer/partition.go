package writer

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

// 分区文件布局（与采集数据的目录结构一致）：
//   <root>/<chain>/swap/<chain>_v3_swaps_<YYYYMMDD>.jsonl
//   <root>/<chain>/pool/<from>_<to>.jsonl

func SwapDir(root, chain string) string {
	return filepath.Join(root, chain, "swap")
}

func PoolDir(root, chain string) string {
	return filepath.Join(root, chain, "pool")
}

func DayPath(root, chain, label string) string {
	return filepath.Join(SwapDir(root, chain), fmt.Sprintf("%s_v3_swaps_%s.jsonl", chain, label))
}

func WindowPath(root, chain string, from, to uint64) string {
	return filepath.Join(PoolDir(root, chain), fmt.Sprintf("%d_%d.jsonl", from, to))
}

// Exists 非空的已完成分区即为跳过信号
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// Partition 单个任务独占的 JSONL 追加写入器
// 先写 .partial 临时文件，Commit 时原子改名，半成品不会被当成完成分区
type Partition struct {
	path    string
	partial string
	f       *os.File
	buf     *bufio.Writer
}

func Open(path string) (*Partition, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	partial := path + ".partial"
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &Partition{path: path, partial: partial, f: f, buf: bufio.NewWriter(f)}, nil
}

// Append 追加一行 JSON
func (p *Partition) Append(v any) error {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := p.buf.Write(raw); err != nil {
		return err
	}
	return p.buf.WriteByte('\n')
}

// Commit 落盘并把临时文件改名为最终分区
func (p *Partition) Commit() error {
	if err := p.buf.Flush(); err != nil {
		p.f.Close()
		return err
	}
	if err := p.f.Sync(); err != nil {
		p.f.Close()
		return err
	}
	if err := p.f.Close(); err != nil {
		return err
	}
	return os.Rename(p.partial, p.path)
}

// Discard 放弃半成品
func (p *Partition) Discard() {
	p.f.Close()
	os.Remove(p.partial)
}
