package pricing

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// Caches 进程级的只增备忘表，键都是链上不可变事实，不做过期淘汰
// 同一键重复写入是幂等的，多个 worker 共享同一实例
type Caches struct {
	decimals   *gocache.Cache // token -> int32
	symbols    *gocache.Cache // token -> string
	prices     *gocache.Cache // 价格键 -> *decimal.Decimal，nil 表示无路由
	blockTS    *gocache.Cache // block -> uint64
	poolTokens *gocache.Cache // pool -> [2]common.Address
}

func NewCaches() *Caches {
	newTable := func() *gocache.Cache {
		return gocache.New(gocache.NoExpiration, 0)
	}
	return &Caches{
		decimals:   newTable(),
		symbols:    newTable(),
		prices:     newTable(),
		blockTS:    newTable(),
		poolTokens: newTable(),
	}
}

func refPriceKey(block uint64) string {
	return "ref:" + strconv.FormatUint(block, 10)
}

func tokenPriceKey(token common.Address, block uint64) string {
	return fmt.Sprintf("%s:%d", token.Hex(), block)
}

func (c *Caches) Decimals(token common.Address) (int32, bool) {
	if v, found := c.decimals.Get(token.Hex()); found {
		return v.(int32), true
	}
	return 0, false
}

func (c *Caches) SetDecimals(token common.Address, d int32) {
	c.decimals.Set(token.Hex(), d, gocache.NoExpiration)
}

func (c *Caches) Symbol(token common.Address) (string, bool) {
	if v, found := c.symbols.Get(token.Hex()); found {
		return v.(string), true
	}
	return "", false
}

func (c *Caches) SetSymbol(token common.Address, sym string) {
	c.symbols.Set(token.Hex(), sym, gocache.NoExpiration)
}

// Price 第二个返回值表示键是否存在，存在但为 nil 表示已知无路由
func (c *Caches) Price(key string) (*decimal.Decimal, bool) {
	if v, found := c.prices.Get(key); found {
		return v.(*decimal.Decimal), true
	}
	return nil, false
}

func (c *Caches) SetPrice(key string, p *decimal.Decimal) {
	c.prices.Set(key, p, gocache.NoExpiration)
}

func (c *Caches) BlockTimestamp(block uint64) (uint64, bool) {
	if v, found := c.blockTS.Get(strconv.FormatUint(block, 10)); found {
		return v.(uint64), true
	}
	return 0, false
}

func (c *Caches) SetBlockTimestamp(block uint64, ts uint64) {
	c.blockTS.Set(strconv.FormatUint(block, 10), ts, gocache.NoExpiration)
}

func (c *Caches) PoolTokens(pool common.Address) ([2]common.Address, bool) {
	if v, found := c.poolTokens.Get(pool.Hex()); found {
		return v.([2]common.Address), true
	}
	return [2]common.Address{}, false
}

func (c *Caches) SetPoolTokens(pool common.Address, tokens [2]common.Address) {
	c.poolTokens.Set(pool.Hex(), tokens, gocache.NoExpiration)
}
