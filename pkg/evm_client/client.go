package evm_client

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

// Client 包装 ethclient，所有调用前经过限流器（每个上游凭证一个限流器）
type Client struct {
	ec      *ethclient.Client
	limiter *rate.Limiter
}

// Dial 连接 RPC 节点，limiter 可为 nil（不限流）
func Dial(ctx context.Context, rawurl string, limiter *rate.Limiter) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ec, err := ethclient.DialContext(dialCtx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("dial evm client: %w", err)
	}

	return &Client{ec: ec, limiter: limiter}, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// LatestBlock 当前链头高度
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	return c.ec.BlockNumber(ctx)
}

// BlockTimestamp 区块时间戳（秒）
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	header, err := c.ec.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, fmt.Errorf("header %d: %w", number, err)
	}
	return header.Time, nil
}

func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.ec.FilterLogs(ctx, q)
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.ec.CallContract(ctx, msg, blockNumber)
}

func (c *Client) Close() {
	c.ec.Close()
}
