package harvester

import (
	"context"
	"fmt"
	"os"
	"time"

	"web3-swaps/internal/harvester/fetcher"
	"web3-swaps/internal/harvester/model"
	"web3-swaps/internal/harvester/monitor"
	"web3-swaps/internal/harvester/scheduler"
	"web3-swaps/internal/harvester/writer"
	"web3-swaps/pkg/evm_client"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Capture 按固定区块窗口采集工厂合约的建池事件，产出池元数据分区
// 窗口文件已存在则跳过，重跑幂等
func (c *Core) Capture(ctx context.Context) error {
	start := time.Now()
	chain := c.cfg.Chain.Name
	root := c.cfg.Output.Root
	factory := common.HexToAddress(c.cfg.Pools.Factory)

	if err := os.MkdirAll(writer.PoolDir(root, chain), 0755); err != nil {
		return fmt.Errorf("output dir not writable: %w", err)
	}

	creds, err := scheduler.NewCredentialPool(c.cfg.Chain.Endpoints(), c.cfg.Worker.RateLimit)
	if err != nil {
		return err
	}

	step := c.cfg.Pools.Step
	if step == 0 {
		step = 500_000
	}
	endBlock := c.cfg.Pools.EndBlock
	if endBlock == 0 {
		if endBlock, err = c.chainHead(ctx, creds); err != nil {
			return err
		}
	}

	var tasks []model.Task
	for from := c.cfg.Pools.StartBlock / step * step; from < endBlock; from += step {
		to := from + step - 1
		path := writer.WindowPath(root, chain, from, to)
		if writer.Exists(path) {
			monitor.TasksSkipped.WithLabelValues(chain).Inc()
			continue
		}
		tasks = append(tasks, model.Task{
			Chain:      chain,
			FromBlock:  from,
			ToBlock:    to,
			OutputPath: path,
			Label:      fmt.Sprintf("%d_%d", from, to),
		})
	}
	c.tl.Info("pool capture windows resolved", zap.Int("todo", len(tasks)), zap.Uint64("step", step))

	summary := scheduler.New(creds, chain, c.tl).Run(ctx, tasks, c.runCaptureTask(factory))

	for _, f := range summary.Failures {
		c.tl.Error("capture window gave up",
			zap.String("label", f.Task.Label), zap.Error(f.Err))
	}
	c.tl.Info("pool capture finished",
		zap.Int("completed", summary.Completed),
		zap.Int("failed", len(summary.Failures)),
		zap.Duration("taken_time", time.Since(start)))
	return nil
}

func (c *Core) chainHead(ctx context.Context, creds *scheduler.CredentialPool) (uint64, error) {
	cred, err := creds.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer creds.Release(cred)

	client, err := evm_client.Dial(ctx, cred.Endpoint, cred.Limiter)
	if err != nil {
		return 0, err
	}
	defer client.Close()

	return client.LatestBlock(ctx)
}

func (c *Core) runCaptureTask(factory common.Address) scheduler.TaskFunc {
	return func(ctx context.Context, cred *scheduler.Credential, task model.Task) error {
		client, err := evm_client.Dial(ctx, cred.Endpoint, cred.Limiter)
		if err != nil {
			return err
		}
		defer client.Close()

		events, err := fetcher.New(client, task.Chain, c.tl).PoolCreatedEvents(ctx, factory, task.FromBlock, task.ToBlock)
		if err != nil {
			return err
		}

		part, err := writer.Open(task.OutputPath)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := part.Append(ev); err != nil {
				part.Discard()
				return err
			}
		}
		if err := part.Commit(); err != nil {
			return err
		}
		c.tl.Info("pool window written", zap.String("label", task.Label), zap.Int("events", len(events)))
		return nil
	}
}
