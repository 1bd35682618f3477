package harvester

import (
	"context"
	"fmt"
	"os"
	"time"

	"web3-swaps/internal/harvester/config"
	"web3-swaps/internal/harvester/dayrange"
	"web3-swaps/internal/harvester/fetcher"
	"web3-swaps/internal/harvester/model"
	"web3-swaps/internal/harvester/monitor"
	"web3-swaps/internal/harvester/pricing"
	"web3-swaps/internal/harvester/registry"
	"web3-swaps/internal/harvester/scheduler"
	"web3-swaps/internal/harvester/writer"
	"web3-swaps/pkg/evm_client"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Core 按日分片的 Swap 采集与估值管线
type Core struct {
	cfg     config.Config
	tl      *zap.Logger
	caches  *pricing.Caches
	metrics *monitor.MetricsServer
}

func New(cfg config.Config, tl *zap.Logger) *Core {
	return &Core{
		cfg:     cfg,
		tl:      tl,
		caches:  pricing.NewCaches(),
		metrics: monitor.NewMetricsServer(cfg.Monitor),
	}
}

func (c *Core) assets() pricing.Assets {
	stables := make([]common.Address, 0, len(c.cfg.Assets.Stables))
	for _, s := range c.cfg.Assets.Stables {
		stables = append(stables, common.HexToAddress(s))
	}
	return pricing.Assets{
		Reference:        common.HexToAddress(c.cfg.Assets.Reference),
		Stables:          stables,
		ReferenceUSDPool: common.HexToAddress(c.cfg.Assets.ReferenceUSDPool),
	}
}

// Run 跑完整个日期范围，只有致命的配置类错误才返回 error
func (c *Core) Run(ctx context.Context) error {
	start := time.Now()
	chain := c.cfg.Chain.Name
	root := c.cfg.Output.Root

	c.metrics.Run()
	defer c.metrics.Stop(ctx)

	// 输出目录不可写属于致命错误
	if err := os.MkdirAll(writer.SwapDir(root, chain), 0755); err != nil {
		return fmt.Errorf("output dir not writable: %w", err)
	}

	creds, err := scheduler.NewCredentialPool(c.cfg.Chain.Endpoints(), c.cfg.Worker.RateLimit)
	if err != nil {
		return err
	}

	reg, err := registry.Load(writer.PoolDir(root, chain), c.tl)
	if err != nil {
		return fmt.Errorf("load pool metadata: %w", err)
	}
	index := registry.BuildRoutingIndex(reg, common.HexToAddress(c.cfg.Assets.Reference))

	days, err := c.resolveDays(ctx, creds)
	if err != nil {
		return err
	}

	tasks := c.buildDayTasks(days, reg)
	c.tl.Info("day ranges resolved",
		zap.Int("days", len(days)), zap.Int("todo", len(tasks)), zap.Int("pools", reg.Len()))

	summary := scheduler.New(creds, chain, c.tl).Run(ctx, tasks, c.runTask(reg, index))

	for _, f := range summary.Failures {
		c.tl.Error("day task gave up",
			zap.String("label", f.Task.Label),
			zap.Uint64("from", f.Task.FromBlock), zap.Uint64("to", f.Task.ToBlock),
			zap.Error(f.Err))
	}
	c.tl.Info("harvest finished",
		zap.Int("completed", summary.Completed),
		zap.Int("failed", len(summary.Failures)),
		zap.Duration("taken_time", time.Since(start)))

	return nil
}

// buildDayTasks 把日范围转成待跑任务，已完成的分区直接跳过
// 跳过的日子不会产生任何网络请求
func (c *Core) buildDayTasks(days []dayrange.DayRange, reg *registry.Registry) []model.Task {
	chain := c.cfg.Chain.Name
	root := c.cfg.Output.Root

	tasks := make([]model.Task, 0, len(days))
	for _, day := range days {
		path := writer.DayPath(root, chain, day.Label)
		if writer.Exists(path) {
			monitor.TasksSkipped.WithLabelValues(chain).Inc()
			c.tl.Debug("partition complete, skipping day", zap.String("day", day.Label))
			continue
		}
		tasks = append(tasks, model.Task{
			Chain:      chain,
			FromBlock:  day.FromBlock,
			ToBlock:    day.ToBlock,
			Pools:      reg.PoolsAsOf(day.ToBlock),
			OutputPath: path,
			Label:      day.Label,
		})
	}
	return tasks
}

// resolveDays 借一个凭证做日界换算，再归还
func (c *Core) resolveDays(ctx context.Context, creds *scheduler.CredentialPool) ([]dayrange.DayRange, error) {
	startDate, err := time.Parse("2006-01-02", c.cfg.Range.StartDate)
	if err != nil {
		return nil, fmt.Errorf("bad start_date: %w", err)
	}
	endDate, err := time.Parse("2006-01-02", c.cfg.Range.EndDate)
	if err != nil {
		return nil, fmt.Errorf("bad end_date: %w", err)
	}

	cred, err := creds.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer creds.Release(cred)

	client, err := evm_client.Dial(ctx, cred.Endpoint, cred.Limiter)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	resolver := dayrange.NewResolver(client, c.caches, c.tl)
	return resolver.SplitIntoDays(ctx, startDate, endDate)
}

func (c *Core) runTask(reg *registry.Registry, index *registry.RoutingIndex) scheduler.TaskFunc {
	return func(ctx context.Context, cred *scheduler.Credential, task model.Task) error {
		client, err := evm_client.Dial(ctx, cred.Endpoint, cred.Limiter)
		if err != nil {
			return err
		}
		defer client.Close()

		events, err := fetcher.New(client, task.Chain, c.tl).SwapEvents(ctx, task.Pools, task.FromBlock, task.ToBlock)
		if err != nil {
			return err
		}

		oracle := pricing.NewOracle(client, c.caches, reg, index, c.assets(), c.tl)
		enricher := NewEnricher(oracle, reg, c.caches, client, common.HexToAddress(c.cfg.Assets.Reference), c.tl)

		part, err := writer.Open(task.OutputPath)
		if err != nil {
			return err
		}

		for _, ev := range events {
			enriched := enricher.Enrich(ctx, ev)
			if err := part.Append(enriched); err != nil {
				part.Discard()
				return err
			}
			priced := "false"
			if enriched.AmountUSD != nil {
				priced = "true"
			}
			monitor.EventsEnriched.WithLabelValues(task.Chain, priced).Inc()
		}

		if err := part.Commit(); err != nil {
			return err
		}
		c.tl.Info("partition written",
			zap.String("label", task.Label), zap.Int("events", len(events)),
			zap.Uint64("from", task.FromBlock), zap.Uint64("to", task.ToBlock))
		return nil
	}
}
