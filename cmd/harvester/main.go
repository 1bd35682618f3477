package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"web3-swaps/internal/harvester"
	"web3-swaps/internal/harvester/config"
	"web3-swaps/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	startTime := time.Now()
	// 初始化配置文件
	cfg := config.InitConfig()

	// 初始化 trace provider
	logger.InitTrace("web3-swaps", "harvester")
	// 启动主 span
	ctx, span := logger.StartSpan(context.Background(), "main", "main")
	defer span.End()

	// 创建 root logger 并注入 trace 上下文
	rootLogger := logger.NewLogger("harvester")
	logger.SetLogLevel(cfg.Log.Level)
	tl := logger.WithTrace(ctx, rootLogger)

	// 启动配置热加载监听
	go config.WatchConfig(&cfg)

	// 监听操作系统信号，收到后取消任务上下文
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tl.Info("Starting web3-swaps harvester...",
		zap.String("chain", cfg.Chain.Name),
		zap.String("start_date", cfg.Range.StartDate),
		zap.String("end_date", cfg.Range.EndDate))

	core := harvester.New(cfg, tl)
	if err := core.Run(ctx); err != nil {
		tl.Error("Harvester aborted", zap.Error(err))
		os.Exit(1)
	}

	tl.Info("Harvest completed", zap.Duration("taken_time", time.Since(startTime)))
}
