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

// 一次性任务：采集建池事件作为池元数据

func main() {
	startTime := time.Now()
	// 初始化配置文件
	cfg := config.InitConfig()

	// 初始化 trace provider
	logger.InitTrace("web3-swaps", "pools")
	// 启动主 span
	ctx, span := logger.StartSpan(context.Background(), "main", "main")
	defer span.End()

	// 创建 root logger 并注入 trace 上下文
	rootLogger := logger.NewLogger("pools")
	logger.SetLogLevel(cfg.Log.Level)
	tl := logger.WithTrace(ctx, rootLogger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tl.Info("Starting pool creation capture...",
		zap.String("chain", cfg.Chain.Name),
		zap.String("factory", cfg.Pools.Factory))

	core := harvester.New(cfg, tl)
	if err := core.Capture(ctx); err != nil {
		tl.Error("Capture aborted", zap.Error(err))
		os.Exit(1)
	}

	tl.Info("Capture completed", zap.Duration("taken_time", time.Since(startTime)))
}
