package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"trendsys/internal/logger"
	"trendsys/internal/trendengine"
)

func main() {
	cfg, err := trendengine.LoadConfig()
	if err != nil {
		logger.Init("trendengine", slog.LevelInfo)
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Init("trendengine", logger.ParseLevel(cfg.LogLevel))
	slog.Info("starting",
		slog.Any("enabled_tfs", cfg.EnabledTFs),
		slog.Int("snapshot_interval_s", cfg.SnapshotIntervalS),
		slog.String("config", cfg.Engine.Options.Config.String()))

	svc, err := trendengine.New(cfg)
	if err != nil {
		slog.Error("init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		slog.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
