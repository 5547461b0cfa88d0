package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nestwatch/nestwatch/internal/agent"
	"github.com/nestwatch/nestwatch/internal/checks"
	"github.com/nestwatch/nestwatch/internal/config"
	"github.com/nestwatch/nestwatch/internal/fabric"
	"github.com/nestwatch/nestwatch/internal/resilience"
	"github.com/nestwatch/nestwatch/internal/store"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Worker.ID == "" || cfg.Worker.Region == "" {
		log.Fatal("worker.id and worker.region are required")
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	rdb, err := store.NewClient(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	exec := resilience.NewExecutor(cfg.Resilience, logger, nil, nil)
	fb := fabric.New(rdb, exec, cfg.Fabric, logger, nil)

	a := agent.New(cfg.Worker, cfg.Fabric.ResultBatch, fb, checks.Registry(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down worker...")
		cancel()
	}()

	if err := a.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal("Agent exited", zap.Error(err))
	}
	logger.Info("Worker exited")
}
