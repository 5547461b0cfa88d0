package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nestwatch/nestwatch/internal/api"
	"github.com/nestwatch/nestwatch/internal/config"
	"github.com/nestwatch/nestwatch/internal/controlplane"
	"github.com/nestwatch/nestwatch/internal/db"
	"github.com/nestwatch/nestwatch/internal/fabric"
	"github.com/nestwatch/nestwatch/internal/incidents"
	"github.com/nestwatch/nestwatch/internal/metrics"
	"github.com/nestwatch/nestwatch/internal/points"
	"github.com/nestwatch/nestwatch/internal/ratelimit"
	"github.com/nestwatch/nestwatch/internal/realtime"
	"github.com/nestwatch/nestwatch/internal/registry"
	"github.com/nestwatch/nestwatch/internal/resilience"
	"github.com/nestwatch/nestwatch/internal/status"
	"github.com/nestwatch/nestwatch/internal/store"
	"github.com/nestwatch/nestwatch/pkg/fabricmgmt"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewProduction()
	if cfg.Server.Mode == "debug" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	// Postgres: incidents and audit history.
	database, err := db.NewConnection(cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := db.Migrate(database, cfg.Database.MigrationsPath); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	repo := db.NewRepository(database)

	// Redis: KV store and message fabric.
	rdb, err := store.NewClient(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	collector := metrics.NewCollector(cfg.Mimir)
	exec := resilience.NewExecutor(cfg.Resilience, logger, collector, repo)
	st := store.New(rdb, exec, logger)
	fb := fabric.New(rdb, exec, cfg.Fabric, logger, collector)

	principals := fabricmgmt.NewClient(fabricmgmt.Config{
		URL:       cfg.Mgmt.URL,
		AuthToken: cfg.Mgmt.AuthToken,
		Timeout:   cfg.Mgmt.Timeout,
	})

	reg := registry.NewService(st, fb, principals, exec, repo, collector, logger)
	pts := points.NewService(st, fb, repo, collector, logger)
	inc := incidents.NewService(repo, collector, logger)
	deltas := realtime.NewPublisher(rdb, exec, logger)
	engine := status.NewEngine(st, reg, deltas, inc, pts, collector, logger)
	sweeper := status.NewSweeper(engine, cfg.Sweep.Interval, logger)

	facade := controlplane.New(st, fb, reg, engine, pts, inc, exec, repo, logger)
	limiter := ratelimit.New(cfg.RateLimit, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := facade.ConsumeResults(ctx, cfg.Fabric.ResultBatch); err != nil && ctx.Err() == nil {
			logger.Fatal("Result consumer exited", zap.Error(err))
		}
	}()
	go func() {
		if err := facade.ConsumeHeartbeats(ctx, cfg.Fabric.HeartbeatBatch); err != nil && ctx.Err() == nil {
			logger.Fatal("Heartbeat consumer exited", zap.Error(err))
		}
	}()
	go sweeper.Start(ctx)
	go limiter.Start(ctx)
	go collector.StartRemoteWrite(ctx)
	go fleetGaugeLoop(ctx, reg, cfg.Sweep.Interval)

	server := api.NewServer(cfg, facade, limiter, logger)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	logger.Info("Admin server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited")
}

func fleetGaugeLoop(ctx context.Context, reg *registry.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.PublishFleetGauges(ctx)
		}
	}
}
