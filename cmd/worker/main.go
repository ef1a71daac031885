package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feichai0017/pdf-transcriber/config"
	"github.com/feichai0017/pdf-transcriber/internal/metrics"
	"github.com/feichai0017/pdf-transcriber/internal/service/document"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
	"github.com/feichai0017/pdf-transcriber/pkg/worker"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel(config.GetServerConfig().LogLevel),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docService, err := document.GetService(ctx, log)
	if err != nil {
		log.Error("Failed to create document service", logger.Error(err))
		os.Exit(1)
	}
	defer docService.Close()

	redisCfg := config.GetRedisConfig()
	documentWorker, err := worker.NewDocumentWorker(&worker.Config{
		RedisAddr:       redisCfg.Addr,
		RedisPassword:   redisCfg.Password,
		RedisDB:         redisCfg.DB,
		Concurrency:     redisCfg.Concurrency,
		CleanupInterval: time.Hour,
	}, docService, log)
	if err != nil {
		log.Error("Failed to create document worker", logger.Error(err))
		os.Exit(1)
	}

	if err := documentWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Worker started", logger.String("redis", redisCfg.Addr))

	<-ctx.Done()
	log.Info("Shutting down worker...")
	documentWorker.Stop()
	log.Info("Worker stopped")
}
