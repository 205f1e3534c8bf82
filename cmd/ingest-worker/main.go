// Package main 文档入库 worker 入口
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"shoply-ai-cs-api/internal/config"
	"shoply-ai-cs-api/internal/infrastructure/messaging"
	"shoply-ai-cs-api/internal/wire"
	"shoply-ai-cs-api/pkg/logger"
	"shoply-ai-cs-api/pkg/tracer"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "ingest-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Error(ctx, "failed to init tracer", err)
		os.Exit(1)
	}
	defer func() { _ = shutdown(ctx) }()

	indexer, redisClient, cleanup, err := wire.InitializeIndexer(ctx, cfg)
	if err != nil {
		logger.Error(ctx, "failed to initialize indexer", err)
		os.Exit(1)
	}
	defer cleanup()

	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamIngestPages,
		Group:         messaging.ConsumerGroupIngestWorker,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  cfg.Messaging.RedisStream.BlockTimeout,
		ClaimInterval: cfg.Messaging.RedisStream.ClaimInterval,
		RetryLimit:    cfg.Messaging.RedisStream.RetryLimit,
		Backoff:       messaging.DefaultBackoffConfig(),
	})

	consumer.RegisterHandler("document_ingest", indexer.HandleIngestMessage())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := consumer.Start(runCtx); err != nil {
			logger.Error(ctx, "consumer stopped with error", err)
		}
	}()

	logger.Info(ctx, "ingest-worker started",
		"stream", string(messaging.StreamIngestPages),
		"group", string(messaging.ConsumerGroupIngestWorker),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down ingest-worker...")
	cancel()
	consumer.Stop()
	logger.Info(ctx, "ingest-worker exited")
}

// hostnameConsumerName 用主机名区分消费者实例，拿不到时退回随机名
func hostnameConsumerName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return "ingest-" + host
	}
	return "ingest-" + uuid.NewString()[:8]
}
