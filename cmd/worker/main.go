// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"doc-intake-service/internal/app"
	"doc-intake-service/internal/config"
	"doc-intake-service/internal/logger"
	"doc-intake-service/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err == nil && cfg.InProcessWorker() {
		err = &config.Error{Key: "QUEUE_TYPE", Reason: "the memory queue is consumed by the api process; use QUEUE_TYPE=redis for a separate worker"}
	}
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("worker config",
		"workers", cfg.Workers,
		"queue", cfg.QueueType,
		"redis_addr", cfg.RedisAddr,
		"queue_key", cfg.RedisQueueKey,
		"ocr_backend", cfg.OCRBackend,
		"postgres_dsn", config.RedactDSN(cfg.PostgresDSN),
	)

	shutdownTracing := observability.InitOTel(ctx, log, cfg.OTel, cfg.Env)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("app init failed", "error", err)
	}
	defer a.Close()

	runner, err := a.NewWorker(ctx)
	if err != nil {
		log.Fatal("worker init failed", "error", err)
	}
	defer runner.Close()

	log.Info("worker started", "workers", cfg.Workers)
	if err := runner.Run(ctx); err != nil {
		log.Error("worker stopped with error", "error", err)
		return
	}
	log.Info("worker stopped")
}
