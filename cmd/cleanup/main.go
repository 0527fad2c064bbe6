// cmd/cleanup/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"doc-intake-service/internal/app"
	"doc-intake-service/internal/config"
	"doc-intake-service/internal/logger"
	"doc-intake-service/internal/retention"
)

func main() {
	taskFlag := flag.String("task", string(retention.TaskAll), "cleanup task: all, jobs, audit or orphaned")
	flag.Parse()

	task, err := retention.ParseTask(*taskFlag)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
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

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("app init failed", "error", err)
	}

	sums := a.Retention.Run(ctx, task)
	a.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"task": task, "results": sums})

	if !retention.AllSucceeded(sums) {
		log.Sync()
		os.Exit(1)
	}
}
