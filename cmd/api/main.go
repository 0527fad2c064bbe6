// cmd/api/main.go

// @title Document Intake API
// @version 1.0
// @description Document upload, OCR job tracking, search and retention administration.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "doc-intake-service/docs"
	"doc-intake-service/internal/app"
	"doc-intake-service/internal/config"
	"doc-intake-service/internal/logger"
	"doc-intake-service/internal/observability"
	"doc-intake-service/internal/retention"
	httptransport "doc-intake-service/internal/transport/http"
	"doc-intake-service/internal/worker"
)

func main() {
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

	deps := httptransport.Deps{
		Jobs:           a.JobSvc,
		Cleaner:        a.Retention,
		Audits:         a.Audits,
		Recorder:       a.Recorder,
		AdminSecret:    cfg.AdminJWTSecret,
		MaxUploadBytes: cfg.MaxFileSize,
		Log:            log,
	}
	if a.FullText != nil {
		deps.Search = a.FullText
	}
	if a.Vector != nil {
		deps.Vector = a.Vector
	}
	if cfg.AdminJWTSecret == "" {
		log.Warn("ADMIN_JWT_SECRET is empty, admin routes will reject every request")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httptransport.Routes(httptransport.NewHandler(deps)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	scheduler := retention.NewScheduler(a.Retention, log, time.Local)

	var runner *worker.Runner
	if cfg.InProcessWorker() {
		runner, err = a.NewWorker(ctx)
		if err != nil {
			log.Fatal("worker init failed", "error", err)
		}
		defer runner.Close()
		log.Info("in-process worker enabled", "queue", cfg.QueueType)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server started", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	if runner != nil {
		g.Go(func() error {
			return runner.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("api stopped with error", "error", err)
		return
	}
	log.Info("api stopped")
}
