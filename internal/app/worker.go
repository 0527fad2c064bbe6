package app

import (
	"context"
	"fmt"

	"doc-intake-service/internal/ocr"
	"doc-intake-service/internal/worker"
)

// NewWorker assembles the OCR pipeline consuming a.Queue. The caller must
// Close the returned runner.
func (a *App) NewWorker(ctx context.Context) (*worker.Runner, error) {
	extractor, err := ocr.NewExtractor(ctx, a.Cfg, a.Log)
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}

	deps := worker.ProcessorDeps{
		Repo:      a.Jobs,
		Storage:   a.Storage,
		Extractor: extractor,
		Heartbeat: a.Cfg.HeartbeatInterval,
		Log:       a.Log,
	}
	if a.Vector != nil {
		deps.Vector = a.Vector
	}
	if a.FullText != nil {
		deps.FullText = a.FullText
	}

	pool := worker.NewPool(a.Queue, worker.NewProcessor(deps), a.Cfg.Workers, a.Log)
	reaper := worker.NewReaper(a.Queue, a.Jobs, a.Cfg.StaleJobAfter, a.Log)
	a.Log.Info("worker assembled", "workers", a.Cfg.Workers, "engine", extractor.EngineName(), "queue", a.Cfg.QueueType)
	return worker.NewRunner(pool, reaper, extractor, a.Log), nil
}
