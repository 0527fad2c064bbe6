package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"doc-intake-service/internal/audit"
	"doc-intake-service/internal/config"
	"doc-intake-service/internal/logger"
	"doc-intake-service/internal/repository/postgresql"
	"doc-intake-service/internal/retention"
	"doc-intake-service/internal/search"
	"doc-intake-service/internal/service"
	"doc-intake-service/internal/storage"
	"doc-intake-service/internal/vector"
)

// App holds the shared dependencies of the api, worker and cleanup binaries.
type App struct {
	Cfg *config.Config
	Log *logger.Logger

	DB     *pgxpool.Pool
	Redis  *redis.Client
	Jobs   *postgresql.JobRepository
	Audits *postgresql.AuditRepository

	Storage storage.Backend
	Queue   service.Queue

	FullText *search.FTS     // nil when disabled
	Vector   *vector.Service // nil when disabled

	Recorder  *audit.Recorder
	Policy    retention.Policy
	Retention *retention.Engine
	JobSvc    *service.JobService
}

// New connects every backend selected by cfg. On error, whatever was opened
// is closed before returning.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *App, err error) {
	a := &App{Cfg: cfg, Log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.DB, err = postgresql.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err = postgresql.Migrate(ctx, a.DB); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.Jobs = postgresql.NewJobRepository(a.DB)
	a.Audits = postgresql.NewAuditRepository(a.DB)

	if cfg.QueueType == "redis" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err = a.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
	}
	a.Queue, err = service.NewQueue(cfg, a.Redis)
	if err != nil {
		return nil, err
	}

	a.Storage, err = storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	if cfg.EnableFullText {
		a.FullText, err = search.Open(ctx, cfg.FTSPath, log)
		if err != nil {
			return nil, fmt.Errorf("full-text index: %w", err)
		}
	}
	if cfg.EnableVector {
		store := vector.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollection, cfg.VectorDim, &http.Client{Timeout: 30 * time.Second})
		if err = store.EnsureCollection(ctx); err != nil {
			return nil, fmt.Errorf("vector store: %w", err)
		}
		a.Vector = vector.NewService(store, vector.NewHashEmbedder(cfg.VectorDim), log)
	}

	a.Policy = retention.DefaultPolicy()
	if cfg.RetentionPolicyFile != "" {
		a.Policy, err = retention.LoadPolicy(cfg.RetentionPolicyFile)
		if err != nil {
			return nil, err
		}
	}

	a.Recorder = audit.NewRecorder(a.Audits, log)
	indexes := a.Indexes()
	a.Retention = retention.NewEngine(a.Jobs, a.Audits, a.Storage, a.Recorder, a.Policy, log, indexes...)
	a.JobSvc = service.NewJobService(service.JobServiceDeps{
		Repo:        a.Jobs,
		Queue:       a.Queue,
		Storage:     a.Storage,
		Audit:       a.Recorder,
		Policy:      a.Policy,
		Indexes:     indexes,
		MaxFileSize: cfg.MaxFileSize,
		Log:         log,
	})

	log.Info("app initialized",
		"queue", cfg.QueueType, "storage", cfg.StorageType,
		"fulltext", a.FullText != nil, "vector", a.Vector != nil,
	)
	return a, nil
}

// Indexes returns the enabled secondary indexes.
func (a *App) Indexes() []retention.Index {
	var out []retention.Index
	if a.FullText != nil {
		out = append(out, a.FullText)
	}
	if a.Vector != nil {
		out = append(out, a.Vector)
	}
	return out
}

func (a *App) Close() {
	if a.FullText != nil {
		if err := a.FullText.Close(); err != nil {
			a.Log.Warn("close full-text index", "error", err)
		}
	}
	if c, ok := a.Storage.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.Log.Warn("close storage", "error", err)
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
