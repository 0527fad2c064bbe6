package config_test

import (
	"errors"
	"testing"
	"time"

	"doc-intake-service/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://u:p@localhost:5432/db")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.QueueType != "memory" {
		t.Fatalf("expected memory queue, got %s", cfg.QueueType)
	}
	if cfg.StorageType != "local" {
		t.Fatalf("expected local storage, got %s", cfg.StorageType)
	}
	if cfg.MaxFileSize != 25*1024*1024 {
		t.Fatalf("expected 25MB limit, got %d", cfg.MaxFileSize)
	}
	if cfg.OCRDPI != 150 {
		t.Fatalf("expected dpi 150, got %d", cfg.OCRDPI)
	}
	if cfg.StaleJobAfter != 30*time.Minute {
		t.Fatalf("expected 30m stale threshold, got %v", cfg.StaleJobAfter)
	}
	if cfg.HeartbeatInterval != time.Minute {
		t.Fatalf("expected 1m heartbeat, got %v", cfg.HeartbeatInterval)
	}
	if !cfg.InProcessWorker() {
		t.Fatalf("expected memory queue to require an in-process worker")
	}
}

func TestValidate_HeartbeatShorterThanStale(t *testing.T) {
	cfg := &config.Config{
		PostgresDSN:       "postgres://x",
		QueueType:         "redis",
		RedisAddr:         "localhost:6379",
		StorageType:       "local",
		LocalStoragePath:  "/tmp",
		OCRBackend:        "tesseract",
		MaxFileSize:       1,
		StaleJobAfter:     time.Minute,
		HeartbeatInterval: time.Minute,
	}
	var cerr *config.Error
	if err := cfg.Validate(); !errors.As(err, &cerr) || cerr.Key != "JOB_HEARTBEAT_INTERVAL" {
		t.Fatalf("expected JOB_HEARTBEAT_INTERVAL error, got %v", err)
	}
	if cfg.InProcessWorker() {
		t.Fatalf("expected redis queue to allow a separate worker")
	}

	cfg.HeartbeatInterval = 10 * time.Second
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestLoad_MissingDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")

	_, err := config.Load()
	var cerr *config.Error
	if !errors.As(err, &cerr) || cerr.Key != "POSTGRES_DSN" {
		t.Fatalf("expected POSTGRES_DSN config error, got %v", err)
	}
}

func TestValidate_RedisNeedsAddr(t *testing.T) {
	cfg := &config.Config{
		PostgresDSN:      "postgres://x",
		QueueType:        "redis",
		StorageType:      "local",
		LocalStoragePath: "/tmp",
		OCRBackend:       "tesseract",
		MaxFileSize:      1,
	}
	var cerr *config.Error
	if err := cfg.Validate(); !errors.As(err, &cerr) || cerr.Key != "REDIS_ADDR" {
		t.Fatalf("expected REDIS_ADDR error, got %v", err)
	}
}

func TestValidate_MinIONeedsCredentials(t *testing.T) {
	cfg := &config.Config{
		PostgresDSN: "postgres://x",
		QueueType:   "memory",
		StorageType: "minio",
		OCRBackend:  "tesseract",
		MaxFileSize: 1,
		MinIO:       config.MinIOConfig{Endpoint: "localhost:9000"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing minio credentials")
	}
}

func TestRedactDSN(t *testing.T) {
	got := config.RedactDSN("postgres://app:s3cret@db:5432/docs?sslmode=disable")
	want := "postgres://app:****@db:5432/docs?sslmode=disable"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if config.RedactDSN("postgres://db/docs") != "postgres://db/docs" {
		t.Fatalf("expected dsn without password unchanged")
	}
}
