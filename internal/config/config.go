package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	PostgresDSN string

	QueueType         string
	RedisAddr         string
	RedisQueueKey     string
	VisibilityTimeout time.Duration
	TaskTTL           time.Duration

	StorageType      string
	LocalStoragePath string
	MinIO            MinIOConfig
	GCSBucket        string
	GCSCredentials   string

	OCRBackend        string
	TesseractBin      string
	PdftoppmBin       string
	OCRDPI            int
	OCRMaxPages       int
	MaxFileSize       int64
	VisionCredentials string

	EnableFullText bool
	FTSPath        string

	EnableVector     bool
	QdrantURL        string
	QdrantCollection string
	VectorDim        int

	AdminJWTSecret      string
	RetentionPolicyFile string

	Workers           int
	StaleJobAfter     time.Duration
	HeartbeatInterval time.Duration

	OTel OTelConfig
}

type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	Endpoint     string
	SamplerRatio float64
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Error describes a configuration problem detected at startup.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      envOr("APP_ENV", "development"),
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),

		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		QueueType:         strings.ToLower(envOr("QUEUE_TYPE", "memory")),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisQueueKey:     envOr("REDIS_QUEUE_KEY", "docintake:queue"),
		VisibilityTimeout: envDurationOr("QUEUE_VISIBILITY_TIMEOUT", 10*time.Minute),
		TaskTTL:           envDurationOr("QUEUE_TASK_TTL", 24*time.Hour),

		StorageType:      strings.ToLower(envOr("STORAGE_TYPE", "local")),
		LocalStoragePath: envOr("LOCAL_STORAGE_PATH", "./data/uploads"),
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    envOr("MINIO_BUCKET", "documents"),
			UseSSL:    envBoolOr("MINIO_USE_SSL", false),
		},
		GCSBucket:      os.Getenv("GCS_BUCKET"),
		GCSCredentials: os.Getenv("GCS_CREDENTIALS_FILE"),

		OCRBackend:        strings.ToLower(envOr("OCR_BACKEND", "tesseract")),
		TesseractBin:      envOr("TESSERACT_BIN", "tesseract"),
		PdftoppmBin:       envOr("PDFTOPPM_BIN", "pdftoppm"),
		OCRDPI:            envIntOr("OCR_DPI", 150),
		OCRMaxPages:       envIntOr("OCR_MAX_PAGES", 0),
		MaxFileSize:       int64(envIntOr("MAX_FILE_SIZE", 25*1024*1024)),
		VisionCredentials: os.Getenv("VISION_CREDENTIALS_FILE"),

		EnableFullText: envBoolOr("ENABLE_FULLTEXT_SEARCH", false),
		FTSPath:        envOr("FTS_DB_PATH", "./data/search.db"),

		EnableVector:     envBoolOr("ENABLE_VECTOR_SEARCH", false),
		QdrantURL:        os.Getenv("QDRANT_URL"),
		QdrantCollection: envOr("QDRANT_COLLECTION", "documents"),
		VectorDim:        envIntOr("VECTOR_DIM", 384),

		AdminJWTSecret:      os.Getenv("ADMIN_JWT_SECRET"),
		RetentionPolicyFile: os.Getenv("RETENTION_POLICY_FILE"),

		Workers:           envIntOr("WORKERS", 1),
		StaleJobAfter:     envDurationOr("STALE_JOB_AFTER", 30*time.Minute),
		HeartbeatInterval: envDurationOr("JOB_HEARTBEAT_INTERVAL", time.Minute),

		OTel: OTelConfig{
			Enabled:      envBoolOr("OTEL_ENABLED", false),
			ServiceName:  envOr("OTEL_SERVICE_NAME", "doc-intake-service"),
			Endpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			SamplerRatio: envFloatOr("OTEL_SAMPLER_RATIO", 1.0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every selected backend has what it needs.
func (c *Config) Validate() error {
	if c.PostgresDSN == "" {
		return &Error{Key: "POSTGRES_DSN", Reason: "is required"}
	}

	switch c.QueueType {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return &Error{Key: "REDIS_ADDR", Reason: "is required when QUEUE_TYPE=redis"}
		}
	default:
		return &Error{Key: "QUEUE_TYPE", Reason: fmt.Sprintf("unknown queue type %q", c.QueueType)}
	}

	switch c.StorageType {
	case "local":
		if c.LocalStoragePath == "" {
			return &Error{Key: "LOCAL_STORAGE_PATH", Reason: "must not be empty"}
		}
	case "minio":
		if c.MinIO.Endpoint == "" || c.MinIO.AccessKey == "" || c.MinIO.SecretKey == "" {
			return &Error{Key: "MINIO_ENDPOINT", Reason: "endpoint and credentials are required when STORAGE_TYPE=minio"}
		}
	case "gcs":
		if c.GCSBucket == "" {
			return &Error{Key: "GCS_BUCKET", Reason: "is required when STORAGE_TYPE=gcs"}
		}
	default:
		return &Error{Key: "STORAGE_TYPE", Reason: fmt.Sprintf("unknown storage type %q", c.StorageType)}
	}

	switch c.OCRBackend {
	case "tesseract", "vision":
	default:
		return &Error{Key: "OCR_BACKEND", Reason: fmt.Sprintf("unknown ocr backend %q", c.OCRBackend)}
	}

	if c.EnableVector && c.QdrantURL == "" {
		return &Error{Key: "QDRANT_URL", Reason: "is required when ENABLE_VECTOR_SEARCH=true"}
	}
	if c.MaxFileSize <= 0 {
		return &Error{Key: "MAX_FILE_SIZE", Reason: "must be positive"}
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.StaleJobAfter {
		return &Error{Key: "JOB_HEARTBEAT_INTERVAL", Reason: "must be positive and shorter than STALE_JOB_AFTER"}
	}
	return nil
}

// InProcessWorker reports whether jobs must be consumed by the process that
// enqueues them. The memory queue is not shared between processes.
func (c *Config) InProcessWorker() bool {
	return c.QueueType == "memory"
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envFloatOr(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBoolOr(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

var dsnPassword = regexp.MustCompile(`://([^:/?#]+):([^@/]+)@`)

// RedactDSN masks the password in a URL-style connection string.
func RedactDSN(dsn string) string {
	return dsnPassword.ReplaceAllString(dsn, `://$1:****@`)
}
