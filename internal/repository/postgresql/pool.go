package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a pgx pool and verifies the connection.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pc.MaxConns = 10
	pc.MaxConnIdleTime = 5 * time.Minute
	pc.ConnConfig.RuntimeParams["application_name"] = "doc-intake-service"

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id                    UUID PRIMARY KEY,
    filename              TEXT NOT NULL,
    file_size             BIGINT NOT NULL DEFAULT 0,
    file_key              TEXT NOT NULL,
    file_type             TEXT NOT NULL DEFAULT '',
    language              TEXT NOT NULL DEFAULT 'auto',
    ocr_engine            TEXT NOT NULL DEFAULT 'tesseract',
    status                TEXT NOT NULL DEFAULT 'queued',
    progress              INT NOT NULL DEFAULT 0,
    current_step          TEXT,
    review_status         TEXT NOT NULL DEFAULT 'pending',
    total_pages           INT NOT NULL DEFAULT 0,
    processed_pages       INT NOT NULL DEFAULT 0,
    confidence_score      DOUBLE PRECISION,
    detected_language     TEXT,
    error_message         TEXT,
    retry_count           INT NOT NULL DEFAULT 0,
    contains_pii          BOOLEAN NOT NULL DEFAULT FALSE,
    pii_types             TEXT[] NOT NULL DEFAULT '{}',
    guardrail_flags       JSONB,
    data_principal_id     TEXT,
    purpose_code          TEXT,
    consent_verified      BOOLEAN NOT NULL DEFAULT FALSE,
    data_retention_policy TIMESTAMPTZ,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    started_at            TIMESTAMPTZ,
    completed_at          TIMESTAMPTZ,
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);
CREATE INDEX IF NOT EXISTS idx_jobs_review_status ON jobs (review_status);
CREATE INDEX IF NOT EXISTS idx_jobs_file_key ON jobs (file_key);

CREATE TABLE IF NOT EXISTS ocr_results (
    id              UUID PRIMARY KEY,
    job_id          UUID NOT NULL REFERENCES jobs (id) ON DELETE CASCADE,
    page_number     INT NOT NULL,
    full_text       TEXT NOT NULL DEFAULT '',
    confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
    language        TEXT NOT NULL DEFAULT '',
    word_count      INT NOT NULL DEFAULT 0,
    char_count      INT NOT NULL DEFAULT 0,
    processing_time DOUBLE PRECISION NOT NULL DEFAULT 0,
    raw_data        JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (job_id, page_number)
);

CREATE TABLE IF NOT EXISTS audit_logs (
    id            UUID PRIMARY KEY,
    timestamp     TIMESTAMPTZ NOT NULL DEFAULT now(),
    user_id       VARCHAR(255),
    user_ip       VARCHAR(45) NOT NULL,
    action_type   VARCHAR(50) NOT NULL,
    resource_type VARCHAR(50) NOT NULL,
    resource_id   VARCHAR(255),
    details       JSONB,
    status        VARCHAR(20) NOT NULL DEFAULT 'success',
    error_message TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs (timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs (action_type);
`

// Migrate creates the schema if it does not exist. Safe to run on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
