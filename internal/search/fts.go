package search

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"doc-intake-service/internal/logger"
)

const (
	tableName = "ocr_fts"
	tokenizer = "porter unicode61"

	DefaultLimit = 10
	MaxLimit     = 100
)

type Hit struct {
	JobID    string  `json:"job_id"`
	Snippet  string  `json:"text_snippet"`
	Rank     float64 `json:"rank"`
	Language string  `json:"language,omitempty"`
}

type Stats struct {
	TotalDocuments int            `json:"total_documents"`
	Languages      map[string]int `json:"languages"`
	Engine         string         `json:"fts_version"`
	Tokenizer      string         `json:"tokenizer"`
}

// FTS is a full-text index of extracted document text backed by an SQLite
// FTS5 table.
type FTS struct {
	db  *sql.DB
	log *logger.Logger
}

func Open(ctx context.Context, path string, log *logger.Logger) (*FTS, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create fts dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open fts db: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, `CREATE VIRTUAL TABLE IF NOT EXISTS `+tableName+`
		USING fts5(job_id UNINDEXED, full_text, language UNINDEXED, tokenize='`+tokenizer+`')`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create fts table: %w", err)
	}
	return &FTS{db: db, log: log}, nil
}

func (f *FTS) Close() error { return f.db.Close() }

// IndexDocument replaces any previous entry for the job.
func (f *FTS) IndexDocument(ctx context.Context, jobID, text, language string) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+tableName+` WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("fts delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+tableName+` (job_id, full_text, language) VALUES (?, ?, ?)`,
		jobID, text, language,
	); err != nil {
		return fmt.Errorf("fts insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	f.log.Debug("document indexed", "job_id", jobID, "chars", len(text))
	return nil
}

// Search returns matches ordered by bm25, best first. An empty query
// returns no hits.
func (f *FTS) Search(ctx context.Context, query string, limit int, language string) ([]Hit, error) {
	q := SanitizeQuery(query)
	if q == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	stmt := `SELECT job_id, snippet(` + tableName + `, 1, '<b>', '</b>', '...', 32), bm25(` + tableName + `) AS score, language
		FROM ` + tableName + ` WHERE ` + tableName + ` MATCH ?`
	args := []any{q}
	if language != "" {
		stmt += ` AND language = ?`
		args = append(args, language)
	}
	stmt += ` ORDER BY score LIMIT ?`
	args = append(args, limit)

	rows, err := f.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		var snippet, lang sql.NullString
		if err := rows.Scan(&h.JobID, &snippet, &h.Rank, &lang); err != nil {
			return nil, fmt.Errorf("fts scan: %w", err)
		}
		h.Snippet = snippet.String
		h.Language = lang.String
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Delete removes the job from the index. Missing entries are not an error.
func (f *FTS) Delete(ctx context.Context, jobID string) error {
	if _, err := f.db.ExecContext(ctx, `DELETE FROM `+tableName+` WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("fts delete: %w", err)
	}
	return nil
}

func (f *FTS) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Languages: map[string]int{}, Engine: "FTS5", Tokenizer: tokenizer}
	if err := f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+tableName).Scan(&st.TotalDocuments); err != nil {
		return st, fmt.Errorf("fts count: %w", err)
	}

	rows, err := f.db.QueryContext(ctx, `SELECT COALESCE(language, ''), COUNT(*) FROM `+tableName+` GROUP BY language`)
	if err != nil {
		return st, fmt.Errorf("fts languages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var lang string
		var n int
		if err := rows.Scan(&lang, &n); err != nil {
			return st, fmt.Errorf("fts scan: %w", err)
		}
		st.Languages[lang] = n
	}
	return st, rows.Err()
}

var queryReplacer = strings.NewReplacer(
	`"`, " ", `'`, " ", "(", " ", ")", " ", "{", " ", "}", " ",
	"[", " ", "]", " ", "^", " ", "~", " ",
)

// SanitizeQuery strips FTS5 syntax characters and collapses whitespace.
// Plain AND/OR/NOT and trailing * prefixes survive.
func SanitizeQuery(q string) string {
	return strings.Join(strings.Fields(queryReplacer.Replace(q)), " ")
}
