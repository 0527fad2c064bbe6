package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"doc-intake-service/internal/logger"
)

const (
	storedTextLimit = 10000
	previewLimit    = 200
)

var ErrEmptyText = errors.New("empty text")

type Match struct {
	JobID       string         `json:"job_id"`
	Similarity  float64        `json:"similarity"`
	TextPreview string         `json:"text_preview,omitempty"`
	Metadata    map[string]any `json:"metadata"`
}

type Stats struct {
	Enabled       bool   `json:"enabled"`
	Collection    string `json:"collection"`
	DocumentCount int    `json:"document_count"`
	Model         string `json:"model"`
}

type Service struct {
	store    *QdrantStore
	embedder Embedder
	log      *logger.Logger
}

func NewService(store *QdrantStore, embedder Embedder, log *logger.Logger) *Service {
	return &Service{store: store, embedder: embedder, log: log}
}

// AddDocument embeds text and upserts it under the job id.
func (s *Service) AddDocument(ctx context.Context, jobID, text string, metadata map[string]any) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	payload := make(map[string]any, len(metadata)+4)
	for k, v := range metadata {
		payload[k] = v
	}
	payload["job_id"] = jobID
	payload["created_at"] = time.Now().UTC().Format(time.RFC3339)
	payload["text_length"] = len(text)
	payload["text"] = truncate(text, storedTextLimit)

	if err := s.store.Upsert(ctx, Point{ID: jobID, Vector: s.embedder.Embed(text), Payload: payload}); err != nil {
		return fmt.Errorf("add document %s: %w", jobID, err)
	}
	s.log.Debug("document embedded", "job_id", jobID, "model", s.embedder.Name())
	return nil
}

// FindSimilar returns documents whose similarity, (1+cos)/2, is at least
// minSimilarity, best first.
func (s *Service) FindSimilar(ctx context.Context, text string, n int, minSimilarity float64) ([]Match, error) {
	if strings.TrimSpace(text) == "" {
		return []Match{}, nil
	}
	if n <= 0 {
		n = 5
	}
	hits, err := s.store.Search(ctx, s.embedder.Embed(text), n)
	if err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}

	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		sim := Similarity(h.Score)
		if sim < minSimilarity {
			continue
		}
		m := Match{JobID: h.ID, Similarity: sim, Metadata: map[string]any{}}
		for k, v := range h.Payload {
			if k == "text" {
				if t, ok := v.(string); ok {
					m.TextPreview = truncate(t, previewLimit) + "..."
				}
				continue
			}
			m.Metadata[k] = v
		}
		out = append(out, m)
	}
	return out, nil
}

// FindSimilarByJob uses the stored text of jobID as the query and leaves
// the job itself out of the result.
func (s *Service) FindSimilarByJob(ctx context.Context, jobID string, n int, minSimilarity float64) ([]Match, error) {
	p, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	text, _ := p.Payload["text"].(string)
	if strings.TrimSpace(text) == "" {
		return []Match{}, nil
	}
	if n <= 0 {
		n = 5
	}

	matches, err := s.FindSimilar(ctx, text, n+1, minSimilarity)
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, n)
	for _, m := range matches {
		if m.JobID == jobID {
			continue
		}
		out = append(out, m)
		if len(out) == n {
			break
		}
	}
	return out, nil
}

func (s *Service) DeleteDocument(ctx context.Context, jobID string) error {
	if err := s.store.Delete(ctx, jobID); err != nil {
		return fmt.Errorf("delete document %s: %w", jobID, err)
	}
	return nil
}

// Delete lets the service act as a retention index.
func (s *Service) Delete(ctx context.Context, jobID string) error {
	return s.DeleteDocument(ctx, jobID)
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return Stats{Enabled: true, Collection: s.store.Collection()}, err
	}
	return Stats{Enabled: true, Collection: s.store.Collection(), DocumentCount: n, Model: s.embedder.Name()}, nil
}

// Similarity converts a cosine score to 0..1 (1 - cosine_distance/2),
// rounded to four places.
func Similarity(cosine float64) float64 {
	sim := 1 - (1-cosine)/2
	return math.Round(sim*10000) / 10000
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
