package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 1024

var ErrPointNotFound = errors.New("vector point not found")

type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

type ScoredPoint struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// QdrantStore talks to a single Qdrant collection over its REST API.
type QdrantStore struct {
	baseURL    string
	collection string
	dim        int
	http       *http.Client
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("qdrant %s: status=%d body=%q", e.Op, e.StatusCode, e.Body)
}

func NewQdrantStore(baseURL, collection string, dim int, client *http.Client) *QdrantStore {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &QdrantStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		dim:        dim,
		http:       client,
	}
}

func (q *QdrantStore) Collection() string { return q.collection }

// EnsureCollection creates the collection with cosine distance when absent
// and rejects an existing one of a different dimension.
func (q *QdrantStore) EnsureCollection(ctx context.Context) error {
	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := q.do(ctx, "get_collection", http.MethodGet, q.path(""), nil, &info)
	var se *StatusError
	switch {
	case err == nil:
		if size := info.Config.Params.Vectors.Size; size != 0 && size != q.dim {
			return fmt.Errorf("qdrant collection %q size mismatch: expected=%d actual=%d", q.collection, q.dim, size)
		}
		return nil
	case errors.As(err, &se) && se.StatusCode == http.StatusNotFound:
		body := map[string]any{"vectors": map[string]any{"size": q.dim, "distance": "Cosine"}}
		return q.do(ctx, "create_collection", http.MethodPut, q.path(""), body, nil)
	default:
		return err
	}
}

func (q *QdrantStore) Upsert(ctx context.Context, points ...Point) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if len(p.Vector) != q.dim {
			return fmt.Errorf("point %s: dimension mismatch: expected=%d got=%d", p.ID, q.dim, len(p.Vector))
		}
	}
	return q.do(ctx, "upsert", http.MethodPut, q.path("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (q *QdrantStore) Search(ctx context.Context, vector []float32, limit int) ([]ScoredPoint, error) {
	if limit <= 0 {
		limit = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	var raw []struct {
		ID      json.RawMessage `json:"id"`
		Score   float64         `json:"score"`
		Payload map[string]any  `json:"payload"`
	}
	if err := q.do(ctx, "search", http.MethodPost, q.path("/points/search"), req, &raw); err != nil {
		return nil, err
	}
	out := make([]ScoredPoint, 0, len(raw))
	for _, r := range raw {
		out = append(out, ScoredPoint{ID: pointID(r.ID), Score: r.Score, Payload: r.Payload})
	}
	return out, nil
}

func (q *QdrantStore) Get(ctx context.Context, id string) (*Point, error) {
	var raw struct {
		ID      json.RawMessage `json:"id"`
		Payload map[string]any  `json:"payload"`
	}
	err := q.do(ctx, "get_point", http.MethodGet, q.path("/points/"+id), nil, &raw)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil, ErrPointNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Point{ID: pointID(raw.ID), Payload: raw.Payload}, nil
}

func (q *QdrantStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return q.do(ctx, "delete", http.MethodPost, q.path("/points/delete?wait=true"), map[string]any{"points": ids}, nil)
}

func (q *QdrantStore) Count(ctx context.Context) (int, error) {
	var info struct {
		PointsCount int `json:"points_count"`
	}
	if err := q.do(ctx, "get_collection", http.MethodGet, q.path(""), nil, &info); err != nil {
		return 0, err
	}
	return info.PointsCount, nil
}

func (q *QdrantStore) path(suffix string) string {
	return "/collections/" + q.collection + suffix
}

func (q *QdrantStore) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return fmt.Errorf("qdrant %s: encode: %w", op, err)
		}
		body = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("qdrant %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("qdrant %s: read: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("qdrant %s: decode envelope: %w", op, err)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("qdrant %s: decode result: %w", op, err)
	}
	return nil
}

// pointID accepts both string (uuid) and numeric ids.
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
