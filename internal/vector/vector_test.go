package vector_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"

	"doc-intake-service/internal/logger"
	"doc-intake-service/internal/vector"
)

// fakeQdrant keeps points in memory and scores by dot product, which equals
// cosine for normalised vectors.
type fakeQdrant struct {
	mu      sync.Mutex
	created bool
	size    int
	points  map[string]vector.Point
}

func (f *fakeQdrant) handler() http.Handler {
	ok := func(w http.ResponseWriter, result any) {
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/{c}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.created {
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
			return
		}
		ok(w, map[string]any{
			"points_count": len(f.points),
			"config":       map[string]any{"params": map[string]any{"vectors": map[string]any{"size": f.size}}},
		})
	})
	mux.HandleFunc("PUT /collections/{c}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.created, f.size = true, body.Vectors.Size
		f.mu.Unlock()
		ok(w, true)
	})
	mux.HandleFunc("PUT /collections/{c}/points", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []vector.Point `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		for _, p := range body.Points {
			f.points[p.ID] = p
		}
		f.mu.Unlock()
		ok(w, map[string]any{"status": "completed"})
	})
	mux.HandleFunc("POST /collections/{c}/points/search", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		var out []vector.ScoredPoint
		for id, p := range f.points {
			var dot float64
			for i := range p.Vector {
				dot += float64(p.Vector[i]) * float64(body.Vector[i])
			}
			out = append(out, vector.ScoredPoint{ID: id, Score: dot, Payload: p.Payload})
		}
		f.mu.Unlock()
		sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
		if len(out) > body.Limit {
			out = out[:body.Limit]
		}
		ok(w, out)
	})
	mux.HandleFunc("GET /collections/{c}/points/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		p, found := f.points[r.PathValue("id")]
		f.mu.Unlock()
		if !found {
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
			return
		}
		ok(w, map[string]any{"id": p.ID, "payload": p.Payload})
	})
	mux.HandleFunc("POST /collections/{c}/points/delete", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []string `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		for _, id := range body.Points {
			delete(f.points, id)
		}
		f.mu.Unlock()
		ok(w, map[string]any{"status": "completed"})
	})
	return mux
}

func newService(t *testing.T) (*vector.Service, *vector.QdrantStore) {
	t.Helper()
	fq := &fakeQdrant{points: map[string]vector.Point{}}
	srv := httptest.NewServer(fq.handler())
	t.Cleanup(srv.Close)

	store := vector.NewQdrantStore(srv.URL, "docs", 256, srv.Client())
	if err := store.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("ensure collection: %v", err)
	}
	return vector.NewService(store, vector.NewHashEmbedder(256), logger.NewNop()), store
}

func TestHashEmbedder_NormalisedAndDeterministic(t *testing.T) {
	e := vector.NewHashEmbedder(128)
	a := e.Embed("Invoice total amount due")
	b := e.Embed("Invoice total amount due")
	var norm float64
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected deterministic embedding")
		}
		norm += float64(a[i]) * float64(a[i])
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("expected unit norm, got %f", norm)
	}
	if len(e.Embed("")) != 128 {
		t.Fatalf("expected fixed dimension for empty text")
	}
}

func TestSimilarity(t *testing.T) {
	cases := map[float64]float64{1: 1, 0: 0.5, -1: 0}
	for cos, want := range cases {
		if got := vector.Similarity(cos); got != want {
			t.Fatalf("cos %v: expected %v, got %v", cos, want, got)
		}
	}
}

func TestService_AddFindDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	inv1, inv2, other := uuid.NewString(), uuid.NewString(), uuid.NewString()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(svc.AddDocument(ctx, inv1, "invoice number 42 total amount due to acme corp", map[string]any{"filename": "a.pdf"}))
	must(svc.AddDocument(ctx, inv2, "invoice number 43 total amount due to acme corp", nil))
	must(svc.AddDocument(ctx, other, "patient discharge summary cardiology ward", nil))

	if err := svc.AddDocument(ctx, uuid.NewString(), "   ", nil); !errors.Is(err, vector.ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}

	matches, err := svc.FindSimilarByJob(ctx, inv1, 5, 0.7)
	if err != nil {
		t.Fatalf("find similar: %v", err)
	}
	if len(matches) != 1 || matches[0].JobID != inv2 {
		t.Fatalf("expected only the sibling invoice, got %+v", matches)
	}
	if matches[0].TextPreview == "" || matches[0].Metadata["job_id"] != inv2 {
		t.Fatalf("expected preview and metadata, got %+v", matches[0])
	}

	all, err := svc.FindSimilar(ctx, "invoice acme", 10, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected all three with zero threshold, got %d %v", len(all), err)
	}

	must(svc.DeleteDocument(ctx, inv2))
	st, err := svc.Stats(ctx)
	if err != nil || st.DocumentCount != 2 || st.Collection != "docs" {
		t.Fatalf("unexpected stats %+v %v", st, err)
	}

	if _, err := svc.FindSimilarByJob(ctx, inv2, 5, 0); !errors.Is(err, vector.ErrPointNotFound) {
		t.Fatalf("expected ErrPointNotFound, got %v", err)
	}
}

func TestQdrantStore_RejectsDimensionMismatch(t *testing.T) {
	_, store := newService(t)
	err := store.Upsert(context.Background(), vector.Point{ID: uuid.NewString(), Vector: make([]float32, 3)})
	if err == nil {
		t.Fatalf("expected dimension error")
	}
}
