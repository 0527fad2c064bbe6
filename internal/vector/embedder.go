package vector

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

type Embedder interface {
	Name() string
	Dim() int
	Embed(text string) []float32
}

// HashEmbedder maps text to a fixed-size vector with signed feature hashing
// over lower-cased word unigrams and bigrams. Output is L2-normalised, so
// identical texts embed identically and cosine similarity reflects term
// overlap.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Name() string { return "feature-hash" }

func (h *HashEmbedder) Dim() int { return h.dim }

func (h *HashEmbedder) Embed(text string) []float32 {
	vec := make([]float32, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for i, w := range words {
		h.add(vec, w, 1)
		if i > 0 {
			h.add(vec, words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

func (h *HashEmbedder) add(vec []float32, feature string, weight float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
