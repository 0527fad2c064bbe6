package search

import (
	"math"
	"sort"
)

// SemanticHit is one result of a vector similarity query.
type SemanticHit struct {
	JobID      string
	Snippet    string
	Similarity float64
}

type Result struct {
	JobID    string  `json:"job_id"`
	Snippet  string  `json:"text_snippet"`
	Score    float64 `json:"score"`
	Language string  `json:"language,omitempty"`
	Source   string  `json:"source"`
}

// Combine merges keyword and semantic hits by job id. The score is
// |bm25|*ftsWeight + similarity*(1-ftsWeight), highest first.
func Combine(hits []Hit, semantic []SemanticHit, ftsWeight float64, limit int) []Result {
	ftsWeight = math.Max(0, math.Min(1, ftsWeight))
	if limit <= 0 {
		limit = DefaultLimit
	}

	type entry struct {
		res        Result
		fts, vec   float64
		firstIndex int
	}
	byJob := make(map[string]*entry)
	order := 0
	get := func(id string) *entry {
		e, ok := byJob[id]
		if !ok {
			e = &entry{res: Result{JobID: id, Source: "hybrid"}, firstIndex: order}
			byJob[id] = e
			order++
		}
		return e
	}

	for _, h := range hits {
		e := get(h.JobID)
		e.fts = math.Abs(h.Rank)
		e.res.Snippet = h.Snippet
		e.res.Language = h.Language
	}
	for _, s := range semantic {
		e := get(s.JobID)
		e.vec = s.Similarity
		if e.res.Snippet == "" {
			e.res.Snippet = s.Snippet
		}
	}

	entries := make([]*entry, 0, len(byJob))
	for _, e := range byJob {
		e.res.Score = e.fts*ftsWeight + e.vec*(1-ftsWeight)
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].res.Score != entries[j].res.Score {
			return entries[i].res.Score > entries[j].res.Score
		}
		return entries[i].firstIndex < entries[j].firstIndex
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]Result, len(entries))
	for i, e := range entries {
		out[i] = e.res
	}
	return out
}
