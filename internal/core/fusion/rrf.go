// Package fusion merges dense and sparse rankings with weighted Reciprocal
// Rank Fusion and classifies how well the evidence matches the query.
package fusion

import (
	"sort"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

// DefaultK is the RRF rank constant.
const DefaultK = 60

// NoSimilarity marks a candidate that dense retrieval did not return.
const NoSimilarity = -1.0

type Params struct {
	K            float64
	DenseWeight  float64
	SparseWeight float64
	// MinSimilarity drops candidates whose known dense similarity is below it.
	MinSimilarity float64
}

func ParamsFromConfig(cfg domain.EngineConfig) Params {
	return Params{
		K:             cfg.RRFK,
		DenseWeight:   cfg.DenseWeight,
		SparseWeight:  cfg.SparseWeight,
		MinSimilarity: cfg.Thresholds.Low,
	}
}

// Candidate is one fused entry. Score is the raw RRF sum; Normalized maps it
// into [0,1] against the best attainable score.
type Candidate struct {
	Chunk      domain.Chunk
	Score      float64
	Normalized float64
	Similarity float64
}

type accumulator struct {
	candidate Candidate
	order     int
}

// FuseRRF combines both rankings. Each list contributes weight/(K+rank) with a
// 1-based rank; an id missing from a list contributes nothing from it, and a
// list with a non-positive weight is ignored entirely. Equal scores keep
// first-seen order, dense before sparse.
func FuseRRF(dense, sparse []domain.ScoredChunk, topK int, p Params) []Candidate {
	if len(dense) == 0 && len(sparse) == 0 {
		return nil
	}
	k := p.K
	if k <= 0 {
		k = DefaultK
	}

	acc := make(map[string]*accumulator, len(dense)+len(sparse))
	next := 0
	add := func(list []domain.ScoredChunk, weight float64, fromDense bool) {
		if weight <= 0 {
			return
		}
		for i, hit := range list {
			entry, ok := acc[hit.Chunk.ID]
			if !ok {
				entry = &accumulator{
					candidate: Candidate{Chunk: hit.Chunk, Similarity: NoSimilarity},
					order:     next,
				}
				acc[hit.Chunk.ID] = entry
				next++
			}
			if fromDense && entry.candidate.Similarity == NoSimilarity {
				entry.candidate.Similarity = hit.Score
			}
			entry.candidate.Score += weight / (k + float64(i+1))
		}
	}
	add(dense, p.DenseWeight, true)
	add(sparse, p.SparseWeight, false)

	entries := make([]*accumulator, 0, len(acc))
	for _, e := range acc {
		if e.candidate.Similarity != NoSimilarity && e.candidate.Similarity < p.MinSimilarity {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].candidate.Score != entries[j].candidate.Score {
			return entries[i].candidate.Score > entries[j].candidate.Score
		}
		return entries[i].order < entries[j].order
	})
	if topK > 0 && len(entries) > topK {
		entries = entries[:topK]
	}

	ceiling := (p.DenseWeight + p.SparseWeight) / (k + 1)
	out := make([]Candidate, len(entries))
	for i, e := range entries {
		c := e.candidate
		if ceiling > 0 {
			c.Normalized = c.Score / ceiling
			if c.Normalized > 1 {
				c.Normalized = 1
			}
		}
		out[i] = c
	}
	return out
}

// Classify maps a dense similarity to a confidence level.
func Classify(similarity float64, t domain.ConfidenceThresholds) domain.Confidence {
	switch {
	case similarity >= t.High:
		return domain.ConfidenceHigh
	case similarity >= t.Medium:
		return domain.ConfidenceMedium
	case similarity >= t.Low:
		return domain.ConfidenceLow
	default:
		return domain.ConfidenceNone
	}
}

// BestSimilarity returns the highest known dense similarity among candidates,
// or NoSimilarity when none came from dense retrieval.
func BestSimilarity(candidates []Candidate) float64 {
	best := NoSimilarity
	for _, c := range candidates {
		if c.Similarity > best {
			best = c.Similarity
		}
	}
	return best
}
