package fusion

import (
	"math"
	"testing"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

func scored(id string, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{Chunk: domain.Chunk{ID: id, Text: id}, Score: score}
}

func TestFuseRRFWithItselfReproducesDenseRanking(t *testing.T) {
	dense := []domain.ScoredChunk{
		scored("d1", 0.91), scored("d2", 0.88), scored("d3", 0.80), scored("d4", 0.62), scored("d5", 0.40),
	}
	got := FuseRRF(dense, dense, 0, Params{K: DefaultK, DenseWeight: 1, SparseWeight: 0})
	if len(got) != len(dense) {
		t.Fatalf("expected %d candidates, got %d", len(dense), len(got))
	}
	for i := range dense {
		if got[i].Chunk.ID != dense[i].Chunk.ID {
			t.Fatalf("rank %d = %s, want %s", i, got[i].Chunk.ID, dense[i].Chunk.ID)
		}
	}
}

func TestFuseRRFIgnoresZeroWeightSource(t *testing.T) {
	dense := []domain.ScoredChunk{scored("a", 0.9)}
	sparse := []domain.ScoredChunk{scored("x", 9.4), scored("a", 2.0)}

	got := FuseRRF(dense, sparse, 0, Params{K: DefaultK, DenseWeight: 1, SparseWeight: 0})
	if len(got) != 1 || got[0].Chunk.ID != "a" {
		t.Fatalf("expected dense-only ranking [a], got %+v", got)
	}
	if want := 1.0 / 61; math.Abs(got[0].Score-want) > 1e-12 {
		t.Fatalf("score = %v, want %v", got[0].Score, want)
	}
}

func TestFuseRRFMergesContributions(t *testing.T) {
	dense := []domain.ScoredChunk{scored("a", 0.9), scored("b", 0.8)}
	sparse := []domain.ScoredChunk{scored("b", 7.1), scored("c", 3.2)}

	got := FuseRRF(dense, sparse, 0, Params{K: 60, DenseWeight: 0.5, SparseWeight: 0.5})
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].Chunk.ID != "b" {
		t.Fatalf("expected b first, got %s", got[0].Chunk.ID)
	}
	wantB := 0.5/62 + 0.5/61
	if math.Abs(got[0].Score-wantB) > 1e-12 {
		t.Fatalf("b score = %v, want %v", got[0].Score, wantB)
	}
	if got[2].Similarity != NoSimilarity {
		t.Fatalf("sparse-only candidate should carry no similarity, got %v", got[2].Similarity)
	}
	for _, c := range got {
		if c.Normalized < 0 || c.Normalized > 1 {
			t.Fatalf("normalized score out of range: %v", c.Normalized)
		}
	}
}

func TestFuseRRFNormalizesTopOfBothListsToOne(t *testing.T) {
	list := []domain.ScoredChunk{scored("a", 0.9)}
	got := FuseRRF(list, list, 0, Params{K: 60, DenseWeight: 0.5, SparseWeight: 0.5})
	if math.Abs(got[0].Normalized-1) > 1e-12 {
		t.Fatalf("expected 1, got %v", got[0].Normalized)
	}
}

func TestFuseRRFDropsLowSimilarityBeforeCut(t *testing.T) {
	dense := []domain.ScoredChunk{scored("weak", 0.2), scored("ok", 0.6)}
	sparse := []domain.ScoredChunk{scored("weak", 9), scored("other", 1)}

	got := FuseRRF(dense, sparse, 1, Params{K: 60, DenseWeight: 0.5, SparseWeight: 0.5, MinSimilarity: 0.35})
	if len(got) != 1 || got[0].Chunk.ID != "ok" {
		t.Fatalf("expected only ok to survive, got %+v", got)
	}
}

func TestFuseRRFEmptyInputs(t *testing.T) {
	if got := FuseRRF(nil, nil, 5, Params{}); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestClassifyThresholds(t *testing.T) {
	th := domain.DefaultEngineConfig().Thresholds
	cases := []struct {
		sim  float64
		want domain.Confidence
	}{
		{0.95, domain.ConfidenceHigh},
		{0.75, domain.ConfidenceHigh},
		{0.74, domain.ConfidenceMedium},
		{0.55, domain.ConfidenceMedium},
		{0.40, domain.ConfidenceLow},
		{0.35, domain.ConfidenceLow},
		{0.10, domain.ConfidenceNone},
		{NoSimilarity, domain.ConfidenceNone},
	}
	for _, tc := range cases {
		if got := Classify(tc.sim, th); got != tc.want {
			t.Fatalf("Classify(%v) = %s, want %s", tc.sim, got, tc.want)
		}
	}
}

func TestClassifyIsMonotonic(t *testing.T) {
	th := domain.DefaultEngineConfig().Thresholds
	prev := Classify(0, th)
	for i := 1; i <= 1000; i++ {
		s := float64(i) / 1000
		got := Classify(s, th)
		if got < prev {
			t.Fatalf("Classify(%v) = %s dropped below %s", s, got, prev)
		}
		prev = got
	}
}
