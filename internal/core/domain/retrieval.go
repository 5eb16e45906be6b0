package domain

import (
	"fmt"
	"strings"
	"time"
)

// Chunk is an indexed unit of evidence. It is immutable once indexed.
type Chunk struct {
	ID             string            `json:"id"`
	Text           string            `json:"text"`
	SourceDocument string            `json:"source_document"`
	Section        string            `json:"section,omitempty"`
	ScoreHint      float64           `json:"score_hint,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Source renders the human-readable origin of the chunk for citations.
func (c Chunk) Source() string {
	if c.Section == "" {
		return c.SourceDocument
	}
	if c.SourceDocument == "" {
		return c.Section
	}
	return fmt.Sprintf("%s § %s", c.SourceDocument, c.Section)
}

// ScoredChunk is a dense retrieval hit. Score is a cosine similarity in [0,1].
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// SearchFilter holds opaque key/value constraints that retrieval passes through
// to the backends without interpreting them.
type SearchFilter map[string]string

// Matches reports whether every filter constraint is satisfied by metadata.
func (f SearchFilter) Matches(metadata map[string]string) bool {
	for key, want := range f {
		if strings.TrimSpace(want) == "" {
			continue
		}
		if metadata[key] != want {
			return false
		}
	}
	return true
}

// SimilarityFromDistance converts a cosine distance in [0,2] into a similarity in [0,1].
func SimilarityFromDistance(distance float64) float64 {
	return clamp01(1 - distance/2)
}

// SimilarityFromCosine converts a raw cosine in [-1,1] into a similarity in [0,1].
func SimilarityFromCosine(cosine float64) float64 {
	return SimilarityFromDistance(1 - cosine)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return "none"
	}
}

// Downgrade returns the confidence used for answers that were not generated.
func (c Confidence) Downgrade() Confidence {
	if c == ConfidenceHigh {
		return ConfidenceMedium
	}
	if c == ConfidenceNone {
		return ConfidenceNone
	}
	return ConfidenceLow
}

func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Confidence) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "high":
		*c = ConfidenceHigh
	case "medium":
		*c = ConfidenceMedium
	case "low":
		*c = ConfidenceLow
	case "none", "":
		*c = ConfidenceNone
	default:
		return fmt.Errorf("unknown confidence %q", string(text))
	}
	return nil
}

type RetrievalTimings struct {
	Dense  time.Duration `json:"dense"`
	Sparse time.Duration `json:"sparse"`
	Fusion time.Duration `json:"fusion"`
	Total  time.Duration `json:"total"`
}

// RetrievalResult is the ranked evidence set for a single query. Scores and
// Similarities are parallel to Chunks. Similarity is -1 when the chunk was not
// returned by dense retrieval.
type RetrievalResult struct {
	Chunks       []Chunk          `json:"chunks"`
	Scores       []float64        `json:"scores"`
	Similarities []float64        `json:"similarities"`
	Confidence   Confidence       `json:"confidence"`
	Timings      RetrievalTimings `json:"timings"`
}

func (r RetrievalResult) Empty() bool {
	return len(r.Chunks) == 0
}

// Best returns the highest ranked chunk and its score.
func (r RetrievalResult) Best() (Chunk, float64, bool) {
	if len(r.Chunks) == 0 {
		return Chunk{}, 0, false
	}
	score := 0.0
	if len(r.Scores) > 0 {
		score = r.Scores[0]
	}
	return r.Chunks[0], score, true
}
