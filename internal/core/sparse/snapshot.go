package sparse

import (
	"sync/atomic"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

// Snapshot is an immutable evidence collection together with its BM25 index.
type Snapshot struct {
	chunks []domain.Chunk
	index  *Index
}

// NewSnapshot copies chunks and indexes them. Callers may reuse the input slice.
func NewSnapshot(chunks []domain.Chunk, params Params) *Snapshot {
	owned := make([]domain.Chunk, len(chunks))
	copy(owned, chunks)

	docs := make([]Document, len(owned))
	for i, c := range owned {
		docs[i] = Document{ID: c.ID, Text: c.Text}
	}
	return &Snapshot{chunks: owned, index: Build(docs, params)}
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.chunks)
}

// Search returns chunks ranked by raw BM25 score, restricted to filter.
func (s *Snapshot) Search(query string, topK int, filter domain.SearchFilter) []domain.ScoredChunk {
	if s.Len() == 0 {
		return nil
	}
	var keep func(int) bool
	if len(filter) > 0 {
		keep = func(position int) bool {
			return filter.Matches(s.chunks[position].Metadata)
		}
	}
	hits := s.index.SearchFunc(query, topK, keep)
	out := make([]domain.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.ScoredChunk{Chunk: s.chunks[h.Position], Score: h.Score})
	}
	return out
}

// Holder publishes snapshots by atomic swap. A single writer calls Store;
// any number of readers call Load. A published snapshot is never mutated.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

func NewHolder() *Holder {
	return &Holder{}
}

// Load returns the current snapshot. It may be nil before the first Store.
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

func (h *Holder) Store(s *Snapshot) {
	h.current.Store(s)
}
