package fusion

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
	"github.com/kirillkom/grounded-qa/internal/core/sparse"
)

type fakeEmbedder struct {
	calls atomic.Int32
	err   error
}

func (f *fakeEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type fakeDense struct {
	calls     atomic.Int32
	hits      []domain.ScoredChunk
	err       error
	lastLimit int
}

func (f *fakeDense) Search(_ context.Context, _ []float32, limit int, _ domain.SearchFilter) ([]domain.ScoredChunk, error) {
	f.calls.Add(1)
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func corpusHolder(chunks ...domain.Chunk) *sparse.Holder {
	h := sparse.NewHolder()
	h.Store(sparse.NewSnapshot(chunks, sparse.DefaultParams()))
	return h
}

func TestRetrieveEmptyCorpusSkipsDenseRetrieval(t *testing.T) {
	embedder := &fakeEmbedder{}
	dense := &fakeDense{}
	r := NewRetriever(embedder, dense, sparse.NewHolder(), Options{}, nil)

	result, err := r.Retrieve(context.Background(), "copay for MRI", 3, nil, domain.DefaultEngineConfig())
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if result.Confidence != domain.ConfidenceNone || !result.Empty() {
		t.Fatalf("expected empty result with no confidence, got %+v", result)
	}
	if embedder.calls.Load() != 0 || dense.calls.Load() != 0 {
		t.Fatalf("expected no collaborator calls, got embed=%d dense=%d", embedder.calls.Load(), dense.calls.Load())
	}
}

func TestRetrieveFusesAndClassifies(t *testing.T) {
	mri := domain.Chunk{ID: "mri", Text: "MRI scans require a copay of forty dollars", SourceDocument: "benefits.pdf"}
	er := domain.Chunk{ID: "er", Text: "Emergency room visits have no copay", SourceDocument: "benefits.pdf"}
	dense := &fakeDense{hits: []domain.ScoredChunk{{Chunk: mri, Score: 0.81}, {Chunk: er, Score: 0.52}}}
	r := NewRetriever(&fakeEmbedder{}, dense, corpusHolder(mri, er), Options{}, nil)

	result, err := r.Retrieve(context.Background(), "MRI copay", 2, nil, domain.DefaultEngineConfig())
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if dense.lastLimit != 4 {
		t.Fatalf("expected dense limit 4, got %d", dense.lastLimit)
	}
	if len(result.Chunks) != 2 || result.Chunks[0].ID != "mri" {
		t.Fatalf("unexpected chunks: %+v", result.Chunks)
	}
	if result.Confidence != domain.ConfidenceHigh {
		t.Fatalf("expected high confidence, got %s", result.Confidence)
	}
	if len(result.Scores) != 2 || result.Scores[0] <= 0 || result.Scores[0] > 1 {
		t.Fatalf("unexpected scores: %v", result.Scores)
	}
}

func TestRetrievePropagatesOutage(t *testing.T) {
	outage := domain.WrapError(domain.ErrRetrievalUnavailable, "qdrant search", errors.New("circuit breaker is open"))
	r := NewRetriever(&fakeEmbedder{}, &fakeDense{err: outage}, corpusHolder(domain.Chunk{ID: "1", Text: "coverage rules"}), Options{}, nil)

	_, err := r.Retrieve(context.Background(), "coverage", 2, nil, domain.DefaultEngineConfig())
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}

func TestRetrieveMarksTransientFailuresTemporary(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{err: errors.New("connection reset")}, &fakeDense{}, corpusHolder(domain.Chunk{ID: "1", Text: "coverage rules"}), Options{}, nil)

	_, err := r.Retrieve(context.Background(), "coverage", 2, nil, domain.DefaultEngineConfig())
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}
