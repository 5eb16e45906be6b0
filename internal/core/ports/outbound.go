package ports

import (
	"context"
	"io"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SetChunkCount(ctx context.Context, id string, count int) error
}

// ChunkRepository is the durable evidence collection the sparse index is built from.
type ChunkRepository interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error
	ListChunks(ctx context.Context) ([]domain.Chunk, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion and corpus events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
	PublishCorpusUpdated(ctx context.Context, documentID string) error
	SubscribeCorpusUpdated(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits text into section-aware chunks.
type Chunker interface {
	Split(text string) []domain.ChunkDraft
}

// VectorIndexer writes chunk vectors into the dense index.
type VectorIndexer interface {
	IndexChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
}

// DenseRetriever is the nearest-neighbor service. Scores are similarities in [0,1].
type DenseRetriever interface {
	Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.ScoredChunk, error)
}

// VectorStore is a dense backend that can both index and search.
type VectorStore interface {
	VectorIndexer
	DenseRetriever
}

// AnswerGenerator is the external LLM call. It returns plain text.
type AnswerGenerator interface {
	Generate(ctx context.Context, systemPrompt, evidence, query string) (string, error)
}

// EvidenceRetriever produces the ranked, confidence-scored evidence set.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, query string, topK int, filter domain.SearchFilter, cfg domain.EngineConfig) (domain.RetrievalResult, error)
}

// EngineProfiles resolves the engine configuration for a knowledge domain.
// Unknown or empty domains resolve to the defaults.
type EngineProfiles interface {
	Engine(domainName string) domain.EngineConfig
}
