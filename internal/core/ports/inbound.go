package ports

import (
	"context"
	"io"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, metadata map[string]string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// QueryService is the single entry point for answering questions.
type QueryService interface {
	Query(ctx context.Context, text string, topK int, filter domain.SearchFilter) (*domain.QueryResult, error)
	Run(ctx context.Context, req domain.QueryRequest) domain.Outcome
}

// CorpusIngestor rebuilds the sparse index from a corpus snapshot. Ingest
// returns only after the new snapshot is visible to queries.
type CorpusIngestor interface {
	Ingest(ctx context.Context, snapshot []domain.Chunk) error
}

// CorpusReloader loads the persisted corpus and ingests it.
type CorpusReloader interface {
	Reload(ctx context.Context) (int, error)
}
