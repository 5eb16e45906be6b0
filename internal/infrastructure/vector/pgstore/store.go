package pgstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/resilience"
)

// Store is a dense index kept in Postgres with the vector extension.
type Store struct {
	db   *sql.DB
	exec *resilience.Executor
}

func New(db *sql.DB, cfg resilience.Config) *Store {
	return &Store{db: db, exec: resilience.NewExecutor(cfg)}
}

// EnsureSchema creates the extension and the vectors table for dim-sized embeddings.
func (s *Store) EnsureSchema(ctx context.Context, dim int) error {
	if dim <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "pgvector schema", fmt.Errorf("dimension must be positive, got %d", dim))
	}
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunk_vectors (
	chunk_id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	text TEXT NOT NULL,
	source_document TEXT NOT NULL DEFAULT '',
	section TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding vector(%d) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunk_vectors_document ON chunk_vectors(document_id);
CREATE INDEX IF NOT EXISTS idx_chunk_vectors_embedding ON chunk_vectors USING hnsw (embedding vector_cosine_ops);
`, dim)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute pgvector ddl: %w", err)
	}
	return nil
}

func (s *Store) IndexChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch")
	}

	err := s.exec.Execute(ctx, "pgvector.upsert", func(ctx context.Context) error {
		return s.upsert(ctx, chunks, vectors)
	}, classify)
	return resilience.WrapTemporary("pgvector index", err, classify)
}

func (s *Store) upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	docs := make(map[string]struct{})
	for _, ch := range chunks {
		docID := ch.Metadata[domain.MetaDocumentID]
		if _, done := docs[docID]; done || docID == "" {
			continue
		}
		docs[docID] = struct{}{}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE document_id = $1`, docID); err != nil {
			return fmt.Errorf("delete stale vectors: %w", err)
		}
	}

	for i, ch := range chunks {
		meta, err := json.Marshal(nonNil(ch.Metadata))
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO chunk_vectors (chunk_id, document_id, text, source_document, section, metadata, embedding)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (chunk_id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	text = EXCLUDED.text,
	source_document = EXCLUDED.source_document,
	section = EXCLUDED.section,
	metadata = EXCLUDED.metadata,
	embedding = EXCLUDED.embedding
`, ch.ID, ch.Metadata[domain.MetaDocumentID], ch.Text, ch.SourceDocument, ch.Section, meta, pgvector.NewVector(vectors[i]))
		if err != nil {
			return fmt.Errorf("upsert vector %s: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

// Search orders by cosine distance; the filter is matched by jsonb containment.
func (s *Store) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.ScoredChunk, error) {
	if len(queryVector) == 0 || limit <= 0 {
		return nil, nil
	}
	filterJSON, err := json.Marshal(activeFilter(filter))
	if err != nil {
		return nil, fmt.Errorf("marshal filter: %w", err)
	}

	var out []domain.ScoredChunk
	err = s.exec.Execute(ctx, "pgvector.search", func(ctx context.Context) error {
		hits, err := s.search(ctx, pgvector.NewVector(queryVector), filterJSON, limit)
		if err != nil {
			return err
		}
		out = hits
		return nil
	}, classify)
	if err != nil {
		return nil, resilience.WrapRetrieval("pgvector search", err, classify)
	}
	return out, nil
}

func (s *Store) search(ctx context.Context, vec pgvector.Vector, filterJSON []byte, limit int) ([]domain.ScoredChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT chunk_id, text, source_document, section, metadata, embedding <=> $1 AS distance
FROM chunk_vectors
WHERE metadata @> $2::jsonb
ORDER BY embedding <=> $1
LIMIT $3
`, vec, filterJSON, limit)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoredChunk
	for rows.Next() {
		var ch domain.Chunk
		var metaRaw []byte
		var distance float64
		if err := rows.Scan(&ch.ID, &ch.Text, &ch.SourceDocument, &ch.Section, &metaRaw, &distance); err != nil {
			return nil, fmt.Errorf("scan vector hit: %w", err)
		}
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &ch.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		out = append(out, domain.ScoredChunk{Chunk: ch, Score: domain.SimilarityFromDistance(distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector hits: %w", err)
	}
	return out, nil
}

func activeFilter(filter domain.SearchFilter) map[string]string {
	out := make(map[string]string, len(filter))
	for k, v := range filter {
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func classify(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return resilience.Transient
	}
	return resilience.Permanent
}

func (s *Store) OpenCircuits() []string {
	return s.exec.OpenCircuits()
}
