package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

// ChunkRepository is the durable copy of the evidence corpus.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ReplaceChunks swaps the chunk set of one document in a single transaction.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace chunks tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (id, document_id, position, text, source_document, section, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`)
	if err != nil {
		return fmt.Errorf("prepare insert chunk: %w", err)
	}
	defer stmt.Close()

	for i, ch := range chunks {
		metaJSON, err := marshalMetadata(ch.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, ch.ID, documentID, i, ch.Text, ch.SourceDocument, ch.Section, metaJSON); err != nil {
			return fmt.Errorf("insert chunk %s: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace chunks tx: %w", err)
	}
	return nil
}

// ListChunks returns the whole corpus in a stable order.
func (r *ChunkRepository) ListChunks(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT c.id, c.text, c.source_document, c.section, c.metadata
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE d.status = $1
ORDER BY d.created_at, c.document_id, c.position
`, string(domain.StatusReady))
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		var ch domain.Chunk
		var metaRaw []byte
		if err := rows.Scan(&ch.ID, &ch.Text, &ch.SourceDocument, &ch.Section, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if ch.Metadata, err = unmarshalMetadata(metaRaw); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
