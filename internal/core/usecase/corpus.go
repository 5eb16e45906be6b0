package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
	"github.com/kirillkom/grounded-qa/internal/core/ports"
	"github.com/kirillkom/grounded-qa/internal/core/sparse"
)

// CorpusUseCase owns the sparse index lifecycle. It is the single writer of
// the snapshot holder shared with retrieval.
type CorpusUseCase struct {
	chunks ports.ChunkRepository
	holder *sparse.Holder
	params sparse.Params
	logger *slog.Logger

	mu sync.Mutex
}

func NewCorpusUseCase(chunks ports.ChunkRepository, holder *sparse.Holder, params sparse.Params, logger *slog.Logger) *CorpusUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &CorpusUseCase{
		chunks: chunks,
		holder: holder,
		params: params,
		logger: logger,
	}
}

// Ingest rebuilds the index from snapshot and publishes it. Queries started
// after Ingest returns see the new snapshot.
func (uc *CorpusUseCase) Ingest(ctx context.Context, snapshot []domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	started := time.Now()
	seen := make(map[string]struct{}, len(snapshot))
	accepted := make([]domain.Chunk, 0, len(snapshot))
	for _, chunk := range snapshot {
		if strings.TrimSpace(chunk.ID) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "ingest corpus", fmt.Errorf("chunk without id from %q", chunk.SourceDocument))
		}
		if _, dup := seen[chunk.ID]; dup {
			uc.logger.Warn("corpus_duplicate_chunk", "chunk_id", chunk.ID)
			continue
		}
		if strings.TrimSpace(chunk.Text) == "" {
			continue
		}
		seen[chunk.ID] = struct{}{}
		accepted = append(accepted, chunk)
	}

	uc.holder.Store(sparse.NewSnapshot(accepted, uc.params))
	uc.logger.Info("corpus_ingested",
		"chunks", len(accepted),
		"skipped", len(snapshot)-len(accepted),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

// Reload ingests every persisted chunk and reports how many were indexed.
func (uc *CorpusUseCase) Reload(ctx context.Context) (int, error) {
	if uc.chunks == nil {
		return 0, fmt.Errorf("reload corpus: chunk repository is not configured")
	}
	chunks, err := uc.chunks.ListChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list chunks: %w", err)
	}
	if err := uc.Ingest(ctx, chunks); err != nil {
		return 0, err
	}
	return uc.holder.Load().Len(), nil
}
