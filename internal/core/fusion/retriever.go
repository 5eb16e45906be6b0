package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
	"github.com/kirillkom/grounded-qa/internal/core/ports"
	"github.com/kirillkom/grounded-qa/internal/core/sparse"
)

type Options struct {
	EmbedTimeout time.Duration
	DenseTimeout time.Duration
}

// Retriever runs dense and sparse retrieval concurrently over the current
// corpus snapshot and fuses the two rankings.
type Retriever struct {
	embedder ports.Embedder
	dense    ports.DenseRetriever
	corpus   *sparse.Holder
	opts     Options
	logger   *slog.Logger
}

func NewRetriever(
	embedder ports.Embedder,
	dense ports.DenseRetriever,
	corpus *sparse.Holder,
	opts Options,
	logger *slog.Logger,
) *Retriever {
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = 10 * time.Second
	}
	if opts.DenseTimeout <= 0 {
		opts.DenseTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		dense:    dense,
		corpus:   corpus,
		opts:     opts,
		logger:   logger,
	}
}

func (r *Retriever) Retrieve(
	ctx context.Context,
	query string,
	topK int,
	filter domain.SearchFilter,
	cfg domain.EngineConfig,
) (domain.RetrievalResult, error) {
	started := time.Now()
	snapshot := r.corpus.Load()
	if snapshot.Len() == 0 {
		return domain.RetrievalResult{Confidence: domain.ConfidenceNone}, nil
	}
	if topK <= 0 {
		topK = 5
	}
	n := topK * 2

	var (
		denseHits, sparseHits []domain.ScoredChunk
		timings               domain.RetrievalTimings
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		denseStarted := time.Now()
		defer func() { timings.Dense = time.Since(denseStarted) }()

		vector, err := r.embedQuery(gctx, query)
		if err != nil {
			return err
		}
		hits, err := r.searchDense(gctx, vector, n, filter)
		if err != nil {
			return err
		}
		denseHits = hits
		return nil
	})
	g.Go(func() error {
		sparseStarted := time.Now()
		sparseHits = snapshot.Search(query, n, filter)
		timings.Sparse = time.Since(sparseStarted)
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.RetrievalResult{}, err
	}

	fusionStarted := time.Now()
	candidates := FuseRRF(denseHits, sparseHits, topK, ParamsFromConfig(cfg))
	result := domain.RetrievalResult{
		Chunks:       make([]domain.Chunk, len(candidates)),
		Scores:       make([]float64, len(candidates)),
		Similarities: make([]float64, len(candidates)),
	}
	for i, c := range candidates {
		result.Chunks[i] = c.Chunk
		result.Scores[i] = c.Normalized
		result.Similarities[i] = c.Similarity
	}
	result.Confidence = Classify(BestSimilarity(candidates), cfg.Thresholds)
	timings.Fusion = time.Since(fusionStarted)
	timings.Total = time.Since(started)
	result.Timings = timings

	r.logger.Debug("evidence_retrieved",
		"dense_hits", len(denseHits),
		"sparse_hits", len(sparseHits),
		"fused", len(candidates),
		"confidence", result.Confidence.String(),
		"duration_ms", timings.Total.Milliseconds(),
	)
	return result, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.EmbedTimeout)
	defer cancel()

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, wrapRetrievalError("embed query", err)
	}
	return vector, nil
}

func (r *Retriever) searchDense(ctx context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.ScoredChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.DenseTimeout)
	defer cancel()

	hits, err := r.dense.Search(ctx, vector, limit, filter)
	if err != nil {
		return nil, wrapRetrievalError("dense search", err)
	}
	return hits, nil
}

// wrapRetrievalError keeps ErrRetrievalUnavailable for outages reported by
// adapters and marks everything else as a temporary failure.
func wrapRetrievalError(operation string, err error) error {
	if domain.IsKind(err, domain.ErrRetrievalUnavailable) || domain.IsKind(err, domain.ErrTemporary) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return domain.WrapError(domain.ErrTemporary, operation, err)
}
