package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kirillkom/grounded-qa/internal/core/ports"
)

// Embedder memoizes query embeddings. Document batches pass straight through.
type Embedder struct {
	next   ports.Embedder
	cache  *LRU[[]float32]
	hits   atomic.Int64
	misses atomic.Int64
}

func NewEmbedder(next ports.Embedder, capacity int, ttl time.Duration) *Embedder {
	return &Embedder{next: next, cache: NewLRU[[]float32](capacity, ttl)}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.next.Embed(ctx, texts)
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := queryKey(text)
	if vec, ok := e.cache.Get(key); ok {
		e.hits.Add(1)
		return vec, nil
	}
	e.misses.Add(1)

	vec, err := e.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, vec)
	return vec, nil
}

// Stats reports cumulative hits and misses.
func (e *Embedder) Stats() (hits, misses int64) {
	return e.hits.Load(), e.misses.Load()
}

func queryKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
